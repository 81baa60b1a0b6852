package main

import (
	"strconv"
	"testing"
)

func clearTableEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"TABLE_ID", "TOURNAMENT_SEED", "MAX_HANDS", "PLAYER_COUNT", "STARTING_STACK",
		"SMALL_BLIND", "BIG_BLIND", "POT_SIZE_USD", "ACTION_TIMEOUT_MS", "PLAYER_ID",
		"TOKEN_ADDRESS", "ESCROW_ADDRESS", "FACILITATOR_ADDRESS", "RPC_URL",
		"RELAYER_PRIVATE_KEY", "FACILITATOR_URL", "DATABASE_URL",
		"DEALER_PORT", "PLAYER_PORT", "FACILITATOR_PORT", "PORT",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
	for i := 0; i < 6; i++ {
		seat := strconv.Itoa(i)
		t.Setenv("PLAYER_"+seat+"_ENDPOINT", "")
		t.Setenv("PLAYER_"+seat+"_ADDRESS", "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearTableEnv(t)
	cfg := LoadConfig()
	if cfg.TableID == "" || cfg.Seed == "" || cfg.PlayerID == "" {
		t.Fatalf("expected generated identifiers, got %+v", cfg)
	}
	if cfg.MaxHands != 10 || cfg.SeatCount != 3 || cfg.BigBlind != 10 || cfg.StartStack != 1000 {
		t.Fatalf("bad defaults: %+v", cfg)
	}
	if cfg.PotSizeUSD != 10 {
		t.Fatalf("pot size default = %v, want 10", cfg.PotSizeUSD)
	}
	if cfg.DealerPort != "8080" || cfg.PlayerPort != "8081" || cfg.FacilitatorPort != "8082" {
		t.Fatalf("bad port defaults: %s/%s/%s", cfg.DealerPort, cfg.PlayerPort, cfg.FacilitatorPort)
	}
	if !cfg.OffChain() {
		t.Fatalf("missing addresses must select off-chain mode")
	}
}

func TestOffChainDetection(t *testing.T) {
	clearTableEnv(t)
	t.Setenv("TOKEN_ADDRESS", "0x1111111111111111111111111111111111111111")
	t.Setenv("ESCROW_ADDRESS", "0x2222222222222222222222222222222222222222")
	t.Setenv("FACILITATOR_ADDRESS", "0x3333333333333333333333333333333333333333")
	t.Setenv("RPC_URL", "http://localhost:8545")
	t.Setenv("RELAYER_PRIVATE_KEY", "deadbeef")
	if LoadConfig().OffChain() {
		t.Fatalf("fully configured backend reported off-chain")
	}

	t.Setenv("ESCROW_ADDRESS", "")
	if !LoadConfig().OffChain() {
		t.Fatalf("missing escrow must select off-chain mode")
	}

	t.Setenv("ESCROW_ADDRESS", "0x2222222222222222222222222222222222222222")
	t.Setenv("FACILITATOR_ADDRESS", "")
	if !LoadConfig().OffChain() {
		t.Fatalf("missing facilitator address must select off-chain mode")
	}
}

func TestPerSeatPlayerEnv(t *testing.T) {
	clearTableEnv(t)
	t.Setenv("PLAYER_COUNT", "3")
	t.Setenv("PLAYER_0_ENDPOINT", " http://p0:8081 ")
	t.Setenv("PLAYER_1_ENDPOINT", "http://p1:8082")
	t.Setenv("PLAYER_0_ADDRESS", "0x1111111111111111111111111111111111111111")
	cfg := LoadConfig()
	if len(cfg.PlayerEndpoints) != 3 || len(cfg.PlayerAddresses) != 3 {
		t.Fatalf("seat slices = %v / %v", cfg.PlayerEndpoints, cfg.PlayerAddresses)
	}
	if cfg.PlayerEndpoints[0] != "http://p0:8081" || cfg.PlayerEndpoints[1] != "http://p1:8082" || cfg.PlayerEndpoints[2] != "" {
		t.Fatalf("endpoints = %v", cfg.PlayerEndpoints)
	}
	if cfg.PlayerAddresses[0] != "0x1111111111111111111111111111111111111111" || cfg.PlayerAddresses[1] != "" {
		t.Fatalf("addresses = %v", cfg.PlayerAddresses)
	}
}

func TestRolePortsFallBackToPort(t *testing.T) {
	clearTableEnv(t)
	t.Setenv("PORT", "9000")
	cfg := LoadConfig()
	if cfg.DealerPort != "9000" || cfg.PlayerPort != "9000" || cfg.FacilitatorPort != "9000" {
		t.Fatalf("ports = %s/%s/%s, want 9000 everywhere", cfg.DealerPort, cfg.PlayerPort, cfg.FacilitatorPort)
	}

	t.Setenv("DEALER_PORT", "9001")
	if got := LoadConfig().DealerPort; got != "9001" {
		t.Fatalf("dealer port = %s, want 9001", got)
	}
}

func TestConfigEcho(t *testing.T) {
	clearTableEnv(t)
	t.Setenv("TABLE_ID", "t_echo")
	t.Setenv("POT_SIZE_USD", "25.5")
	t.Setenv("RAKE_BPS", "250")
	echo := LoadConfig().Echo()
	if echo["table_id"] != "t_echo" {
		t.Fatalf("echo table_id = %v", echo["table_id"])
	}
	if echo["pot_size_usd"] != 25.5 {
		t.Fatalf("echo pot_size_usd = %v", echo["pot_size_usd"])
	}
	if echo["rake_bps"] != 250 {
		t.Fatalf("echo rake_bps = %v", echo["rake_bps"])
	}
	if echo["off_chain"] != true {
		t.Fatalf("echo off_chain = %v", echo["off_chain"])
	}
}
