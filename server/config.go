package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"b402-poker/server/engine"
)

// TableConfig is the full environment-driven configuration surface. Missing
// on-chain addresses are not an error: they select the off-chain simulated
// settlement mode.
type TableConfig struct {
	TableID    string
	Seed       string
	MaxHands   int
	HandDelay  time.Duration
	RakeBps    int
	PotSizeUSD float64 // advisory pot-size reference, echoed on /status
	SeatCount  int
	StartStack int
	SmallBlind int
	BigBlind   int

	PlayerEndpoints []string // one per seat; empty entries use the built-in strategy
	PlayerAddresses []string // on-chain identity per seat; may be empty
	ActionTimeout   time.Duration
	PlayerID        string

	ChainID            int64
	RPCURL             string
	TokenAddress       string
	EscrowAddress      string
	FacilitatorAddress string
	FacilitatorURL     string
	RelayerKey         string

	DatabaseURL     string
	DealerPort      string
	PlayerPort      string
	FacilitatorPort string
}

func LoadConfig() TableConfig {
	cfg := TableConfig{
		TableID:            getenv("TABLE_ID", ""),
		Seed:               getenv("TOURNAMENT_SEED", ""),
		MaxHands:           atoiDef(os.Getenv("MAX_HANDS"), 10),
		HandDelay:          time.Duration(atoiDef(os.Getenv("HAND_DELAY_MS"), 1000)) * time.Millisecond,
		RakeBps:            atoiDef(os.Getenv("RAKE_BPS"), 0),
		PotSizeUSD:         floatDef(os.Getenv("POT_SIZE_USD"), 10),
		SeatCount:          atoiDef(os.Getenv("PLAYER_COUNT"), 3),
		StartStack:         atoiDef(os.Getenv("STARTING_STACK"), 1000),
		SmallBlind:         atoiDef(os.Getenv("SMALL_BLIND"), 5),
		BigBlind:           atoiDef(os.Getenv("BIG_BLIND"), 10),
		ActionTimeout:      time.Duration(atoiDef(os.Getenv("ACTION_TIMEOUT_MS"), 10000)) * time.Millisecond,
		PlayerID:           getenv("PLAYER_ID", ""),
		ChainID:            int64(atoiDef(os.Getenv("CHAIN_ID"), 84532)),
		RPCURL:             getenv("RPC_URL", ""),
		TokenAddress:       getenv("TOKEN_ADDRESS", ""),
		EscrowAddress:      getenv("ESCROW_ADDRESS", ""),
		FacilitatorAddress: getenv("FACILITATOR_ADDRESS", ""),
		FacilitatorURL:     getenv("FACILITATOR_URL", ""),
		RelayerKey:         getenv("RELAYER_PRIVATE_KEY", ""),
		DatabaseURL:        getenv("DATABASE_URL", ""),
		DealerPort:         getenv("DEALER_PORT", getenv("PORT", "8080")),
		PlayerPort:         getenv("PLAYER_PORT", getenv("PORT", "8081")),
		FacilitatorPort:    getenv("FACILITATOR_PORT", getenv("PORT", "8082")),
	}
	if cfg.TableID == "" {
		cfg.TableID = "table_" + uuid.NewString()[:8]
	}
	if cfg.Seed == "" {
		cfg.Seed = uuid.NewString()
	}
	if cfg.PlayerID == "" {
		cfg.PlayerID = "player_" + uuid.NewString()[:8]
	}
	for i := 0; i < cfg.SeatCount; i++ {
		seat := strconv.Itoa(i)
		cfg.PlayerEndpoints = append(cfg.PlayerEndpoints, strings.TrimSpace(getenv("PLAYER_"+seat+"_ENDPOINT", "")))
		cfg.PlayerAddresses = append(cfg.PlayerAddresses, strings.TrimSpace(getenv("PLAYER_"+seat+"_ADDRESS", "")))
	}
	return cfg
}

// OffChain reports whether settlement must run in simulated mode because the
// on-chain surface is not fully configured.
func (c TableConfig) OffChain() bool {
	return c.TokenAddress == "" || c.EscrowAddress == "" || c.FacilitatorAddress == "" ||
		c.RPCURL == "" || c.RelayerKey == ""
}

func (c TableConfig) Engine() engine.Config {
	return engine.Config{
		SeatCount:  c.SeatCount,
		StartStack: c.StartStack,
		SmallBlind: c.SmallBlind,
		BigBlind:   c.BigBlind,
	}
}

// Echo is the public configuration snapshot served on the dealer's /status.
func (c TableConfig) Echo() map[string]any {
	return map[string]any{
		"table_id":     c.TableID,
		"max_hands":    c.MaxHands,
		"rake_bps":     c.RakeBps,
		"pot_size_usd": c.PotSizeUSD,
		"player_count": c.SeatCount,
		"start_stack":  c.StartStack,
		"small_blind":  c.SmallBlind,
		"big_blind":    c.BigBlind,
		"chain_id":     c.ChainID,
		"off_chain":    c.OffChain(),
	}
}

func mustEnv(keys ...string) {
	for _, k := range keys {
		if os.Getenv(k) == "" {
			log.Fatalf("Missing required env var %s. Put it in .env (dev) or set it on the host (prod).", k)
		}
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func floatDef(s string, def float64) float64 {
	if s == "" {
		return def
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}

func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}
