package main

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"b402-poker/server/agent"
	"b402-poker/server/settle"
	"b402-poker/server/store"
	"b402-poker/server/table"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	_ = godotenv.Load()

	var player, facilitator, local, migrate bool
	for _, a := range os.Args[1:] {
		switch a {
		case "--player":
			player = true
		case "--facilitator":
			facilitator = true
		case "--local":
			local = true
		case "--migrate":
			migrate = true
		}
	}

	cfg := LoadConfig()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchSignals(cancel)

	if migrate {
		mustEnv("DATABASE_URL")
		db, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatal(err)
		}
		defer db.Close(ctx)
		if err := store.Migrate(ctx, db); err != nil {
			log.Fatal(err)
		}
		log.Println("migration complete")
		return
	}

	switch {
	case player:
		runPlayer(ctx, cfg)
	case facilitator:
		runFacilitator(ctx, cfg)
	case local:
		runLocal(ctx, cfg)
	default:
		runDealer(ctx, cfg)
	}
}

func watchSignals(cancel context.CancelFunc) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	<-ch
	log.Println("shutdown signal received")
	cancel()
}

func openStore(ctx context.Context, cfg TableConfig) *store.DB {
	if cfg.DatabaseURL == "" {
		return nil
	}
	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Printf("DB disabled (open failed): %v", err)
		return nil
	}
	if asBool(os.Getenv("AUTO_MIGRATE")) {
		if err := store.Migrate(ctx, db); err != nil {
			log.Printf("migrate failed (continuing without DB): %v", err)
			db.Close(ctx)
			return nil
		}
	}
	return db
}

// buildSettler picks the settlement path: remote facilitator if configured,
// otherwise a local coordinator over the simulated or on-chain backend.
func buildSettler(ctx context.Context, cfg TableConfig) table.Settler {
	if cfg.FacilitatorURL != "" {
		return settle.NewHTTPFacilitator(cfg.FacilitatorURL)
	}
	coord, err := buildCoordinator(ctx, cfg)
	if err != nil {
		log.Printf("on-chain backend unavailable (%v), settling off-chain", err)
		return settle.NewCoordinator(cfg.TableID, cfg.ChainID, common.Address{}, common.Address{}, nil, &settle.SimBackend{})
	}
	return coord
}

func buildCoordinator(ctx context.Context, cfg TableConfig) (*settle.Coordinator, error) {
	if cfg.OffChain() {
		log.Printf("WARNING: on-chain addresses not fully configured, settlement runs in simulated off-chain mode")
		return settle.NewCoordinator(cfg.TableID, cfg.ChainID, common.Address{}, common.Address{}, nil, &settle.SimBackend{}), nil
	}
	token := common.HexToAddress(cfg.TokenAddress)
	escrow := common.HexToAddress(cfg.EscrowAddress)
	backend, err := settle.NewChainBackend(ctx, cfg.RPCURL, cfg.ChainID, token, escrow, cfg.RelayerKey)
	if err != nil {
		return nil, err
	}
	signer := settle.NewKeyringSigner()
	if n := signer.LoadEnv(); n > 0 {
		log.Printf("loaded %d player keys", n)
	}
	log.Printf("on-chain settlement via relayer %s", backend.Relayer().Hex())
	return settle.NewCoordinator(cfg.TableID, cfg.ChainID, token, escrow, signer, backend), nil
}

// buildAgents wires one requester per seat: a remote player service where a
// URL is configured, the built-in pot-odds strategy otherwise.
func buildAgents(cfg TableConfig) []agent.Requester {
	agents := make([]agent.Requester, cfg.SeatCount)
	for i := 0; i < cfg.SeatCount; i++ {
		if i < len(cfg.PlayerEndpoints) && cfg.PlayerEndpoints[i] != "" {
			agents[i] = agent.NewHTTPAgent(cfg.PlayerEndpoints[i], cfg.ActionTimeout)
			continue
		}
		agents[i] = &agent.StrategyRequester{Strategy: &agent.PotOddsStrategy{
			Rng:       rand.New(rand.NewSource(time.Now().UnixNano() + int64(i))),
			Opponents: cfg.SeatCount - 1,
		}}
	}
	return agents
}

func runDealer(ctx context.Context, cfg TableConfig) {
	db := openStore(ctx, cfg)
	if db != nil {
		defer db.Close(ctx)
	}

	sess := table.NewSession(table.Options{
		TableID:   cfg.TableID,
		Seed:      cfg.Seed,
		MaxHands:  cfg.MaxHands,
		HandDelay: cfg.HandDelay,
		RakeBps:   cfg.RakeBps,
		Engine:    cfg.Engine(),
		Agents:    buildAgents(cfg),
		Addresses: cfg.PlayerAddresses,
		Settler:   buildSettler(ctx, cfg),
		Store:     db,
	})

	if asBool(os.Getenv("AUTO_START")) {
		go func() {
			time.Sleep(time.Second)
			if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("session ended: %v", err)
			}
		}()
	}

	serveHTTP(ctx, cfg.DealerPort, DealerRouter(ctx, cfg, sess), "dealer")
}

func runPlayer(ctx context.Context, cfg TableConfig) {
	pot := &agent.PotOddsStrategy{
		Rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
		Opponents: cfg.SeatCount - 1,
	}
	var strategy agent.Strategy = pot
	if model := getenv("OPENAI_MODEL", ""); model != "" && getenv("OPENAI_API_KEY", "") != "" {
		strategy = &agent.LLMStrategy{Model: model, Fallback: pot}
		log.Printf("player strategy: llm (%s) with pot-odds fallback", model)
	} else {
		log.Printf("player strategy: pot odds")
	}
	log.Printf("player id: %s", cfg.PlayerID)
	serveHTTP(ctx, cfg.PlayerPort, PlayerRouter(cfg.PlayerID, strategy), "player")
}

func runFacilitator(ctx context.Context, cfg TableConfig) {
	coord, err := buildCoordinator(ctx, cfg)
	if err != nil {
		log.Fatalf("facilitator backend: %v", err)
	}
	serveHTTP(ctx, cfg.FacilitatorPort, FacilitatorRouter(coord), "facilitator")
}

// runLocal plays a whole session in-process with built-in strategies and
// simulated settlement. Useful for smoke runs without any peers.
func runLocal(ctx context.Context, cfg TableConfig) {
	db := openStore(ctx, cfg)
	if db != nil {
		defer db.Close(ctx)
	}

	sess := table.NewSession(table.Options{
		TableID:   cfg.TableID,
		Seed:      cfg.Seed,
		MaxHands:  cfg.MaxHands,
		HandDelay: cfg.HandDelay,
		RakeBps:   cfg.RakeBps,
		Engine:    cfg.Engine(),
		Agents:    buildAgents(cfg),
		Addresses: cfg.PlayerAddresses,
		Settler:   settle.NewCoordinator(cfg.TableID, cfg.ChainID, common.Address{}, common.Address{}, nil, &settle.SimBackend{}),
		Store:     db,
	})

	if err := sess.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("session ended: %v", err)
	}
	st := sess.Stats()
	log.Printf("done: %d hands completed, %d failed, net %v", st.HandsCompleted, st.HandsFailed, st.PerSeatNet)
}

func serveHTTP(ctx context.Context, port string, handler http.Handler, role string) {
	srv := &http.Server{Addr: ":" + port, Handler: handler}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Printf("%s listening on :%s", role, port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
