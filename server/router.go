package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"b402-poker/server/agent"
	"b402-poker/server/receipt"
	"b402-poker/server/settle"
	"b402-poker/server/table"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// DealerRouter exposes the table loop: health, live stats, and a start
// trigger. Start runs the session in the background on baseCtx so a process
// shutdown also stops the loop; a second start while one is running is
// rejected.
func DealerRouter(baseCtx context.Context, cfg TableConfig, sess *table.Session) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "table_id": cfg.TableID})
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		st := sess.Stats()
		writeJSON(w, http.StatusOK, map[string]any{
			"table_id": cfg.TableID,
			"running":  sess.Running(),
			"hand_no":  st.HandsDealt,
			"stats":    st,
			"config":   cfg.Echo(),
		})
	})

	r.Post("/start", func(w http.ResponseWriter, _ *http.Request) {
		if sess.Running() {
			writeJSON(w, http.StatusConflict, map[string]any{"ok": false, "error": "session already running"})
			return
		}
		go func() {
			if err := sess.Run(baseCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("session ended: %v", err)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]any{"ok": true, "max_hands": cfg.MaxHands})
	})

	return r
}

// PlayerRouter serves one player agent: it receives an observation and
// answers with an action.
func PlayerRouter(playerID string, strategy agent.Strategy) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "player_id": playerID})
	})

	r.Post("/act", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			Observation agent.Observation `json:"observation"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"error": "bad observation: " + err.Error()})
			return
		}

		ctx, cancel := context.WithTimeout(req.Context(), 30*time.Second)
		defer cancel()
		out, err := strategy.Decide(ctx, in.Observation)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, out)
	})

	return r
}

// FacilitatorRouter serves the settlement side: it re-verifies the receipt
// hash itself and drives the coordinator. A hash mismatch is the caller's
// fault (400); everything downstream is a 500.
func FacilitatorRouter(coord *settle.Coordinator) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		relayer := ""
		if rb, ok := coord.Backend.(interface{ Relayer() common.Address }); ok {
			relayer = rb.Relayer().Hex()
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"ok":      true,
			"mode":    coord.Backend.Mode(),
			"relayer": relayer,
		})
	})

	r.Post("/settle-hand", func(w http.ResponseWriter, req *http.Request) {
		var in struct {
			Receipt     *receipt.HandReceipt `json:"receipt"`
			ReceiptHash string               `json:"receiptHash"`
			Payers      []settle.NetPosition `json:"payers"`
			Payees      []settle.NetPosition `json:"payees"`
		}
		if err := json.NewDecoder(req.Body).Decode(&in); err != nil || in.Receipt == nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "bad settle request"})
			return
		}

		rec, err := coord.SettleHand(req.Context(), in.Receipt, in.ReceiptHash, in.Payers, in.Payees)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, settle.ErrReceiptMismatch) || errors.Is(err, settle.ErrNonceReused) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"txHash":  rec.TxRef,
			"mode":    rec.Mode,
		})
	})

	return r
}
