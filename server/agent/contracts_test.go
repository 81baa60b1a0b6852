package agent

import (
	"context"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"b402-poker/server/engine"
)

func testObservation() Observation {
	return Observation{
		HandNo:    1,
		Seat:      0,
		Street:    "preflop",
		HoleCards: []string{"As", "Kd"},
		Pot:       15,
		Bet:       10,
		ToCall:    10,
		Stack:     990,
		MinRaise:  10,
		MaxRaise:  980,
		Legal:     []string{"fold", "call", "raise"},
	}
}

func TestValidateRejectsIllegalAction(t *testing.T) {
	o := testObservation()
	if _, err := Validate(o, ActionOut{Action: "check"}); err == nil {
		t.Fatalf("check should be illegal facing a bet")
	}
	if _, err := Validate(o, ActionOut{Action: "shove"}); err == nil {
		t.Fatalf("unknown action accepted")
	}
}

func TestValidateCallBecomesCheckWhenFree(t *testing.T) {
	o := testObservation()
	o.ToCall = 0
	o.Legal = []string{"fold", "check"}
	act, err := Validate(o, ActionOut{Action: "call"})
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != engine.Check {
		t.Fatalf("free call should coerce to check, got %s", act.Kind)
	}
}

func TestValidateRaiseBounds(t *testing.T) {
	o := testObservation()
	if _, err := Validate(o, ActionOut{Action: "raise"}); err == nil {
		t.Fatalf("raise without amount accepted")
	}
	amt := 5
	if _, err := Validate(o, ActionOut{Action: "raise", Amount: &amt}); err == nil {
		t.Fatalf("raise below minimum accepted")
	}
	amt = 10
	act, err := Validate(o, ActionOut{Action: "raise", Amount: &amt})
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != engine.Raise || act.Amount != 10 {
		t.Fatalf("act = %+v", act)
	}
}

func TestBuildObservation(t *testing.T) {
	d := engine.NewDealer(engine.Config{SeatCount: 3, StartStack: 1000, SmallBlind: 5, BigBlind: 10})
	d.Deal(1, "obs_test", nil)

	o := BuildObservation(d, 0)
	if o.HandNo != 1 || o.Seat != 0 || o.Street != "preflop" {
		t.Fatalf("obs = %+v", o)
	}
	if o.ToCall != 10 || o.Pot != 15 || o.Bet != 10 {
		t.Fatalf("chips wrong: %+v", o)
	}
	if len(o.HoleCards) != 2 {
		t.Fatalf("hole cards = %v", o.HoleCards)
	}
	if o.Position != "BTN" {
		t.Fatalf("position = %q", o.Position)
	}
}

func TestPotOddsStrategyObeysLegalActions(t *testing.T) {
	s := &PotOddsStrategy{Rng: rand.New(rand.NewSource(1)), Trials: 50}
	for i := 0; i < 20; i++ {
		o := testObservation()
		out, err := s.Decide(context.Background(), o)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := Validate(o, out); err != nil {
			t.Fatalf("strategy chose illegal action: %+v (%v)", out, err)
		}
	}
}

func TestPotOddsStrategyZeroValueDefaults(t *testing.T) {
	s := &PotOddsStrategy{}
	o := testObservation()
	out, err := s.Decide(context.Background(), o)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Validate(o, out); err != nil {
		t.Fatalf("zero-value strategy chose illegal action: %+v (%v)", out, err)
	}
	if s.Rng == nil {
		t.Fatalf("expected a default rng to be installed")
	}
}

func TestHTTPAgentTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	a := NewHTTPAgent(srv.URL, 20*time.Millisecond)
	_, err := a.RequestAction(context.Background(), testObservation())
	if err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestHTTPAgentRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/act" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"action":"call"}`))
	}))
	defer srv.Close()

	a := NewHTTPAgent(srv.URL, time.Second)
	act, err := a.RequestAction(context.Background(), testObservation())
	if err != nil {
		t.Fatal(err)
	}
	if act.Kind != engine.Call {
		t.Fatalf("act = %+v", act)
	}
}

func TestHTTPAgentRejectsIllegalRemoteAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"action":"check"}`))
	}))
	defer srv.Close()

	a := NewHTTPAgent(srv.URL, time.Second)
	if _, err := a.RequestAction(context.Background(), testObservation()); err == nil {
		t.Fatalf("illegal remote action accepted")
	}
}

func TestEquitySanity(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	mk := func(s string) engine.Card {
		c, ok := engine.ParseCard(s)
		if !ok {
			t.Fatalf("bad card %q", s)
		}
		return c
	}
	aces := Equity(rng, []engine.Card{mk("As"), mk("Ad")}, nil, 1, 300)
	trash := Equity(rng, []engine.Card{mk("7c"), mk("2d")}, nil, 1, 300)
	if aces <= trash {
		t.Fatalf("aces equity %.2f <= 72o equity %.2f", aces, trash)
	}
	if aces < 0.7 {
		t.Fatalf("aces equity %.2f implausibly low", aces)
	}
}
