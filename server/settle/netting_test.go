package settle

import "testing"

func TestComputeNetPositions(t *testing.T) {
	players := []string{"a", "b", "c", "d"}
	payers, payees, err := ComputeNetPositions([]string{"10", "-4", "0", "-6"}, players)
	if err != nil {
		t.Fatal(err)
	}
	if len(payers) != 2 || len(payees) != 1 {
		t.Fatalf("got %d payers / %d payees, want 2 / 1", len(payers), len(payees))
	}
	if payers[0].Address != "b" || payers[0].Amount != 4 {
		t.Fatalf("payer 0 = %+v", payers[0])
	}
	if payers[1].Address != "d" || payers[1].Amount != 6 {
		t.Fatalf("payer 1 = %+v", payers[1])
	}
	if payees[0].Address != "a" || payees[0].Amount != 10 {
		t.Fatalf("payee 0 = %+v", payees[0])
	}
}

func TestComputeNetPositionsErrors(t *testing.T) {
	if _, _, err := ComputeNetPositions([]string{"1"}, []string{"a", "b"}); err == nil {
		t.Fatalf("expected length mismatch error")
	}
	if _, _, err := ComputeNetPositions([]string{"nope"}, []string{"a"}); err == nil {
		t.Fatalf("expected parse error")
	}
}
