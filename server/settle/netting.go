package settle

import (
	"fmt"
	"strconv"
)

// NetPosition is one participant's absolute position for a hand: a payer owes
// Amount, a payee is owed Amount. Amounts are positive chip counts.
type NetPosition struct {
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// ComputeNetPositions partitions per-seat deltas by sign. Negative deltas
// become payers, positive deltas payees; zero deltas drop out. Index i of
// deltas corresponds to players[i].
func ComputeNetPositions(deltas []string, players []string) (payers, payees []NetPosition, err error) {
	if len(deltas) != len(players) {
		return nil, nil, fmt.Errorf("deltas/players length mismatch: %d vs %d", len(deltas), len(players))
	}
	for i, ds := range deltas {
		d, perr := strconv.ParseInt(ds, 10, 64)
		if perr != nil {
			return nil, nil, fmt.Errorf("delta %d (%q): %w", i, ds, perr)
		}
		switch {
		case d < 0:
			payers = append(payers, NetPosition{Address: players[i], Amount: -d})
		case d > 0:
			payees = append(payees, NetPosition{Address: players[i], Amount: d})
		}
	}
	return payers, payees, nil
}
