package receipt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// HandReceipt is the immutable record of a completed hand: who played, what
// happened (as a commitment over the action log) and who owes what. It is the
// unit of settlement and audit.
type HandReceipt struct {
	TableID           string   `json:"tableId"`
	HandNo            int      `json:"handNo"`
	Seed              string   `json:"rngSeed"`
	Players           []string `json:"players"`
	ActionsCommitment string   `json:"actionsRoot"`
	Deltas            []string `json:"deltas"` // signed chip deltas, sum == -rake
	RakeBps           int      `json:"rakeBps"`
	Timestamp         int64    `json:"ts"`
}

// CommitActions hashes the ordered action log. Any change to an entry or to
// the ordering changes the commitment.
func CommitActions(actions []string) string {
	return hexutil.Encode(crypto.Keccak256([]byte(strings.Join(actions, "|"))))
}

// Build assembles a receipt from raw engine deltas, deducting the rake evenly
// across seats. rake = floor(pot * rakeBps / 10000); after deduction the
// deltas sum to exactly -rake (the first rake%n seats carry the odd unit).
func Build(tableID string, handNo int, seed string, players []string, actions []string, deltas []int, pot, rakeBps int) *HandReceipt {
	n := len(deltas)
	rake := pot * rakeBps / 10000
	perSeat := 0
	extra := 0
	if n > 0 {
		perSeat = rake / n
		extra = rake % n
	}

	out := make([]string, n)
	for i, d := range deltas {
		d -= perSeat
		if i < extra {
			d--
		}
		out[i] = strconv.Itoa(d)
	}

	return &HandReceipt{
		TableID:           tableID,
		HandNo:            handNo,
		Seed:              seed,
		Players:           append([]string{}, players...),
		ActionsCommitment: CommitActions(actions),
		Deltas:            out,
		RakeBps:           rakeBps,
		Timestamp:         time.Now().Unix(),
	}
}

// Hash is the keccak256 of the receipt's canonical JSON encoding: keys sorted
// lexicographically, no insignificant whitespace. Two independent computations
// over the same receipt always agree; changing any field changes the hash.
func (r *HandReceipt) Hash() (string, error) {
	canon, err := canonicalJSON(r)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(crypto.Keccak256(canon)), nil
}

// Verify recomputes the receipt hash and compares it bit-for-bit against the
// claimed hash. A mismatch is a hard rejection.
func Verify(r *HandReceipt, claimedHash string) error {
	got, err := r.Hash()
	if err != nil {
		return err
	}
	if got != claimedHash {
		return fmt.Errorf("receipt hash mismatch: computed %s, claimed %s", got, claimedHash)
	}
	return nil
}

func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	// round-trip through a map: encoding/json writes map keys sorted
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return json.Marshal(m)
}
