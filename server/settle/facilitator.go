package settle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"b402-poker/server/receipt"
)

// HTTPFacilitator settles through a remote facilitator service instead of a
// local coordinator. The facilitator re-verifies the receipt hash itself.
type HTTPFacilitator struct {
	BaseURL string
	Client  *http.Client
}

func NewHTTPFacilitator(baseURL string) *HTTPFacilitator {
	return &HTTPFacilitator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type settleRequest struct {
	Receipt     *receipt.HandReceipt `json:"receipt"`
	ReceiptHash string               `json:"receiptHash"`
	Payers      []NetPosition        `json:"payers"`
	Payees      []NetPosition        `json:"payees"`
}

type settleResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"txHash"`
	Mode    string `json:"mode"`
	Error   string `json:"error"`
}

func (f *HTTPFacilitator) SettleHand(ctx context.Context, r *receipt.HandReceipt, receiptHash string, payers, payees []NetPosition) (Record, error) {
	body, _ := json.Marshal(settleRequest{Receipt: r, ReceiptHash: receiptHash, Payers: payers, Payees: payees})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.BaseURL+"/settle-hand", bytes.NewReader(body))
	if err != nil {
		return Record{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := f.Client.Do(req)
	if err != nil {
		return Record{}, fmt.Errorf("facilitator %s: %w", f.BaseURL, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var out settleResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return Record{}, fmt.Errorf("facilitator: bad response (http %d): %s", resp.StatusCode, raw)
	}
	if !out.Success {
		return Record{}, fmt.Errorf("facilitator rejected settlement (http %d): %s", resp.StatusCode, out.Error)
	}
	return Record{
		HandNo:      r.HandNo,
		ReceiptHash: receiptHash,
		TxRef:       out.TxHash,
		Mode:        out.Mode,
		Timestamp:   time.Now().Unix(),
	}, nil
}
