package settle

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const tokenABIJSON = `[
  {"name":"transferWithAuthorization","type":"function","inputs":[
    {"name":"from","type":"address"},
    {"name":"to","type":"address"},
    {"name":"value","type":"uint256"},
    {"name":"validAfter","type":"uint256"},
    {"name":"validBefore","type":"uint256"},
    {"name":"nonce","type":"bytes32"},
    {"name":"v","type":"uint8"},
    {"name":"r","type":"bytes32"},
    {"name":"s","type":"bytes32"}],"outputs":[]}
]`

const escrowABIJSON = `[
  {"name":"batchDebit","type":"function","inputs":[
    {"name":"recipients","type":"address[]"},
    {"name":"amounts","type":"uint256[]"}],"outputs":[]},
  {"name":"emitSettled","type":"function","inputs":[
    {"name":"handNo","type":"uint256"},
    {"name":"receiptHash","type":"bytes32"}],"outputs":[]}
]`

// ChainBackend executes settlements against a live EVM chain: payer debits go
// through the token's transferWithAuthorization, payouts and the settlement
// marker through the escrow contract, all relayed (and gas-paid) by one
// relayer key. Transaction submission is serialized so the relayer's account
// nonce never races.
type ChainBackend struct {
	client    *ethclient.Client
	chainID   *big.Int
	token     common.Address
	escrow    common.Address
	relayer   *ecdsa.PrivateKey
	relayerAt common.Address
	tokenABI  abi.ABI
	escrowABI abi.ABI

	mu sync.Mutex // serializes nonce fetch + sign + send
}

func NewChainBackend(ctx context.Context, rpcURL string, chainID int64, token, escrow common.Address, relayerKey string) (*ChainBackend, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(relayerKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("relayer key: %w", err)
	}
	tABI, err := abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		return nil, err
	}
	eABI, err := abi.JSON(strings.NewReader(escrowABIJSON))
	if err != nil {
		return nil, err
	}
	return &ChainBackend{
		client:    client,
		chainID:   big.NewInt(chainID),
		token:     token,
		escrow:    escrow,
		relayer:   key,
		relayerAt: crypto.PubkeyToAddress(key.PublicKey),
		tokenABI:  tABI,
		escrowABI: eABI,
	}, nil
}

func (b *ChainBackend) Mode() string { return "onchain" }

// Relayer is the address paying gas for all settlement transactions.
func (b *ChainBackend) Relayer() common.Address { return b.relayerAt }

func (b *ChainBackend) Collect(ctx context.Context, a Authorization) error {
	data, err := b.tokenABI.Pack("transferWithAuthorization",
		a.From, a.To, a.Value,
		big.NewInt(a.ValidAfter), big.NewInt(a.ValidBefore),
		a.Nonce, a.V, a.R, a.S,
	)
	if err != nil {
		return fmt.Errorf("pack transferWithAuthorization: %w", err)
	}
	_, err = b.sendAndWait(ctx, b.token, data)
	return err
}

func (b *ChainBackend) Pay(ctx context.Context, payees []NetPosition) error {
	recipients := make([]common.Address, len(payees))
	amounts := make([]*big.Int, len(payees))
	for i, p := range payees {
		if !common.IsHexAddress(p.Address) {
			return fmt.Errorf("payee %d: bad address %q", i, p.Address)
		}
		recipients[i] = common.HexToAddress(p.Address)
		amounts[i] = ChipsToTokenUnits(p.Amount)
	}
	data, err := b.escrowABI.Pack("batchDebit", recipients, amounts)
	if err != nil {
		return fmt.Errorf("pack batchDebit: %w", err)
	}
	_, err = b.sendAndWait(ctx, b.escrow, data)
	return err
}

func (b *ChainBackend) Finalize(ctx context.Context, handNo int, receiptHash string) (string, error) {
	var h [32]byte
	copy(h[:], common.FromHex(receiptHash))
	data, err := b.escrowABI.Pack("emitSettled", big.NewInt(int64(handNo)), h)
	if err != nil {
		return "", fmt.Errorf("pack emitSettled: %w", err)
	}
	tx, err := b.sendAndWait(ctx, b.escrow, data)
	if err != nil {
		return "", err
	}
	return tx.Hash().Hex(), nil
}

// sendAndWait submits one contract call from the relayer and blocks until it
// is mined. Returns an error for reverted transactions.
func (b *ChainBackend) sendAndWait(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	tx, err := b.submit(ctx, to, data)
	if err != nil {
		return nil, err
	}
	rcpt, err := bind.WaitMined(ctx, b.client, tx)
	if err != nil {
		return nil, fmt.Errorf("wait mined %s: %w", tx.Hash().Hex(), err)
	}
	if rcpt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("tx %s reverted", tx.Hash().Hex())
	}
	return tx, nil
}

func (b *ChainBackend) submit(ctx context.Context, to common.Address, data []byte) (*types.Transaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	nonce, err := b.client.PendingNonceAt(ctx, b.relayerAt)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gasPrice, err := b.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gas, err := b.client.EstimateGas(ctx, ethereum.CallMsg{From: b.relayerAt, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	gas += gas / 5 // 20% headroom

	tx := types.NewTransaction(nonce, to, big.NewInt(0), gas, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(b.chainID), b.relayer)
	if err != nil {
		return nil, fmt.Errorf("sign tx: %w", err)
	}
	if err := b.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send tx: %w", err)
	}
	return signed, nil
}
