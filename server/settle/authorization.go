package settle

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

// Authorization is an EIP-3009 transferWithAuthorization payload: a payer's
// signed permission for the escrow to pull Value tokens, valid in a bounded
// time window and replay-protected by a unique nonce.
type Authorization struct {
	From        common.Address
	To          common.Address
	Value       *big.Int
	ValidAfter  int64
	ValidBefore int64
	Nonce       [32]byte
	V           uint8
	R           [32]byte
	S           [32]byte
}

// Validity window relative to now: a small backdate for clock skew, a few
// minutes forward for the settlement to land.
const (
	validAfterSkew   = 60 * time.Second
	validBeforeGrace = 300 * time.Second
)

// DeriveNonce binds an authorization to one (table, hand, payer) triple, so a
// replayed authorization is detectable.
func DeriveNonce(tableID string, handNo int, payer common.Address) [32]byte {
	preimage := fmt.Sprintf("%s_%d_%s", tableID, handNo, strings.ToLower(payer.Hex()))
	return crypto.Keccak256Hash([]byte(preimage))
}

// ChipsToTokenUnits converts table chips into base token units for a token
// with 6 decimals (1 chip = 1 token).
func ChipsToTokenUnits(chips int64) *big.Int {
	return decimal.NewFromInt(chips).Shift(6).BigInt()
}

// TypedData builds the EIP-712 payload for an authorization under the B402
// settlement domain.
func (a *Authorization) TypedData(chainID int64, token common.Address) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"TransferWithAuthorization": []apitypes.Type{
				{Name: "from", Type: "address"},
				{Name: "to", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "validAfter", Type: "uint256"},
				{Name: "validBefore", Type: "uint256"},
				{Name: "nonce", Type: "bytes32"},
			},
		},
		PrimaryType: "TransferWithAuthorization",
		Domain: apitypes.TypedDataDomain{
			Name:              "B402",
			Version:           "1",
			ChainId:           math.NewHexOrDecimal256(chainID),
			VerifyingContract: token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"from":        a.From.Hex(),
			"to":          a.To.Hex(),
			"value":       (*math.HexOrDecimal256)(a.Value),
			"validAfter":  math.NewHexOrDecimal256(a.ValidAfter),
			"validBefore": math.NewHexOrDecimal256(a.ValidBefore),
			"nonce":       hexutil.Encode(a.Nonce[:]),
		},
	}
}

// SigningDigest is the EIP-712 digest the payer signs.
func (a *Authorization) SigningDigest(chainID int64, token common.Address) ([]byte, error) {
	td := a.TypedData(chainID, token)
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, fmt.Errorf("typed data hash: %w", err)
	}
	return digest, nil
}

// Signer produces the payer's signature over an authorization.
type Signer interface {
	SignAuthorization(a *Authorization, chainID int64, token common.Address) error
}

// KeyringSigner signs with locally held payer keys. Keys come from the
// environment as PLAYER_KEY_<lowercase address without 0x>.
type KeyringSigner struct {
	keys map[common.Address]*ecdsa.PrivateKey
}

func NewKeyringSigner() *KeyringSigner {
	return &KeyringSigner{keys: map[common.Address]*ecdsa.PrivateKey{}}
}

// AddKey registers a hex-encoded private key for its derived address.
func (k *KeyringSigner) AddKey(hexKey string) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("bad private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(key.PublicKey)
	k.keys[addr] = key
	return addr, nil
}

// LoadEnv pulls any PLAYER_KEY_<addr> variables into the keyring.
func (k *KeyringSigner) LoadEnv() int {
	loaded := 0
	for _, kv := range os.Environ() {
		if !strings.HasPrefix(kv, "PLAYER_KEY_") {
			continue
		}
		eq := strings.IndexByte(kv, '=')
		if eq < 0 {
			continue
		}
		if _, err := k.AddKey(kv[eq+1:]); err == nil {
			loaded++
		}
	}
	return loaded
}

func (k *KeyringSigner) SignAuthorization(a *Authorization, chainID int64, token common.Address) error {
	key, ok := k.keys[a.From]
	if !ok {
		return fmt.Errorf("no key for payer %s", a.From.Hex())
	}
	digest, err := a.SigningDigest(chainID, token)
	if err != nil {
		return err
	}
	sig, err := crypto.Sign(digest, key)
	if err != nil {
		return fmt.Errorf("sign: %w", err)
	}
	copy(a.R[:], sig[:32])
	copy(a.S[:], sig[32:64])
	a.V = sig[64] + 27
	return nil
}

// NewAuthorization builds an unsigned authorization for a payer debit.
func NewAuthorization(tableID string, handNo int, payer, escrow common.Address, chips int64, now time.Time) Authorization {
	return Authorization{
		From:        payer,
		To:          escrow,
		Value:       ChipsToTokenUnits(chips),
		ValidAfter:  now.Add(-validAfterSkew).Unix(),
		ValidBefore: now.Add(validBeforeGrace).Unix(),
		Nonce:       DeriveNonce(tableID, handNo, payer),
	}
}
