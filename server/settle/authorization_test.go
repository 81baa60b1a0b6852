package settle

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestDeriveNonce(t *testing.T) {
	payer := common.HexToAddress("0x1111111111111111111111111111111111111111")
	a := DeriveNonce("t1", 3, payer)
	if a != DeriveNonce("t1", 3, payer) {
		t.Fatalf("nonce not deterministic")
	}
	if a == DeriveNonce("t1", 4, payer) {
		t.Fatalf("nonce ignores hand number")
	}
	if a == DeriveNonce("t2", 3, payer) {
		t.Fatalf("nonce ignores table id")
	}
	other := common.HexToAddress("0x2222222222222222222222222222222222222222")
	if a == DeriveNonce("t1", 3, other) {
		t.Fatalf("nonce ignores payer")
	}
}

func TestChipsToTokenUnits(t *testing.T) {
	if got := ChipsToTokenUnits(7).String(); got != "7000000" {
		t.Fatalf("7 chips -> %s units, want 7000000", got)
	}
	if got := ChipsToTokenUnits(0).String(); got != "0" {
		t.Fatalf("0 chips -> %s units", got)
	}
}

func TestKeyringSignerRecovers(t *testing.T) {
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	payer := crypto.PubkeyToAddress(key.PublicKey)

	signer := NewKeyringSigner()
	if _, err := signer.AddKey(common.Bytes2Hex(crypto.FromECDSA(key))); err != nil {
		t.Fatal(err)
	}

	token := common.HexToAddress("0x4444444444444444444444444444444444444444")
	escrow := common.HexToAddress("0x5555555555555555555555555555555555555555")
	auth := NewAuthorization("t1", 1, payer, escrow, 25, time.Now())
	if err := signer.SignAuthorization(&auth, 84532, token); err != nil {
		t.Fatal(err)
	}

	digest, err := auth.SigningDigest(84532, token)
	if err != nil {
		t.Fatal(err)
	}
	sig := make([]byte, 65)
	copy(sig[:32], auth.R[:])
	copy(sig[32:64], auth.S[:])
	sig[64] = auth.V - 27
	pub, err := crypto.SigToPub(digest, sig)
	if err != nil {
		t.Fatal(err)
	}
	if got := crypto.PubkeyToAddress(*pub); got != payer {
		t.Fatalf("recovered %s, want %s", got.Hex(), payer.Hex())
	}
}

func TestSignerRejectsUnknownPayer(t *testing.T) {
	signer := NewKeyringSigner()
	auth := NewAuthorization("t1", 1,
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x5555555555555555555555555555555555555555"),
		25, time.Now())
	if err := signer.SignAuthorization(&auth, 84532, common.Address{}); err == nil {
		t.Fatalf("expected missing-key error")
	}
}

func TestAuthorizationWindow(t *testing.T) {
	now := time.Now()
	auth := NewAuthorization("t1", 1,
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x5555555555555555555555555555555555555555"),
		25, now)
	if auth.ValidAfter != now.Add(-60*time.Second).Unix() {
		t.Fatalf("validAfter = %d", auth.ValidAfter)
	}
	if auth.ValidBefore != now.Add(300*time.Second).Unix() {
		t.Fatalf("validBefore = %d", auth.ValidBefore)
	}
	if auth.Value.String() != "25000000" {
		t.Fatalf("value = %s", auth.Value)
	}
}
