package binance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestSigner_Sign(t *testing.T) {
	secret := "NhqPtmdSJYdKjVHjA7PZj4Mge3R5YNiP1e3UZjInClVN65XAbvqqM6A7H5fATj0j"
	query := "symbol=LTCBTC&side=BUY&type=LIMIT&timeInForce=GTC&quantity=1&price=0.1&recvWindow=5000&timestamp=1499827319559"

	s := NewSigner("key", secret)
	got := s.Sign(query)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(query))
	want := hex.EncodeToString(mac.Sum(nil))

	if got != want {
		t.Errorf("Sign() = %s, want %s", got, want)
	}
	if len(got) != 64 {
		t.Errorf("signature length = %d, want 64 hex chars", len(got))
	}
}

func TestSigner_DifferentSecretsDiffer(t *testing.T) {
	a := NewSigner("key", "secret-a").Sign("symbol=BTCUSDT")
	b := NewSigner("key", "secret-b").Sign("symbol=BTCUSDT")
	if a == b {
		t.Error("signatures with different secrets should differ")
	}
}

func TestSigner_Wipe(t *testing.T) {
	s := NewSigner("key", "secret")
	s.Wipe()
	for _, b := range s.secretKey {
		if b != 0 {
			t.Fatal("secret not wiped")
		}
	}
	if s.APIKey() != "\x00\x00\x00" {
		t.Errorf("api key not wiped")
	}
}
