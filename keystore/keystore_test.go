package keystore

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesAndReloadsKey(t *testing.T) {
	dir := t.TempDir()
	ks1, err := Open(dir, "", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	pub := ks1.PublicKey()

	ks2, err := Open(dir, "", 0)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if !bytes.Equal(pub, ks2.PublicKey()) {
		t.Fatalf("reopened key differs from created key")
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	ks, err := Open(t.TempDir(), "", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	msg := []byte("hello tide")
	sig, err := ks.Sign(msg)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	var pub [32]byte
	copy(pub[:], ks.PublicKey())
	if !VerifySignature(pub, msg, sig) {
		t.Fatalf("signature did not verify")
	}
	if VerifySignature(pub, []byte("tampered"), sig) {
		t.Fatalf("signature verified over the wrong message")
	}
}

func TestVerifySignatureRejectsWrongLength(t *testing.T) {
	var pub [32]byte
	if VerifySignature(pub, []byte("m"), make([]byte, 63)) {
		t.Fatalf("expected rejection of short signature")
	}
}

func TestEncryptedKeyRequiresPassphrase(t *testing.T) {
	dir := t.TempDir()
	if _, err := Open(dir, "correct horse", 0); err != nil {
		t.Fatalf("open with passphrase: %v", err)
	}
	if _, err := Open(dir, "", 0); err == nil {
		t.Fatalf("expected missing-passphrase error")
	}
	if _, err := Open(dir, "wrong", 0); err == nil {
		t.Fatalf("expected crypto error for wrong passphrase")
	}
}

func TestRateLimiterBlocksBurst(t *testing.T) {
	dir := t.TempDir()
	ks, err := Open(dir, "", 1)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := ks.Sign([]byte("a")); err != nil {
		t.Fatalf("first sign: %v", err)
	}
	if _, err := ks.Sign([]byte("b")); err == nil {
		t.Fatalf("expected rate limit error on second sign within window")
	}
}

func TestAuditLogWritten(t *testing.T) {
	dir := t.TempDir()
	ks, err := Open(dir, "", 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := ks.Sign([]byte("a")); err != nil {
		t.Fatalf("sign: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "audit.log"))
	if err != nil {
		t.Fatalf("read audit log: %v", err)
	}
	if !bytes.Contains(data, []byte(`"action":"sign"`)) {
		t.Fatalf("audit log missing sign record: %s", data)
	}
}
