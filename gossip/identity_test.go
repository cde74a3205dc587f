package gossip

import (
	"crypto/ed25519"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateIdentityPersists(t *testing.T) {
	dir := t.TempDir()
	id1, err := LoadOrCreateIdentity(dir)
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	id2, err := LoadOrCreateIdentity(dir)
	if err != nil {
		t.Fatalf("reload identity: %v", err)
	}
	if !id1.Public.Equal(id2.Public) {
		t.Fatalf("reloaded identity should have the same public key")
	}
	if string(id1.Private) != string(id2.Private) {
		t.Fatalf("reloaded identity should have the same private key")
	}
}

func TestIdentitySignsVerifiably(t *testing.T) {
	dir := t.TempDir()
	id, err := LoadOrCreateIdentity(dir)
	if err != nil {
		t.Fatalf("create identity: %v", err)
	}
	msg := []byte("hello gossip")
	sig := ed25519.Sign(id.Private, msg)
	if !ed25519.Verify(id.Public, msg, sig) {
		t.Fatalf("signature should verify under the identity's own public key")
	}
}

func TestIdentityFileRejectsWrongLength(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, identityFileName)
	if err := atomicWritePrivate(path, []byte("too short")); err != nil {
		t.Fatalf("write malformed identity file: %v", err)
	}
	if _, err := LoadOrCreateIdentity(dir); err == nil {
		t.Fatalf("expected error loading malformed identity file")
	}
}
