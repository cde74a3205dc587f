package gossip

import (
	"crypto/ed25519"
	"crypto/rand"
	"os"
	"path/filepath"
)

const identityFileName = "identity.key"

// Identity is the node's persistent Ed25519 gossip identity, distinct from
// the validator signing key held by the keystore package.
type Identity struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// LoadOrCreateIdentity loads dataDir/identity.key, creating one via an
// atomic temp-file-then-rename write if absent.
func LoadOrCreateIdentity(dataDir string) (*Identity, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, transportErr(ErrIo, "mkdir data dir: "+err.Error())
	}
	path := filepath.Join(dataDir, identityFileName)
	raw, err := os.ReadFile(path) // #nosec G304 -- path is operator-controlled data dir.
	if err == nil {
		if len(raw) != ed25519.PrivateKeySize {
			return nil, transportErr(ErrIo, "identity file has unexpected length")
		}
		priv := ed25519.PrivateKey(raw)
		pub, ok := priv.Public().(ed25519.PublicKey)
		if !ok {
			return nil, transportErr(ErrIo, "identity file did not yield an ed25519 public key")
		}
		return &Identity{Public: pub, Private: priv}, nil
	}
	if !os.IsNotExist(err) {
		return nil, transportErr(ErrIo, "read identity file: "+err.Error())
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, transportErr(ErrIo, "generate identity: "+err.Error())
	}
	if err := atomicWritePrivate(path, priv); err != nil {
		return nil, err
	}
	return &Identity{Public: pub, Private: priv}, nil
}

func atomicWritePrivate(path string, b []byte) error {
	dir := filepath.Dir(path)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) // #nosec G304 -- tmp path derived from operator-controlled datadir.
	if err != nil {
		return transportErr(ErrIo, "open tmp identity file: "+err.Error())
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return transportErr(ErrIo, "write tmp identity file: "+werr.Error())
	}
	if serr != nil {
		return transportErr(ErrIo, "fsync tmp identity file: "+serr.Error())
	}
	if cerr != nil {
		return transportErr(ErrIo, "close tmp identity file: "+cerr.Error())
	}
	_ = os.Chmod(tmp, 0o600)
	if err := os.Rename(tmp, path); err != nil {
		return transportErr(ErrIo, "rename identity file: "+err.Error())
	}

	d, err := os.Open(dir) // #nosec G304 -- dir is operator-controlled datadir.
	if err != nil {
		return transportErr(ErrIo, "fsync dir open: "+err.Error())
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return transportErr(ErrIo, "fsync dir: "+err.Error())
	}
	return nil
}
