package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyFileMagic      = "AMUNKEY1"
	keySaltLen        = 16
	keyNonceLen       = 12
	pbkdf2ItersMin    = 10_000
	pbkdf2ItersMax    = 10_000_000
	pbkdf2ItersDefault = 100_000
)

// Keystore owns a single Ed25519 signing key, rate-limits signing, and
// appends a digest-only audit trail for every signature it produces.
type Keystore struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey

	mu        sync.Mutex
	limiter   *rateLimiter
	auditPath string
}

// Open loads (or creates, if absent) validator.key under dir and wires it to
// an audit.log in the same directory. If passphrase is non-empty the key is
// encrypted at rest with AES-256-GCM keyed by PBKDF2-HMAC-SHA256.
func Open(dir string, passphrase string, rateLimitPerSec int) (*Keystore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, keystoreErr(ErrIo, "mkdir keystore dir: "+err.Error())
	}
	keyPath := filepath.Join(dir, "validator.key")
	pub, priv, err := loadOrCreate(keyPath, passphrase)
	if err != nil {
		return nil, err
	}
	return &Keystore{
		priv:      priv,
		pub:       pub,
		limiter:   newRateLimiter(rateLimitPerSec),
		auditPath: filepath.Join(dir, "audit.log"),
	}, nil
}

// PublicKey returns the validator's Ed25519 public key.
func (k *Keystore) PublicKey() ed25519.PublicKey {
	return k.pub
}

// Sign produces a signature over msg, subject to the rate limiter, and
// appends a digest-only audit record on success.
func (k *Keystore) Sign(msg []byte) ([]byte, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if !k.limiter.allow(time.Now()) {
		return nil, keystoreErr(ErrRateLimited, "signing rate limit exceeded")
	}
	sig := ed25519.Sign(k.priv, msg)
	if err := appendAudit(k.auditPath, msg); err != nil {
		return nil, err
	}
	return sig, nil
}

// VerifySignature is the free-function verifier used by the consensus
// package: signatures of the wrong length are rejected before the
// underlying primitive is invoked.
func VerifySignature(pub [32]byte, msg, sig []byte) bool {
	if len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub[:]), msg, sig)
}

func pbkdf2Iterations() int {
	for _, name := range []string{"TIDE_PBKDF2_ITERS", "AMUNCHAIN_PBKDF2_ITERS"} {
		if s := os.Getenv(name); s != "" {
			if v, err := strconv.Atoi(s); err == nil {
				if v < pbkdf2ItersMin {
					v = pbkdf2ItersMin
				}
				if v > pbkdf2ItersMax {
					v = pbkdf2ItersMax
				}
				return v
			}
		}
	}
	return pbkdf2ItersDefault
}

func passphraseFromEnv() string {
	for _, name := range []string{"TIDE_KEY_PASSPHRASE", "AMUNCHAIN_KEY_PASSPHRASE"} {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

func loadOrCreate(path string, passphrase string) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	if passphrase == "" {
		passphrase = passphraseFromEnv()
	}
	raw, err := os.ReadFile(path) // #nosec G304 -- path is operator-controlled data dir.
	if err == nil {
		pkcs8, err := decryptIfNeeded(raw, passphrase)
		if err != nil {
			return nil, nil, err
		}
		return decodePKCS8(pkcs8)
	}
	if !os.IsNotExist(err) {
		return nil, nil, keystoreErr(ErrIo, "read key file: "+err.Error())
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, keystoreErr(ErrCrypto, "generate key: "+err.Error())
	}
	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, nil, keystoreErr(ErrCrypto, "marshal pkcs8: "+err.Error())
	}
	out := pkcs8
	if passphrase != "" {
		out, err = encryptPKCS8(pkcs8, passphrase)
		if err != nil {
			return nil, nil, err
		}
	}
	if err := atomicWritePrivate(path, out); err != nil {
		return nil, nil, err
	}
	return pub, priv, nil
}

func decodePKCS8(der []byte) (ed25519.PublicKey, ed25519.PrivateKey, error) {
	// A raw PKCS8 file may itself be PEM-wrapped; accept both.
	if block, _ := pem.Decode(der); block != nil {
		der = block.Bytes
	}
	key, err := x509.ParsePKCS8PrivateKey(der)
	if err != nil {
		return nil, nil, keystoreErr(ErrInvalidKey, "parse pkcs8: "+err.Error())
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, nil, keystoreErr(ErrInvalidKey, "key is not ed25519")
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, nil, keystoreErr(ErrInvalidKey, "missing ed25519 public key")
	}
	return pub, priv, nil
}

func decryptIfNeeded(raw []byte, passphrase string) ([]byte, error) {
	if len(raw) < len(keyFileMagic) || string(raw[:len(keyFileMagic)]) != keyFileMagic {
		return raw, nil
	}
	if passphrase == "" {
		return nil, keystoreErr(ErrMissingPassphrase, "key file is encrypted but no passphrase was supplied")
	}
	body := raw[len(keyFileMagic):]
	if len(body) < keySaltLen+keyNonceLen {
		return nil, keystoreErr(ErrInvalidKey, "encrypted key file truncated")
	}
	salt := body[:keySaltLen]
	nonce := body[keySaltLen : keySaltLen+keyNonceLen]
	ciphertext := body[keySaltLen+keyNonceLen:]

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	pt, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, keystoreErr(ErrCrypto, "decrypt key file: "+err.Error())
	}
	return pt, nil
}

func encryptPKCS8(pkcs8 []byte, passphrase string) ([]byte, error) {
	salt := make([]byte, keySaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, keystoreErr(ErrCrypto, "generate salt: "+err.Error())
	}
	nonce := make([]byte, keyNonceLen)
	if _, err := rand.Read(nonce); err != nil {
		return nil, keystoreErr(ErrCrypto, "generate nonce: "+err.Error())
	}
	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return nil, err
	}
	ciphertext := gcm.Seal(nil, nonce, pkcs8, nil)

	out := make([]byte, 0, len(keyFileMagic)+keySaltLen+keyNonceLen+len(ciphertext))
	out = append(out, keyFileMagic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(passphrase), salt, pbkdf2Iterations(), 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, keystoreErr(ErrCrypto, "aes cipher: "+err.Error())
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, keystoreErr(ErrCrypto, "gcm: "+err.Error())
	}
	return gcm, nil
}

// atomicWritePrivate writes b to path via temp-file-then-rename, fsyncing
// both the temp file and the parent directory, and restricts permissions to
// the owner where the host supports it.
func atomicWritePrivate(path string, b []byte) error {
	dir := filepath.Dir(path)
	tmp := path + ".tmp"

	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) // #nosec G304 -- tmp path derived from operator-controlled datadir.
	if err != nil {
		return keystoreErr(ErrIo, "open tmp key file: "+err.Error())
	}
	_, werr := f.Write(b)
	serr := f.Sync()
	cerr := f.Close()
	if werr != nil {
		return keystoreErr(ErrIo, "write tmp key file: "+werr.Error())
	}
	if serr != nil {
		return keystoreErr(ErrIo, "fsync tmp key file: "+serr.Error())
	}
	if cerr != nil {
		return keystoreErr(ErrIo, "close tmp key file: "+cerr.Error())
	}
	if err := setPrivatePerms(tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return keystoreErr(ErrIo, "rename key file: "+err.Error())
	}

	d, err := os.Open(dir) // #nosec G304 -- dir is operator-controlled datadir.
	if err != nil {
		return keystoreErr(ErrIo, fmt.Sprintf("fsync dir open: %s", err))
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		return keystoreErr(ErrIo, "fsync dir: "+err.Error())
	}
	return nil
}
