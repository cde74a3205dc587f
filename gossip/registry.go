package gossip

import (
	"bufio"
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"
)

// Registry is the verified, parsed form of a signed peer registry file:
// the allowlist of peer ids plus its issuance window. Freshness policy
// (max age, grace, require-fresh) is applied by the caller, not here.
type Registry struct {
	Network     string
	IssuedAtMs  uint64
	ExpiresAtMs uint64
	Allowlist   map[string]bool // hex-encoded ed25519 public keys
}

// VerifyRegistry parses the canonical text payload, verifies signature was
// produced by pinnedPubKey over exactly the payload bytes, and returns the
// parsed registry. It does not apply any freshness policy.
func VerifyRegistry(payload []byte, signature []byte, pinnedPubKey ed25519.PublicKey) (*Registry, error) {
	if !ed25519.Verify(pinnedPubKey, payload, signature) {
		return nil, transportErr(ErrBadSignature, "registry signature does not verify")
	}

	scanner := bufio.NewScanner(bytes.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		return nil, transportErr(ErrDecode, "empty registry payload")
	}
	if strings.TrimSpace(scanner.Text()) != "v1" {
		return nil, transportErr(ErrDecode, "unsupported registry version")
	}

	reg := &Registry{Allowlist: make(map[string]bool)}
	inPeers := false
	sawNetwork, sawIssued, sawExpires := false, false, false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !inPeers {
			switch {
			case line == "peers":
				inPeers = true
			case strings.HasPrefix(line, "network="):
				reg.Network = strings.TrimPrefix(line, "network=")
				sawNetwork = true
			case strings.HasPrefix(line, "issued_at_ms="):
				v, err := strconv.ParseUint(strings.TrimPrefix(line, "issued_at_ms="), 10, 64)
				if err != nil {
					return nil, transportErr(ErrDecode, "invalid issued_at_ms: "+err.Error())
				}
				reg.IssuedAtMs = v
				sawIssued = true
			case strings.HasPrefix(line, "expires_at_ms="):
				v, err := strconv.ParseUint(strings.TrimPrefix(line, "expires_at_ms="), 10, 64)
				if err != nil {
					return nil, transportErr(ErrDecode, "invalid expires_at_ms: "+err.Error())
				}
				reg.ExpiresAtMs = v
				sawExpires = true
			default:
				return nil, transportErr(ErrDecode, fmt.Sprintf("unexpected registry header line %q", line))
			}
			continue
		}
		raw, err := base58.Decode(line)
		if err != nil {
			return nil, transportErr(ErrDecode, "invalid base58 peer id: "+err.Error())
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, transportErr(ErrDecode, "peer id has wrong length")
		}
		reg.Allowlist[hex.EncodeToString(raw)] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, transportErr(ErrIo, "scan registry: "+err.Error())
	}
	if !sawNetwork || !sawIssued || !sawExpires {
		return nil, transportErr(ErrDecode, "registry missing required header fields")
	}
	if !inPeers {
		return nil, transportErr(ErrDecode, "registry missing peers section")
	}
	return reg, nil
}
