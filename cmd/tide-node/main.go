package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/tidechain/tide-node/consensus"
	"github.com/tidechain/tide-node/gossip"
	"github.com/tidechain/tide-node/keystore"
	"github.com/tidechain/tide-node/node"
	"github.com/tidechain/tide-node/node/store"
	"github.com/tidechain/tide-node/state"
)

type multiStringFlag []string

func (m *multiStringFlag) String() string {
	if m == nil {
		return ""
	}
	return strings.Join(*m, ",")
}

func (m *multiStringFlag) Set(value string) error {
	*m = append(*m, value)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	defaults := node.DefaultConfig()
	var peers, validators, allowlist multiStringFlag

	cfg := defaults
	fs := flag.NewFlagSet("tide-node", flag.ContinueOnError)
	fs.SetOutput(stderr)

	peerCSV := fs.String("peers", "", "bootstrap peers, comma-separated host:port")
	fs.Var(&peers, "peer", "single bootstrap peer host:port (repeatable)")
	fs.Var(&validators, "validator", "hex-encoded validator public key (repeatable)")
	fs.Var(&allowlist, "allow-peer", "hex-encoded allowed gossip peer id (repeatable)")
	fs.StringVar(&cfg.Network, "network", defaults.Network, "network name (devnet/testnet/mainnet)")
	fs.StringVar(&cfg.DataDir, "datadir", defaults.DataDir, "node data directory")
	fs.StringVar(&cfg.BindAddr, "bind", defaults.BindAddr, "bind address host:port")
	fs.StringVar(&cfg.LogLevel, "log-level", defaults.LogLevel, "log level: debug|info|warn|error")
	fs.StringVar(&cfg.Topic, "topic", defaults.Topic, "gossip topic string")
	fs.IntVar(&cfg.MaxPeers, "max-peers", defaults.MaxPeers, "max connected peers")
	fs.IntVar(&cfg.PeerRatePerSec, "peer-rate", defaults.PeerRatePerSec, "per-peer message rate per second")
	fs.IntVar(&cfg.MaxPeersPerIP, "max-peers-per-ip", defaults.MaxPeersPerIP, "max connected peers sharing one IP")
	passphraseFlag := fs.String("key-passphrase", "", "validator key passphrase (prefer TIDE_KEY_PASSPHRASE env)")
	dryRun := fs.Bool("dry-run", false, "print effective config and exit")
	fs.BoolVar(&cfg.ProductionProfile, "production", defaults.ProductionProfile, "enable production profile (require epoch, drop legacy votes at transport)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	cfg.Peers = node.NormalizePeers(append([]string{*peerCSV}, peers...)...)
	cfg.Validators = []string(validators)
	cfg.Allowlist = []string(allowlist)

	if err := node.ValidateConfig(cfg); err != nil {
		fmt.Fprintf(stderr, "invalid config: %v\n", err)
		return 2
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}))

	networkDir := store.NetworkDir(cfg.DataDir, cfg.Network)
	if err := store.EnsureLayout(networkDir); err != nil {
		fmt.Fprintf(stderr, "layout setup failed: %v\n", err)
		return 2
	}

	passphrase := *passphraseFlag
	ks, err := keystore.Open(store.KeystoreDir(networkDir), passphrase, 10_000)
	if err != nil {
		fmt.Fprintf(stderr, "keystore open failed: %v\n", err)
		return 2
	}
	logger.Info("keystore opened", "public_key", hex.EncodeToString(ks.PublicKey()))

	stateStore, err := state.Open(store.StateDBPath(networkDir))
	if err != nil {
		fmt.Fprintf(stderr, "state store open failed: %v\n", err)
		return 2
	}
	defer stateStore.Close()

	root, err := stateStore.StateRoot()
	if err != nil {
		fmt.Fprintf(stderr, "state root computation failed: %v\n", err)
		return 2
	}
	logger.Info("state store opened", "root", hex.EncodeToString(root[:]))

	manifest, err := store.ReadManifest(networkDir)
	if err != nil {
		manifest = &store.Manifest{SchemaVersion: store.SchemaVersionV1, Network: cfg.Network}
		if err := store.WriteManifestAtomic(networkDir, manifest); err != nil {
			fmt.Fprintf(stderr, "manifest init failed: %v\n", err)
			return 2
		}
	}
	logger.Info("manifest loaded", "last_finalized_height", manifest.LastFinalizedHeight)

	validatorIDs, err := parseValidatorIDs(cfg.Validators)
	if err != nil {
		fmt.Fprintf(stderr, "invalid validators: %v\n", err)
		return 2
	}
	tideConfig := consensus.DefaultTideConfig(validatorIDs)
	tideConfig.RequireEpoch = cfg.ProductionProfile
	finalizer := consensus.NewFinalizer(tideConfig, nil, func() uint64 { return uint64(time.Now().UnixMilli()) })
	logger.Info("finalizer ready", "validators", len(validatorIDs), "threshold", finalizer.Threshold())

	identity, err := gossip.LoadOrCreateIdentity(store.GossipDir(networkDir))
	if err != nil {
		fmt.Fprintf(stderr, "gossip identity failed: %v\n", err)
		return 2
	}
	logger.Info("gossip identity ready", "peer_id", hex.EncodeToString(identity.Public))

	transportCfg := gossip.DefaultConfig(cfg.Topic)
	transportCfg.MaxPeersPerIP = cfg.MaxPeersPerIP
	transportCfg.BasePeerRatePerSec = cfg.PeerRatePerSec
	transportCfg.ProductionProfile = cfg.ProductionProfile
	if len(cfg.Allowlist) > 0 {
		transportCfg.Allowlist = make(map[string]bool, len(cfg.Allowlist))
		for _, a := range cfg.Allowlist {
			transportCfg.Allowlist[strings.ToLower(a)] = true
		}
	}
	if cfg.Registry != nil {
		pinned, err := hex.DecodeString(cfg.Registry.PinnedPubKey)
		if err != nil || len(pinned) != ed25519.PublicKeySize {
			fmt.Fprintf(stderr, "registry pinned key invalid\n")
			return 2
		}
		payload, sig, err := node.ReadRegistryFiles(networkDir, cfg.Registry.Path)
		if err != nil {
			fmt.Fprintf(stderr, "registry read failed: %v\n", err)
			return 2
		}
		reg, err := gossip.VerifyRegistry(payload, sig, ed25519.PublicKey(pinned))
		if err != nil {
			fmt.Fprintf(stderr, "registry verification failed: %v\n", err)
			return 2
		}
		transportCfg.Allowlist = reg.Allowlist
		logger.Info("registry verified", "network", reg.Network, "peers", len(reg.Allowlist))
	}

	transport := gossip.NewTransport(transportCfg, identity, finalizer)
	logger.Info("gossip transport ready", "topic", transportCfg.Topic, "allowlist_size", len(transportCfg.Allowlist))
	_ = transport

	if err := printConfig(stdout, cfg); err != nil {
		fmt.Fprintf(stderr, "config encode failed: %v\n", err)
		return 1
	}
	if *dryRun {
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("tide-node running", "network", cfg.Network, "bind", cfg.BindAddr)
	<-ctx.Done()
	logger.Info("tide-node stopped")
	return 0
}

func parseValidatorIDs(hexKeys []string) ([]consensus.ValidatorId, error) {
	out := make([]consensus.ValidatorId, 0, len(hexKeys))
	for _, h := range hexKeys {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return nil, fmt.Errorf("%q: %w", h, err)
		}
		if len(raw) != ed25519.PublicKeySize {
			return nil, fmt.Errorf("%q: expected %d bytes, got %d", h, ed25519.PublicKeySize, len(raw))
		}
		out = append(out, consensus.ValidatorId(raw))
	}
	return out, nil
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printConfig(w io.Writer, cfg node.Config) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(cfg)
}
