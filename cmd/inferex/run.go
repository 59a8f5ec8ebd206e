package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"inferex/internal/chain"
	"inferex/internal/keys"
	"inferex/internal/node"
	"inferex/internal/overlay"
	"inferex/pkg/config"
)

// nodeFlags holds the CLI surface common to every role subcommand, per
// spec.md §6: -k/--key-file, -a/--rpc-addr, -d/--dial-addr, plus the
// listen multiaddr and mining difficulty this reference binary needs to
// actually bind a transport and run end to end.
type nodeFlags struct {
	keyFile    string
	rpcAddr    string
	dialAddr   string
	listenAddr string
	difficulty int
}

// applyConfigDefaults fills any flag the user did not explicitly pass from
// cmd/config/default.yaml (and its INFEREX_ENV overlay, if any), and sets
// the standard logrus logger's level from the file's logging section; the
// logging.file setting is not applied. A missing or unreadable config file
// is not fatal: the binary must still run from flags alone, so this only
// logs at debug level and continues.
func applyConfigDefaults(cmd *cobra.Command, f *nodeFlags) {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Debugf("inferex: no config file loaded, using flags only: %v", err)
		return
	}
	if lvl, err := log.ParseLevel(cfg.Logging.Level); err == nil {
		log.SetLevel(lvl)
	}
	if !cmd.Flags().Changed("key-file") && cfg.Node.KeyFile != "" {
		f.keyFile = cfg.Node.KeyFile
	}
	if !cmd.Flags().Changed("difficulty") && cfg.Node.Difficulty != 0 {
		f.difficulty = cfg.Node.Difficulty
	}
	if !cmd.Flags().Changed("rpc-addr") && cfg.Network.RPCAddr != "" {
		f.rpcAddr = cfg.Network.RPCAddr
	}
	if !cmd.Flags().Changed("dial-addr") && cfg.Network.DialAddr != "" {
		f.dialAddr = cfg.Network.DialAddr
	}
	if !cmd.Flags().Changed("listen-addr") && cfg.Network.ListenAddr != "" {
		f.listenAddr = cfg.Network.ListenAddr
	}
}

func runNode(cmd *cobra.Command, kind node.NodeKind, kp *keys.Keypair, f nodeFlags) error {
	applyConfigDefaults(cmd, &f)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var bootstrapPeers []string
	if f.dialAddr != "" {
		bootstrapPeers = []string{f.dialAddr}
	}

	ov, err := overlay.NewLibp2pOverlay(ctx, kp, f.listenAddr, bootstrapPeers)
	if err != nil {
		return fmt.Errorf("inferex: start overlay: %w", err)
	}
	defer ov.Close()

	n := node.New(kp, ov, node.Config{Kind: kind, Difficulty: f.difficulty})

	ln, err := newRPCListener(f.rpcAddr)
	if err != nil {
		return fmt.Errorf("inferex: start rpc listener: %w", err)
	}
	defer ln.Close()
	go serveRPC(ctx, ln, n)

	fmt.Printf("inferex: %s node up, peer=%s, rpc=%s\n", kind, n.Overlay.LocalPeerID(), f.rpcAddr)
	return n.Run(ctx)
}

// loadOrBootstrapKeypair loads a keypair from a file, or for the boot role
// uses the fixed, well-known genesis keypair (spec.md §6 "Bootstrap
// identity").
func loadOrBootstrapKeypair(keyFile string, isBoot bool) (*keys.Keypair, error) {
	if isBoot {
		return chain.BootstrapKeypair(), nil
	}
	if keyFile == "" {
		return nil, fmt.Errorf("inferex: -k/--key-file is required")
	}
	return keys.LoadFromFile(keyFile)
}
