package main

import (
	"github.com/spf13/cobra"

	"inferex/internal/node"
)

func addNodeFlags(cmd *cobra.Command, f *nodeFlags) {
	cmd.Flags().StringVarP(&f.keyFile, "key-file", "k", "", "path to a 32-byte Ed25519 seed file")
	cmd.Flags().StringVarP(&f.rpcAddr, "rpc-addr", "a", "127.0.0.1:9944", "JSON-RPC TCP listen address")
	cmd.Flags().StringVarP(&f.dialAddr, "dial-addr", "d", "", "bootstrap peer multiaddr to dial on startup")
	cmd.Flags().StringVarP(&f.listenAddr, "listen-addr", "l", "/ip4/0.0.0.0/udp/0/quic-v1", "libp2p listen multiaddr")
	cmd.Flags().IntVar(&f.difficulty, "difficulty", 2, "proof-of-work difficulty (hex-zero prefix length)")
}

var clientFlags nodeFlags
var clientCmd = &cobra.Command{
	Use:   "client",
	Short: "run a client node",
	RunE: func(cmd *cobra.Command, _ []string) error {
		kp, err := loadOrBootstrapKeypair(clientFlags.keyFile, false)
		if err != nil {
			return err
		}
		return runNode(cmd, node.KindClient, kp, clientFlags)
	},
}

var providerFlags nodeFlags
var providerCmd = &cobra.Command{
	Use:   "provider",
	Short: "run a provider node",
	RunE: func(cmd *cobra.Command, _ []string) error {
		kp, err := loadOrBootstrapKeypair(providerFlags.keyFile, false)
		if err != nil {
			return err
		}
		return runNode(cmd, node.KindProvider, kp, providerFlags)
	},
}

var minerFlags nodeFlags
var minerCmd = &cobra.Command{
	Use:   "miner",
	Short: "run a miner/validator node",
	RunE: func(cmd *cobra.Command, _ []string) error {
		kp, err := loadOrBootstrapKeypair(minerFlags.keyFile, false)
		if err != nil {
			return err
		}
		return runNode(cmd, node.KindMiner, kp, minerFlags)
	},
}

var bootFlags nodeFlags
var bootCmd = &cobra.Command{
	Use:   "boot",
	Short: "run the well-known bootstrap node (miner role, fixed genesis keypair)",
	RunE: func(cmd *cobra.Command, _ []string) error {
		kp, err := loadOrBootstrapKeypair("", true)
		if err != nil {
			return err
		}
		return runNode(cmd, node.KindMiner, kp, bootFlags)
	},
}

func init() {
	addNodeFlags(clientCmd, &clientFlags)
	addNodeFlags(providerCmd, &providerFlags)
	addNodeFlags(minerCmd, &minerFlags)
	addNodeFlags(bootCmd, &bootFlags)
}
