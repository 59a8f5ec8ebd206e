package main

import (
	"crypto/hmac"
	"crypto/sha512"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	bip39 "github.com/tyler-smith/go-bip39"
)

// keygenHMACKey domain-separates this tool's seed expansion from any other
// HMAC-SHA512 use in the stack, grounded on core/wallet.go's masterHMACKey
// constant but simplified: a marketplace node owns one flat Ed25519 keypair
// for its process lifetime, not a hierarchical wallet, so only the first
// derivation step (I = HMAC-SHA512(key, seed)) is needed.
const keygenHMACKey = "inferex seed v1"

// expandSeed derives a 32-byte Ed25519 seed from BIP-39 seed bytes of any
// length, the same HMAC-SHA512 step core/wallet.go's NewHDWalletFromSeed
// uses for its master key, truncated to the half ed25519 needs.
func expandSeed(bip39Seed []byte) []byte {
	h := hmac.New(sha512.New, []byte(keygenHMACKey))
	h.Write(bip39Seed)
	return h.Sum(nil)[:32]
}

var (
	keygenOut      string
	keygenMnemonic string
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "generate or import a node keypair and write its 32-byte seed file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		var bip39Seed []byte
		if keygenMnemonic != "" {
			if !bip39.IsMnemonicValid(keygenMnemonic) {
				return fmt.Errorf("keygen: invalid mnemonic checksum")
			}
			bip39Seed = bip39.NewSeed(keygenMnemonic, "")
		} else {
			entropy, err := bip39.NewEntropy(128)
			if err != nil {
				return fmt.Errorf("keygen: entropy: %w", err)
			}
			mnemonic, err := bip39.NewMnemonic(entropy)
			if err != nil {
				return fmt.Errorf("keygen: mnemonic: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mnemonic (store it securely, it will not be shown again): %s\n", mnemonic)
			bip39Seed = bip39.NewSeed(mnemonic, "")
		}

		seed := expandSeed(bip39Seed)
		if err := os.WriteFile(keygenOut, seed, 0600); err != nil {
			return fmt.Errorf("keygen: write %s: %w", keygenOut, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "wrote key file %s\n", keygenOut)
		return nil
	},
}

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "node.key", "output path for the raw 32-byte seed")
	keygenCmd.Flags().StringVarP(&keygenMnemonic, "mnemonic", "m", "", "import an existing BIP-39 mnemonic instead of generating one")
}
