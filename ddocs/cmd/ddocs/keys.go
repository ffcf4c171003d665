package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage API keys",
}

var keysRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register an API key for a portal",
	Long:  "Stores a hashed API key bound to --portal. Without --key a random key is generated and printed once.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		key, _ := cmd.Flags().GetString("key")
		portal, _ := cmd.Flags().GetString("portal")
		if portal == "" {
			return errors.New("--portal is required")
		}
		if key == "" {
			generated, err := generateKey()
			if err != nil {
				return err
			}
			key = generated
		}

		a, err := newApp(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer a.Close()

		stored, err := a.resolver.Register(cmd.Context(), key, portal)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "key id:  %s\n", stored.KeyID)
		fmt.Fprintf(out, "portal:  %s\n", stored.PortalAddress)
		fmt.Fprintf(out, "api key: %s\n", key)
		return nil
	},
}

func generateKey() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func init() {
	keysRegisterCmd.Flags().String("key", "", "API key to register (default: generated)")
	keysRegisterCmd.Flags().String("portal", "", "portal address the key resolves to")

	keysCmd.AddCommand(keysRegisterCmd)
	rootCmd.AddCommand(keysCmd)
}
