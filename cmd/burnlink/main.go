// SPDX-FileCopyrightText: Copyright 2025 Carabiner Systems, Inc
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"github.com/carabiner-dev/burnlink"
	"github.com/carabiner-dev/burnlink/internal/telemetry"
	"github.com/carabiner-dev/burnlink/options"
	"github.com/carabiner-dev/burnlink/secrets"
)

const (
	version = "0.1.0"

	envVarPassphrase = "BURNLINK_PASSPHRASE"

	// Largest secret read from stdin
	maxSecretSize = 64 * 1024
)

const examples = `  # Share a secret for one day, destroyed after the first read
  burnlink create --ttl 24h --burn "my-secret-key"

  # Read the secret to share from stdin
  cat id_ed25519 | burnlink create --burn

  # Retrieve a secret from its link
  burnlink get "http://localhost:3000/#id=0123456789abcdef0123456789abcdef"

The passphrase is read from --passphrase or the BURNLINK_PASSPHRASE
environment variable. It never leaves this machine, share it with the
recipient through a different channel than the link.`

func main() {
	clientOpts := *options.DefaultClient
	if server := os.Getenv(options.EnvVarServerURL); server != "" {
		clientOpts.ServerURL = server
	}

	if err := rootCmd(&clientOpts).ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func rootCmd(clientOpts *options.Client) *cobra.Command {
	cmd := &cobra.Command{
		Use:          "burnlink",
		Short:        "End-to-end encrypted, self destructing secret links",
		Example:      examples,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := "warn"
			if clientOpts.Debug {
				level = "debug"
			}
			logger := telemetry.NewLogger(os.Stderr, telemetry.ParseLevel(level))
			cmd.SetContext(clog.WithLogger(cmd.Context(), logger))
		},
	}

	cmd.PersistentFlags().StringVar(&clientOpts.ServerURL, "server", clientOpts.ServerURL, "Server URL (or set BURNLINK_SERVER)")
	cmd.PersistentFlags().DurationVar(&clientOpts.Timeout, "timeout", clientOpts.Timeout, "Request timeout")
	cmd.PersistentFlags().BoolVar(&clientOpts.Debug, "debug", false, "Enable debug output")

	cmd.AddCommand(createCmd(clientOpts))
	cmd.AddCommand(getCmd(clientOpts))
	cmd.AddCommand(pingCmd(clientOpts))
	cmd.AddCommand(versionCmd())
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "burnlink version %s\n", version)
		},
	}
}

func createCmd(clientOpts *options.Client) *cobra.Command {
	var (
		passphrase string
		ttl        time.Duration
		burn       bool
	)

	cmd := &cobra.Command{
		Use:   "create [secret]",
		Short: "Encrypt a secret, upload it and print its link",
		Long: `Encrypt a secret locally and upload the ciphertext. The secret is taken
from the argument or, when missing or "-", from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := readSecret(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			pass, err := resolvePassphrase(passphrase)
			if err != nil {
				return err
			}

			client := burnlink.NewClient(clientOpts)
			id, err := client.Create(
				cmd.Context(), secret, pass,
				options.WithTTL(int64(ttl/time.Second)),
				options.WithBurnAfterRead(burn),
			)
			if err != nil {
				return fmt.Errorf("creating secret: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), client.Link(id))
			return nil
		},
	}

	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Passphrase to encrypt the secret (or set BURNLINK_PASSPHRASE)")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Duration(options.DefaultCreate.TtlSeconds)*time.Second, "Lifetime of the secret: 30m, 1h, 24h or 168h")
	cmd.Flags().BoolVar(&burn, "burn", options.DefaultCreate.BurnAfterRead, "Destroy the secret after the first read")
	return cmd
}

func getCmd(clientOpts *options.Client) *cobra.Command {
	var passphrase string

	cmd := &cobra.Command{
		Use:   "get <link|id>",
		Short: "Download and decrypt a secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := burnlink.ParseLink(args[0])
			if err != nil {
				return err
			}

			pass, err := resolvePassphrase(passphrase)
			if err != nil {
				return err
			}

			client := burnlink.NewClient(clientOpts)
			secret, err := client.Get(cmd.Context(), id, pass)
			switch {
			case errors.Is(err, secrets.ErrNotFound):
				return errors.New("secret not found: it expired, was already read or never existed")
			case errors.Is(err, burnlink.ErrDecrypt):
				return errors.New("unable to decrypt the secret, check the passphrase")
			case err != nil:
				return fmt.Errorf("getting secret: %w", err)
			}

			_, err = cmd.OutOrStdout().Write(secret)
			return err
		},
	}

	cmd.Flags().StringVar(&passphrase, "passphrase", "", "Passphrase to decrypt the secret (or set BURNLINK_PASSPHRASE)")
	return cmd
}

func pingCmd(clientOpts *options.Client) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check if the server is up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := burnlink.NewClient(clientOpts).Ping(cmd.Context()); err != nil {
				return fmt.Errorf("server at %s is not responding: %w", clientOpts.ServerURL, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Server at %s is up\n", clientOpts.ServerURL)
			return nil
		},
	}
}

// readSecret returns the secret from the arguments or stdin
func readSecret(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 1 && args[0] != "-" {
		return []byte(args[0]), nil
	}

	data, err := io.ReadAll(io.LimitReader(stdin, maxSecretSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading secret from stdin: %w", err)
	}
	if len(data) > maxSecretSize {
		return nil, fmt.Errorf("secret is larger than %d bytes", maxSecretSize)
	}
	if len(data) == 0 {
		return nil, errors.New("no secret provided")
	}
	return data, nil
}

func resolvePassphrase(flagValue string) (string, error) {
	pass := flagValue
	if pass == "" {
		pass = strings.TrimSpace(os.Getenv(envVarPassphrase))
	}
	if pass == "" {
		return "", fmt.Errorf("a passphrase is required, use --passphrase or set %s", envVarPassphrase)
	}
	return pass, nil
}
