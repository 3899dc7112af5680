// Package cli wires the gateway's command line.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sandeepkv93/checkin-gateway/internal/config"
	"github.com/sandeepkv93/checkin-gateway/internal/di"
	"github.com/sandeepkv93/checkin-gateway/internal/observability"
	"github.com/sandeepkv93/checkin-gateway/internal/security"
	"github.com/sandeepkv93/checkin-gateway/internal/tools/common"
)

type rootOptions struct {
	envFile string
}

func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "checkin-gateway",
		Short:         "OAuth-protected location check-in gateway",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "env file loaded before reading configuration")
	cmd.AddCommand(newServeCommand(opts), newConfigCommand(opts), newTokenCommand(opts))
	return cmd
}

// loadConfig returns the parsed config even when validation fails; the
// caller decides whether problems are fatal.
func loadConfig(opts *rootOptions) (config.Config, error) {
	if err := common.LoadEnvFile(opts.envFile); err != nil {
		return config.Config{}, err
	}
	return config.Load()
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			var verr *config.ValidationError
			switch {
			case err == nil:
			case errors.As(err, &verr) && !strict:
			default:
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger, lp, lerr := observability.NewLogger(ctx, cfg, os.Stdout)
			if lerr != nil {
				return fmt.Errorf("init logger: %w", lerr)
			}
			if verr != nil {
				logger.Error("configuration invalid, serving health endpoint only", "problems", verr.Problems)
			}

			a, cleanup, err := di.InitializeApp(ctx, cfg, logger, lp)
			if err != nil {
				return fmt.Errorf("initialize app: %w", err)
			}
			defer cleanup()
			return a.Run(ctx)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit instead of serving in degraded mode when configuration is invalid")
	return cmd
}

func newConfigCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Inspect configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Print the configuration report and fail on problems",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			var verr *config.ValidationError
			if err != nil && !errors.As(err, &verr) {
				return err
			}
			return writeReport(cmd.OutOrStdout(), cfg, config.Problems(err))
		},
	})
	return cmd
}

type report struct {
	OK       bool           `json:"ok"`
	Checks   []config.Check `json:"checks"`
	Problems []string       `json:"problems,omitempty"`
}

func writeReport(out io.Writer, cfg config.Config, problems []string) error {
	rep := report{OK: len(problems) == 0, Checks: cfg.Diagnose(), Problems: problems}
	for _, c := range rep.Checks {
		if !c.Passed() {
			rep.OK = false
		}
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(rep); err != nil {
		return err
	}
	if !rep.OK {
		return errors.New("configuration invalid")
	}
	return nil
}

func newTokenCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Work with workflow tokens"}
	cmd.AddCommand(&cobra.Command{
		Use:   "verify <token>",
		Short: "Verify a token with the configured key and print its claims",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			var verr *config.ValidationError
			if err != nil && !errors.As(err, &verr) {
				return err
			}
			return verifyToken(cmd.OutOrStdout(), cfg, args[0])
		},
	})
	return cmd
}

func verifyToken(out io.Writer, cfg config.Config, raw string) error {
	signer, err := security.NewTokenSigner(cfg)
	if err != nil {
		return err
	}
	claims, err := signer.Verify(raw)
	if err != nil {
		return fmt.Errorf("verify token: %w", err)
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(claims)
}

// Execute runs the root command and maps failures to exit code 1.
func Execute(ctx context.Context) int {
	if err := NewRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}
