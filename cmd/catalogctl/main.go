package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"appcatalog.org/internal/auth"
	"appcatalog.org/internal/config"
	"appcatalog.org/internal/inventory"
	"appcatalog.org/internal/obs"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

// credentials are the login flags shared by every subcommand. Empty values
// fall back to the bootstrap identity from the configuration.
type credentials struct {
	username string
	password string
}

func (c *credentials) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&c.username, "username", "u", "", "Username to log in with (default: bootstrap username)")
	cmd.Flags().StringVarP(&c.password, "password", "p", "", "Password to log in with (default: bootstrap password)")
}

func newRootCmd(out io.Writer) *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "catalogctl",
		Short: "Entitlement engine for the app-store catalog",
		Long: `catalogctl boots an in-memory entitlement engine from configuration,
seeds the privileged identity and answers access questions against it.

Configuration is read from --config or $CATALOG_CONFIG, then overridden by
CATALOG_* environment variables.`,
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to the YAML configuration file")

	rootCmd.AddCommand(checkCmd(&configPath))
	rootCmd.AddCommand(tokenCmd(&configPath))
	rootCmd.AddCommand(inventoryCmd(&configPath))
	return rootCmd
}

// checkCmd creates the check subcommand
func checkCmd(configPath *string) *cobra.Command {
	var creds credentials
	var permission string

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Log in and report whether the session may use a permission",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()
			tok, err := a.login(ctx, creds)
			if err != nil {
				return err
			}
			decision := "denied"
			if a.engine.MayAccess(ctx, tok.ID, permission) {
				decision = "allowed"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", permission, decision)
			return nil
		},
	}
	creds.register(cmd)
	cmd.Flags().StringVar(&permission, "permission", "", "Permission id to check (required)")
	_ = cmd.MarkFlagRequired("permission")
	return cmd
}

// tokenCmd creates the token subcommand
func tokenCmd(configPath *string) *cobra.Command {
	var creds credentials

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Log in and print a signed bearer token",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()
			if a.cfg.Token.Secret == "" {
				return errors.New("token.secret is not configured")
			}
			tok, err := a.login(ctx, creds)
			if err != nil {
				return err
			}
			raw, err := a.engine.Bearer(tok)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), raw)
			return nil
		},
	}
	creds.register(cmd)
	return cmd
}

// inventoryCmd creates the inventory subcommand
func inventoryCmd(configPath *string) *cobra.Command {
	var creds credentials
	var withMetrics bool

	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Print users, services and entitlements",
		Long: `Print every user, service and entitlement known to the engine. Roles are
expanded into their descendants. Requires the view_inventory permission.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := setup(ctx, *configPath)
			if err != nil {
				return err
			}
			defer a.close()
			tok, err := a.login(ctx, creds)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err := inventory.Write(ctx, out, a.engine, tok.ID); err != nil {
				return err
			}
			if withMetrics {
				fmt.Fprintln(out)
				return obs.WriteText(out, prometheus.DefaultGatherer)
			}
			return nil
		},
	}
	creds.register(cmd)
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "Append auth metrics in Prometheus text format")
	return cmd
}

type app struct {
	cfg     *config.Config
	engine  *auth.Engine
	logger  *zap.Logger
	restore func()
}

// setup loads configuration, installs the logger and metrics, and returns a
// bootstrapped engine.
func setup(ctx context.Context, configPath string) (*app, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	logger, err := obs.NewLogger(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, logger: logger, restore: obs.SetLogger(logger)}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	opts, err := cfg.EngineOptions(logger)
	if err != nil {
		a.close()
		return nil, err
	}
	engine, err := auth.NewEngine(opts...)
	if err != nil {
		a.close()
		return nil, err
	}
	if _, err := engine.Bootstrap(ctx, cfg.Seed()); err != nil {
		a.close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	a.engine = engine
	logger.Debug("engine ready", zap.String("version", version))
	return a, nil
}

func (a *app) login(ctx context.Context, creds credentials) (auth.AccessToken, error) {
	if creds.username == "" {
		creds.username = a.cfg.Bootstrap.Username
		if creds.password == "" {
			creds.password = a.cfg.Bootstrap.Password
		}
	}
	return a.engine.Login(ctx, creds.username, creds.password)
}

func (a *app) close() {
	_ = a.logger.Sync()
	a.restore()
}
