// Package agent wires the three front-ends of the monitoring suite into one
// binary: the Prometheus exporter, the load-balancer agent check and the
// one-shot plugin checks.
package agent

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dirsrv-monitor/config"
	"github.com/dirsrv-monitor/internal/ldapx"
	"github.com/dirsrv-monitor/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:           "dirsrv-monitor",
	Short:         "Monitoring suite for a 389-DS compatible directory cluster",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Path to the TOML configuration file")
	initLdapFlags(rootCmd)
	initLogFlags(rootCmd)
	initDsctlFlags(rootCmd)
	initExportFlags(exportCmd)
	initHaproxyFlags(haproxyCmd)

	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(haproxyCmd)
	rootCmd.AddCommand(checkCmd)
}

// setup loads the configuration, brings up logging and resolves the default
// query base when none is configured. Every subcommand starts here.
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.LoadWithCli(cmd)
	if err != nil {
		return nil, err
	}

	if err := logger.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if cfg.Ldap.DefaultBase == "" {
		base, err := ldapx.DetectBase(cmd.Context(), cfg.Ldap)
		if err != nil {
			return nil, fmt.Errorf("detect default base: %w", err)
		}
		cfg.Ldap.DefaultBase = base
		logger.Info("default query base detected", zap.String("base", base))
	}

	return cfg, nil
}

// fatal reports a startup failure and exits. Daemons must not limp along on
// half-working configuration.
func fatal(err error) {
	logger.Error("startup failed", zap.Error(err))
	_ = logger.Sync()
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
