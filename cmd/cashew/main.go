package main

import (
	"fmt"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/vulpemventures/cashew/internal/config"
)

var (
	// Build info.
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// Config from env vars.
	dbType            = config.GetString(config.DatabaseTypeKey)
	mintClientType    = config.GetString(config.MintClientTypeKey)
	unit              = config.GetString(config.UnitKey)
	logLevel          = config.GetInt(config.LogLevelKey)
	datadir           = config.GetDatadir()
	dbDir             = filepath.Join(datadir, config.DbLocation)
	profilerDir       = filepath.Join(datadir, config.ProfilerLocation)
	mintTimeout       = config.GetDuration(config.MintTimeoutKey)
	torProxy          = config.GetString(config.TorProxyKey)
	torOnly           = config.GetBool(config.TorOnlyKey)
	authToken         = config.GetString(config.AuthTokenKey)
	relays            = config.GetStringSlice(config.RelaysKey)
	relayTimeout      = config.GetDuration(config.RelayTimeoutKey)
	autoBackup        = config.GetBool(config.AutoBackupKey)
	quotePollInterval = config.GetDuration(config.QuotePollIntervalKey)
	quoteRateLimit    = config.GetInt(config.QuoteRateLimitKey)
	scryptN           = config.GetInt(config.ScryptNKey)
	noProfiler        = config.GetBool(config.NoProfilerKey)
	profilerPort      = config.GetInt(config.ProfilerPortKey)
	statsInterval     = config.GetDuration(config.StatsIntervalKey)

	password string

	rootCmd = &cobra.Command{
		Use:   "cashew",
		Short: "CLI for cashew ecash wallet",
		Long: "This CLI lets you hold ecash from multiple mints, send and " +
			"receive it, and move it in and out through lightning",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			log.SetLevel(log.Level(logLevel))
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       formatVersion(),
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(
		&password, "password", os.Getenv("CASHEW_PASSWORD"),
		"password unlocking the wallet, defaults to $CASHEW_PASSWORD",
	)
	rootCmd.AddCommand(
		genSeedCmd, initCmd, mintCmd, balanceCmd, sendCmd, receiveCmd,
		invoiceCmd, quoteCmd, payCmd, historyCmd, backupCmd, watchCmd, configCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printErr(err)
		os.Exit(1)
	}
}

func formatVersion() string {
	return fmt.Sprintf(
		"\nVersion: %s\nCommit: %s\nDate: %s", version, commit, date,
	)
}
