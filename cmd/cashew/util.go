package main

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	appconfig "github.com/vulpemventures/cashew/internal/app-config"
	"github.com/vulpemventures/cashew/internal/config"
	"github.com/vulpemventures/cashew/internal/core/application"
	postgresdb "github.com/vulpemventures/cashew/internal/infrastructure/storage/db/postgres"
)

var colorRed = string("\033[31m")

// decimals of the units whose amounts aren't expressed in their smallest
// denomination.
var unitDecimals = map[string]int32{
	"usd": 2,
	"eur": 2,
}

func newAppConfig() (*appconfig.AppConfig, error) {
	var repoConfig interface{} = dbDir
	if dbType == "postgres" {
		repoConfig = postgresdb.DbConfig{
			DbUser:             config.GetString(config.DbUserKey),
			DbPassword:         config.GetString(config.DbPassKey),
			DbHost:             config.GetString(config.DbHostKey),
			DbPort:             config.GetInt(config.DbPortKey),
			DbName:             config.GetString(config.DbNameKey),
			MigrationSourceURL: config.GetString(config.DbMigrationPath),
		}
	}

	cfg := &appconfig.AppConfig{
		Version:           version,
		Commit:            commit,
		Date:              date,
		Unit:              unit,
		MintTimeout:       mintTimeout,
		TorProxy:          torProxy,
		TorOnly:           torOnly,
		AuthToken:         authToken,
		Relays:            relays,
		RelayTimeout:      relayTimeout,
		AutoBackup:        autoBackup,
		QuoteRateLimit:    quoteRateLimit,
		ScryptN:           scryptN,
		RepoManagerType:   dbType,
		RepoManagerConfig: repoConfig,
		MintClientType:    mintClientType,
		Registerer:        prometheus.DefaultRegisterer,
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// getWallet unlocks the seed vault and returns the initialized wallet. The
// returned cleanup func releases the storage.
func getWallet(
	ctx context.Context,
) (*appconfig.AppConfig, *application.MultiMintWallet, func(), error) {
	cfg, err := newAppConfig()
	if err != nil {
		return nil, nil, nil, err
	}
	cleanup := func() { cfg.Close() }

	seedMgr := cfg.SeedManager()
	if !seedMgr.IsInitialized(ctx) {
		cleanup()
		return nil, nil, nil, fmt.Errorf("wallet not initialized, run 'cashew init'")
	}
	if len(password) <= 0 {
		cleanup()
		return nil, nil, nil, fmt.Errorf("missing password")
	}
	if err := seedMgr.Unlock(ctx, password); err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	seed, err := seedMgr.Seed(ctx)
	if err != nil {
		cleanup()
		return nil, nil, nil, err
	}

	wallet := cfg.WalletService()
	if err := wallet.Init(ctx, seed); err != nil {
		cleanup()
		return nil, nil, nil, err
	}
	return cfg, wallet, cleanup, nil
}

func parseAmount(str string) (uint64, error) {
	amount, err := strconv.ParseUint(str, 10, 64)
	if err != nil || amount == 0 {
		return 0, fmt.Errorf("invalid amount %q, must be a positive integer", str)
	}
	return amount, nil
}

// formatAmount returns the amount in its unit, ie. 1050 usd cents are
// formatted as "10.50 usd".
func formatAmount(amount uint64, unit string) string {
	d := decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -unitDecimals[unit])
	return fmt.Sprintf("%s %s", d.StringFixed(unitDecimals[unit]), unit)
}

func printJSON(v interface{}) error {
	buf, err := json.MarshalIndent(v, "", "   ")
	if err != nil {
		return fmt.Errorf("failed to marshal response: %s", err)
	}
	fmt.Println(string(buf))
	return nil
}

func printErr(err error) {
	msg := fmt.Sprintf("%s%s", colorRed, capitalize(err.Error()))
	fmt.Fprintln(os.Stderr, msg)
}

func capitalize(s string) string {
	if len(s) <= 0 {
		return s
	}
	ss := strings.ToUpper(s[0:1])
	ss += s[1:]
	return ss
}
