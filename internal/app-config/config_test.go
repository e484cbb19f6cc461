package appconfig_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	appconfig "github.com/vulpemventures/cashew/internal/app-config"
	"github.com/vulpemventures/cashew/internal/core/domain"
	"github.com/vulpemventures/cashew/internal/infrastructure/mint/simulator"
)

const mintURL = "https://mint.cashew.test"

func TestAppConfig(t *testing.T) {
	ctx := context.Background()
	network := simulator.NewNetwork()
	_, err := network.AddMint(mintURL, simulator.MintConfig{AutoPay: true})
	require.NoError(t, err)

	cfg := &appconfig.AppConfig{
		RepoManagerType:  "inmemory",
		MintClientType:   "simulator",
		MintClientConfig: network,
		ScryptN:          1 << 10,
	}
	require.NoError(t, cfg.Validate())
	defer cfg.Close()

	walletSvc := cfg.WalletService()
	require.Same(t, walletSvc, cfg.WalletService())
	require.Same(t, cfg.QuoteTracker(), cfg.QuoteTracker())

	seedMgr := cfg.SeedManager()
	words, err := seedMgr.GenerateMnemonic(12)
	require.NoError(t, err)
	require.NoError(t, seedMgr.CreateWallet(ctx, words, "password"))
	require.NoError(t, seedMgr.Unlock(ctx, "password"))
	seed, err := seedMgr.Seed(ctx)
	require.NoError(t, err)

	require.NoError(t, walletSvc.Init(ctx, seed))
	_, err = walletSvc.AddMint(ctx, mintURL)
	require.NoError(t, err)

	quote, err := walletSvc.CreateMintQuote(ctx, mintURL, 21)
	require.NoError(t, err)
	amount, err := walletSvc.RedeemMintQuote(ctx, quote.ID)
	require.NoError(t, err)
	require.Equal(t, uint64(21), amount)

	total, err := walletSvc.GetTotalBalance(ctx)
	require.NoError(t, err)
	require.Equal(t, uint64(21), total[domain.DefaultUnit])

	_, err = cfg.BackupService()
	require.Error(t, err)

	info := cfg.BuildInfo()
	require.Equal(t, "dev", info.Version)
}

func TestInvalidAppConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  *appconfig.AppConfig
	}{
		{
			name: "missing_repo_manager_type",
			cfg:  &appconfig.AppConfig{MintClientType: "simulator"},
		},
		{
			name: "unknown_repo_manager_type",
			cfg: &appconfig.AppConfig{
				RepoManagerType: "mysql", MintClientType: "simulator",
			},
		},
		{
			name: "missing_badger_datadir",
			cfg: &appconfig.AppConfig{
				RepoManagerType: "badger", MintClientType: "simulator",
			},
		},
		{
			name: "unknown_mint_client_type",
			cfg: &appconfig.AppConfig{
				RepoManagerType: "inmemory", MintClientType: "grpc",
			},
		},
		{
			name: "invalid_simulator_config",
			cfg: &appconfig.AppConfig{
				RepoManagerType: "inmemory", MintClientType: "simulator",
				MintClientConfig: "network",
			},
		},
		{
			name: "tor_only_without_proxy",
			cfg: &appconfig.AppConfig{
				RepoManagerType: "inmemory", MintClientType: "http", TorOnly: true,
			},
		},
		{
			name: "auto_backup_without_relays",
			cfg: &appconfig.AppConfig{
				RepoManagerType: "inmemory", MintClientType: "simulator",
				AutoBackup: true,
			},
		},
		{
			name: "invalid_relay_url",
			cfg: &appconfig.AppConfig{
				RepoManagerType: "inmemory", MintClientType: "simulator",
				Relays: []string{"https://relay.cashew.test"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Error(t, tt.cfg.Validate())
		})
	}
}
