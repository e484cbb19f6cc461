package appconfig

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/vulpemventures/cashew/internal/config"
	"github.com/vulpemventures/cashew/internal/core/application"
	"github.com/vulpemventures/cashew/internal/core/ports"
	"github.com/vulpemventures/cashew/internal/infrastructure/auth"
	"github.com/vulpemventures/cashew/internal/infrastructure/blinder/bdhke"
	httpmint "github.com/vulpemventures/cashew/internal/infrastructure/mint/http"
	"github.com/vulpemventures/cashew/internal/infrastructure/mint/simulator"
	cypher "github.com/vulpemventures/cashew/internal/infrastructure/mnemonic-cypher/aes128"
	mnemonic_store "github.com/vulpemventures/cashew/internal/infrastructure/mnemonic-store/in-memory"
	nostrrelay "github.com/vulpemventures/cashew/internal/infrastructure/relay/nostr"
	dbbadger "github.com/vulpemventures/cashew/internal/infrastructure/storage/db/badger"
	"github.com/vulpemventures/cashew/internal/infrastructure/storage/db/inmemory"
	postgresdb "github.com/vulpemventures/cashew/internal/infrastructure/storage/db/postgres"
	"github.com/vulpemventures/cashew/internal/infrastructure/transport"
)

// AppConfig is the struct holding all configuration options for every
// application service (seed manager, wallet, quote tracker, backup and
// notification). This data structure acts also as a factory of the mentioned
// application services and the portable services used by them.
// Public config args:
//   - Unit - (optional) The unit used when none is given (defaults to sat).
//   - RepoManagerType - (required) One of the supported repository manager types.
//   - RepoManagerConfig - (optional) Custom config args for the repository manager based on its type.
//   - MintClientType - (required) One of the supported mint client types.
//   - MintClientConfig - (optional) The *simulator.Network to use with the simulator mint client.
//   - MintTimeout - (optional) The timeout of every request made to a mint.
//   - TorProxy, TorOnly - (optional) The SOCKS5 proxy to reach onion mints, and whether to use it for every mint.
//   - AuthToken - (optional) The clear auth token sent to mints.
//   - Relays, RelayTimeout - (optional) The nostr relays used for backups.
//   - AutoBackup - (optional) Whether to publish backups whenever the wallet changes.
//   - QuoteRateLimit - (optional) The max requests per second made to mints while polling quotes.
//   - ScryptN - (optional) The cost of the key stretching of the wallet password.
//   - Registerer - (optional) The prometheus registerer of the mint and relay metrics.
type AppConfig struct {
	Version string
	Commit  string
	Date    string

	Unit           string
	MintTimeout    time.Duration
	TorProxy       string
	TorOnly        bool
	AuthToken      string
	Relays         []string
	RelayTimeout   time.Duration
	AutoBackup     bool
	QuoteRateLimit int
	ScryptN        int

	RepoManagerType   string
	RepoManagerConfig interface{}
	MintClientType    string
	MintClientConfig  interface{}
	Registerer        prometheus.Registerer

	rm          ports.RepoManager
	mintFactory ports.MintFactory
	relay       ports.Relay
	seedMgr     *application.SeedManager
	registry    *application.MintRegistry
	quoteTrk    *application.QuoteTracker
	walletSvc   *application.MultiMintWallet
	backupSvc   *application.BackupService
	notifySvc   *application.NotificationService
}

func (c *AppConfig) Validate() error {
	if len(c.RepoManagerType) == 0 {
		return fmt.Errorf("missing repo manager type")
	}
	if _, ok := config.SupportedDbs[c.RepoManagerType]; !ok {
		return fmt.Errorf(
			"repo manager type not supported, must be one of: %s",
			config.SupportedDbs,
		)
	}
	if len(c.MintClientType) == 0 {
		return fmt.Errorf("missing mint client type")
	}
	if _, ok := config.SupportedMintClients[c.MintClientType]; !ok {
		return fmt.Errorf(
			"mint client type not supported, must be one of: %s",
			config.SupportedMintClients,
		)
	}
	if c.AutoBackup && len(c.Relays) <= 0 {
		return fmt.Errorf("auto backup requires at least one relay")
	}
	if _, err := c.repoManager(); err != nil {
		return err
	}
	if _, err := c.mintClientFactory(); err != nil {
		return err
	}
	if len(c.Relays) > 0 {
		if _, err := c.backupRelay(); err != nil {
			return err
		}
	}

	return nil
}

func (c *AppConfig) RepoManager() ports.RepoManager {
	return c.rm
}

func (c *AppConfig) MintFactory() ports.MintFactory {
	return c.mintFactory
}

func (c *AppConfig) SeedManager() *application.SeedManager {
	return c.seedManager()
}

func (c *AppConfig) WalletService() *application.MultiMintWallet {
	return c.walletService()
}

func (c *AppConfig) QuoteTracker() *application.QuoteTracker {
	return c.quoteTracker()
}

// BackupService returns an error if no relay is configured.
func (c *AppConfig) BackupService() (*application.BackupService, error) {
	return c.backupService()
}

func (c *AppConfig) NotificationService() *application.NotificationService {
	return c.notificationService()
}

func (c *AppConfig) BuildInfo() application.BuildInfo {
	return c.buildInfo()
}

// Close releases the connections to the database and to the relays.
func (c *AppConfig) Close() {
	if c.relay != nil {
		c.relay.Close()
	}
	if c.rm != nil {
		c.rm.Close()
	}
}

func (c *AppConfig) repoManager() (ports.RepoManager, error) {
	if c.rm != nil {
		return c.rm, nil
	}

	switch c.RepoManagerType {
	case "inmemory":
		c.rm = inmemory.NewRepoManager()
		return c.rm, nil
	case "badger":
		if c.RepoManagerConfig == nil {
			return nil, fmt.Errorf("missing repo manager config args")
		}
		datadir, ok := c.RepoManagerConfig.(string)
		if !ok {
			return nil, fmt.Errorf("invalid repo manager config type, must be string")
		}
		rm, err := dbbadger.NewRepoManager(datadir, log.New())
		if err != nil {
			return nil, err
		}
		c.rm = rm
		return c.rm, nil
	case "postgres":
		dbConfig, ok := c.RepoManagerConfig.(postgresdb.DbConfig)
		if !ok {
			return nil, fmt.Errorf("invalid repo manager config type, must be postgresdb.DbConfig")
		}

		rm, err := postgresdb.NewRepoManager(dbConfig)
		if err != nil {
			return nil, err
		}

		c.rm = rm
		return c.rm, nil
	default:
		return nil, fmt.Errorf("unknown repo manager type")
	}
}

func (c *AppConfig) mintClientFactory() (ports.MintFactory, error) {
	if c.mintFactory != nil {
		return c.mintFactory, nil
	}

	switch c.MintClientType {
	case "http":
		tr, err := transport.NewTransport(c.TorProxy, c.TorOnly)
		if err != nil {
			return nil, err
		}
		var metrics *httpmint.Metrics
		if c.Registerer != nil {
			if metrics, err = httpmint.NewMetrics(c.Registerer); err != nil {
				return nil, err
			}
		}
		factory, err := httpmint.NewMintFactory(
			tr, auth.NewClearAuthProvider(c.AuthToken), bdhke.NewBlinder(),
			c.MintTimeout, metrics,
		)
		if err != nil {
			return nil, err
		}
		c.mintFactory = factory
		return c.mintFactory, nil
	case "simulator":
		if c.MintClientConfig == nil {
			c.mintFactory = simulator.NewNetwork()
			return c.mintFactory, nil
		}
		network, ok := c.MintClientConfig.(*simulator.Network)
		if !ok {
			return nil, fmt.Errorf("invalid mint client config type, must be *simulator.Network")
		}
		c.mintFactory = network
		return c.mintFactory, nil
	default:
		return nil, fmt.Errorf("unknown mint client type")
	}
}

func (c *AppConfig) backupRelay() (ports.Relay, error) {
	if c.relay != nil {
		return c.relay, nil
	}
	if len(c.Relays) <= 0 {
		return nil, fmt.Errorf("no relay configured")
	}

	var metrics *nostrrelay.Metrics
	if c.Registerer != nil {
		m, err := nostrrelay.NewMetrics(c.Registerer)
		if err != nil {
			return nil, err
		}
		metrics = m
	}
	relay, err := nostrrelay.NewPool(c.Relays, c.RelayTimeout, metrics)
	if err != nil {
		return nil, err
	}
	c.relay = relay
	return c.relay, nil
}

func (c *AppConfig) seedManager() *application.SeedManager {
	if c.seedMgr != nil {
		return c.seedMgr
	}

	rm, _ := c.repoManager()
	c.seedMgr = application.NewSeedManager(
		rm, mnemonic_store.NewInMemoryMnemonicStore(),
		cypher.NewAES128Cypher(c.ScryptN),
	)
	return c.seedMgr
}

func (c *AppConfig) mintRegistry() *application.MintRegistry {
	if c.registry != nil {
		return c.registry
	}

	rm, _ := c.repoManager()
	factory, _ := c.mintClientFactory()
	c.registry = application.NewMintRegistry(rm, factory, nil, c.Unit)
	return c.registry
}

func (c *AppConfig) quoteTracker() *application.QuoteTracker {
	if c.quoteTrk != nil {
		return c.quoteTrk
	}

	rm, _ := c.repoManager()
	c.quoteTrk = application.NewQuoteTracker(rm, c.mintRegistry(), c.QuoteRateLimit)
	return c.quoteTrk
}

func (c *AppConfig) walletService() *application.MultiMintWallet {
	if c.walletSvc != nil {
		return c.walletSvc
	}

	rm, _ := c.repoManager()
	c.walletSvc = application.NewMultiMintWallet(rm, c.mintRegistry(), c.quoteTracker())
	return c.walletSvc
}

func (c *AppConfig) backupService() (*application.BackupService, error) {
	if c.backupSvc != nil {
		return c.backupSvc, nil
	}

	relay, err := c.backupRelay()
	if err != nil {
		return nil, err
	}
	rm, _ := c.repoManager()
	c.backupSvc = application.NewBackupService(
		rm, c.mintRegistry(), relay, c.AutoBackup,
	)
	return c.backupSvc, nil
}

func (c *AppConfig) notificationService() *application.NotificationService {
	if c.notifySvc != nil {
		return c.notifySvc
	}

	rm, _ := c.repoManager()
	c.notifySvc = application.NewNotificationService(rm)
	return c.notifySvc
}

func (c *AppConfig) buildInfo() application.BuildInfo {
	version := "dev"
	if c.Version != "" {
		version = c.Version
	}
	commit := "none"
	if c.Commit != "" {
		commit = c.Commit
	}
	date := "unknown"
	if c.Date != "" {
		date = c.Date
	}
	return application.BuildInfo{
		Version: version,
		Commit:  commit,
		Date:    date,
	}
}
