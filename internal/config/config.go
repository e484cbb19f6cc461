package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/spf13/viper"
)

const (
	// DatadirKey is the key to customize the cashew datadir.
	DatadirKey = "DATADIR"
	// DatabaseTypeKey is the key to customize the type of database to use.
	DatabaseTypeKey = "DATABASE_TYPE"
	// MintClientTypeKey is the key to customize how mints are reached, either
	// through their http api or through an in-process simulator.
	MintClientTypeKey = "MINT_CLIENT_TYPE"
	// UnitKey is the key to customize the unit used when none is given.
	UnitKey = "UNIT"
	// LogLevelKey is the key to customize the log level to catch more specific
	// or more high level logs.
	LogLevelKey = "LOG_LEVEL"
	// MintTimeoutKey is the key to customize the timeout in seconds of every
	// request made to a mint.
	MintTimeoutKey = "MINT_TIMEOUT"
	// TorProxyKey is the key to set the address of the SOCKS5 proxy used to
	// reach onion mints.
	TorProxyKey = "TOR_PROXY"
	// TorOnlyKey is the key to route every mint request through the tor proxy.
	TorOnlyKey = "TOR_ONLY"
	// AuthTokenKey is the key to set the clear auth token sent to mints that
	// require one.
	AuthTokenKey = "AUTH_TOKEN"
	// RelaysKey is the key to set the list of nostr relays used for backups.
	RelaysKey = "RELAYS"
	// RelayTimeoutKey is the key to customize the timeout in seconds of every
	// relay operation.
	RelayTimeoutKey = "RELAY_TIMEOUT"
	// AutoBackupKey is the key to publish backups whenever the wallet changes.
	AutoBackupKey = "AUTO_BACKUP"
	// QuotePollIntervalKey is the key to customize the interval in seconds
	// between two checks of the pending quotes.
	QuotePollIntervalKey = "QUOTE_POLL_INTERVAL"
	// QuoteRateLimitKey is the key to customize the max number of requests per
	// second made to mints while polling quotes.
	QuoteRateLimitKey = "QUOTE_RATE_LIMIT"
	// ScryptNKey is the key to customize the cost of the key stretching of the
	// password encrypting the mnemonic.
	ScryptNKey = "SCRYPT_N"
	// ProfilerPortKey is the key to customize the port where the profiler will
	// be listening to.
	ProfilerPortKey = "PROFILER_PORT"
	// NoProfilerKey is the key to disable Prometheus profiling.
	NoProfilerKey = "NO_PROFILER"
	// StatsIntervalKey is the key to customize the interval for the profiler to
	// gather profiling stats.
	StatsIntervalKey = "STATS_INTERVAL"

	// DbLocation is the folder inside the datadir containing db files.
	DbLocation = "db"
	// ProfilerLocation is the folder inside the datadir containing profiler
	// stats files.
	ProfilerLocation = "stats"
	// DbUserKey is user used to connect to db
	DbUserKey = "DB_USER"
	// DbPassKey is password used to connect to db
	DbPassKey = "DB_PASS"
	// DbHostKey is host where db is installed
	DbHostKey = "DB_HOST"
	// DbPortKey is port on which db is listening
	DbPortKey = "DB_PORT"
	// DbNameKey is name of database
	DbNameKey = "DB_NAME"
	// DbMigrationPath is the path to migration files
	DbMigrationPath = "DB_MIGRATION_PATH"
)

var (
	vip *viper.Viper

	defaultDatadir           = btcutil.AppDataDir("cashew", false)
	defaultDbType            = "badger"
	defaultMintClientType    = "http"
	defaultUnit              = "sat"
	defaultLogLevel          = 4
	defaultMintTimeout       = 30
	defaultRelayTimeout      = 10
	defaultQuotePollInterval = 10
	defaultQuoteRateLimit    = 5
	defaultProfilerPort      = 18002
	defaultStatsInterval     = 600 // 10 minutes

	SupportedDbs = supportedType{
		"badger":   {},
		"inmemory": {},
		"postgres": {},
	}
	SupportedMintClients = supportedType{
		"http":      {},
		"simulator": {},
	}
)

func init() {
	vip = viper.New()
	vip.SetEnvPrefix("CASHEW")
	vip.AutomaticEnv()

	vip.SetDefault(DatadirKey, defaultDatadir)
	vip.SetDefault(DatabaseTypeKey, defaultDbType)
	vip.SetDefault(MintClientTypeKey, defaultMintClientType)
	vip.SetDefault(UnitKey, defaultUnit)
	vip.SetDefault(LogLevelKey, defaultLogLevel)
	vip.SetDefault(MintTimeoutKey, defaultMintTimeout)
	vip.SetDefault(TorProxyKey, "")
	vip.SetDefault(TorOnlyKey, false)
	vip.SetDefault(AuthTokenKey, "")
	vip.SetDefault(RelaysKey, []string{})
	vip.SetDefault(RelayTimeoutKey, defaultRelayTimeout)
	vip.SetDefault(AutoBackupKey, false)
	vip.SetDefault(QuotePollIntervalKey, defaultQuotePollInterval)
	vip.SetDefault(QuoteRateLimitKey, defaultQuoteRateLimit)
	vip.SetDefault(ScryptNKey, 0)
	vip.SetDefault(NoProfilerKey, true)
	vip.SetDefault(ProfilerPortKey, defaultProfilerPort)
	vip.SetDefault(StatsIntervalKey, defaultStatsInterval)
	vip.SetDefault(DbUserKey, "root")
	vip.SetDefault(DbPassKey, "secret")
	vip.SetDefault(DbHostKey, "127.0.0.1")
	vip.SetDefault(DbPortKey, 5432)
	vip.SetDefault(DbNameKey, "cashew-db-pg")
	vip.SetDefault(DbMigrationPath, "file://internal/infrastructure/storage/db/postgres/migration")

	if err := validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}

	if err := initDatadir(); err != nil {
		log.Fatalf("config: error while creating datadir: %s", err)
	}
}

func validate() error {
	datadir := GetString(DatadirKey)
	if len(datadir) <= 0 {
		return fmt.Errorf("datadir must not be null")
	}

	dbType := GetString(DatabaseTypeKey)
	if _, ok := SupportedDbs[dbType]; !ok {
		return fmt.Errorf("unsupported database type, must be one of %s", SupportedDbs)
	}

	mintClientType := GetString(MintClientTypeKey)
	if _, ok := SupportedMintClients[mintClientType]; !ok {
		return fmt.Errorf(
			"unsupported mint client type, must be one of %s", SupportedMintClients,
		)
	}

	if len(GetString(UnitKey)) <= 0 {
		return fmt.Errorf("unit must not be null")
	}

	if GetBool(TorOnlyKey) && len(GetString(TorProxyKey)) <= 0 {
		return fmt.Errorf("tor only mode requires a tor proxy address")
	}

	for _, key := range []string{MintTimeoutKey, RelayTimeoutKey, QuotePollIntervalKey} {
		if GetInt(key) <= 0 {
			return fmt.Errorf("%s must be a positive number of seconds", strings.ToLower(key))
		}
	}

	if GetBool(AutoBackupKey) && len(GetStringSlice(RelaysKey)) <= 0 {
		return fmt.Errorf("auto backup requires at least one relay")
	}

	return nil
}

func GetDatadir() string {
	return GetString(DatadirKey)
}

func GetDuration(key string) time.Duration {
	return time.Duration(GetInt(key)) * time.Second
}

func GetString(key string) string {
	return vip.GetString(key)
}

func GetInt(key string) int {
	return vip.GetInt(key)
}

func GetBool(key string) bool {
	return vip.GetBool(key)
}

func GetStringSlice(key string) []string {
	// Env vars come as a single comma separated string.
	list := make([]string, 0)
	for _, v := range vip.GetStringSlice(key) {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				list = append(list, s)
			}
		}
	}
	return list
}

// AllSettings returns the current value of every key.
func AllSettings() map[string]interface{} {
	settings := make(map[string]interface{})
	for _, key := range vip.AllKeys() {
		settings[strings.ToUpper(key)] = vip.Get(key)
	}
	settings[RelaysKey] = GetStringSlice(RelaysKey)
	settings[DbPassKey] = "********"
	if GetString(AuthTokenKey) != "" {
		settings[AuthTokenKey] = "********"
	}
	return settings
}

func Set(key string, val interface{}) {
	vip.Set(key, val)
}

func Unset(key string) {
	vip.Set(key, nil)
}

func IsSet(key string) bool {
	return vip.IsSet(key)
}

func initDatadir() error {
	datadir := GetDatadir()
	if err := makeDirectoryIfNotExists(filepath.Join(datadir, DbLocation)); err != nil {
		return err
	}

	noProfiler := GetBool(NoProfilerKey)
	if noProfiler {
		return nil
	}
	return makeDirectoryIfNotExists(filepath.Join(datadir, ProfilerLocation))
}

func makeDirectoryIfNotExists(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.MkdirAll(path, os.ModeDir|0755)
	}
	return nil
}

type supportedType map[string]struct{}

func (t supportedType) String() string {
	types := make([]string, 0, len(t))
	for tt := range t {
		types = append(types, tt)
	}
	sort.Strings(types)
	return strings.Join(types, " | ")
}
