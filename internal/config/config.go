// Package config loads the engine configuration: .env files, then an
// optional YAML file, then TECHRANK_ environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"techrank/internal/fetch"
	"techrank/internal/glpi"
	"techrank/internal/ranking"
	"techrank/internal/stats"
	"techrank/internal/tier"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/rs/zerolog/log"
)

// EnvPrefix prefixes every environment override. A double underscore
// separates nested keys: TECHRANK_GLPI__BASE_URL sets glpi.base_url.
const EnvPrefix = "TECHRANK_"

// GLPI holds the upstream connection settings.
type GLPI struct {
	BaseURL     string        `koanf:"base_url"`
	AppToken    string        `koanf:"app_token"`
	UserToken   string        `koanf:"user_token"`
	Login       string        `koanf:"login"`
	Password    string        `koanf:"password"`
	CallTimeout time.Duration `koanf:"call_timeout"`
}

// Fetch bounds paginated retrieval.
type Fetch struct {
	PageSize     int           `koanf:"page_size"`
	MaxRows      int           `koanf:"max_rows"`
	MaxRetries   int           `koanf:"max_retries"`
	RetryInitial time.Duration `koanf:"retry_initial"`
	RetryMax     time.Duration `koanf:"retry_max"`
	Timeout      time.Duration `koanf:"timeout"`
}

// Engine tunes ranking runs and caching.
type Engine struct {
	Workers           int           `koanf:"workers"`
	TechnicianProfile string        `koanf:"technician_profile"`
	ShortTTL          time.Duration `koanf:"short_ttl"`
	LongTTL           time.Duration `koanf:"long_ttl"`
	TierTTL           time.Duration `koanf:"tier_ttl"`
	RankingTTL        time.Duration `koanf:"ranking_ttl"`
	StaleGrace        time.Duration `koanf:"stale_grace"`
	RefreshInterval   time.Duration `koanf:"refresh_interval"`
	Timezone          string        `koanf:"timezone"`
}

// Tiers locates tier membership data. Groups maps tier names ("Tier3")
// to GLPI group ids and takes precedence over ids in the directory file.
type Tiers struct {
	Groups        map[string]string `koanf:"groups"`
	DirectoryFile string            `koanf:"directory_file"`
}

// Statuses overrides the GLPI status classification.
type Statuses struct {
	Resolved []int `koanf:"resolved"`
	Pending  []int `koanf:"pending"`
}

// AppConfig holds the complete application configuration.
type AppConfig struct {
	GLPI     GLPI        `koanf:"glpi"`
	Fields   glpi.Fields `koanf:"fields"`
	Fetch    Fetch       `koanf:"fetch"`
	Engine   Engine      `koanf:"engine"`
	Tiers    Tiers       `koanf:"tiers"`
	Statuses Statuses    `koanf:"statuses"`

	DataPath string `koanf:"data_path"`
	LogDir   string `koanf:"log_dir"`
	CacheDir string `koanf:"cache_dir"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() *AppConfig {
	fc := fetch.DefaultConfig()
	return &AppConfig{
		GLPI:   GLPI{CallTimeout: 30 * time.Second},
		Fields: glpi.DefaultFields(),
		Fetch: Fetch{
			PageSize:     fc.PageSize,
			MaxRows:      fc.MaxRows,
			MaxRetries:   fc.MaxRetries,
			RetryInitial: fc.RetryInitial,
			RetryMax:     fc.RetryMax,
			Timeout:      fc.Timeout,
		},
		Engine: Engine{
			Workers:           ranking.DefaultWorkers,
			TechnicianProfile: ranking.DefaultTechnicianProfile,
			ShortTTL:          ranking.DefaultShortTTL,
			LongTTL:           ranking.DefaultLongTTL,
			TierTTL:           ranking.DefaultTierTTL,
			RankingTTL:        ranking.DefaultRankingTTL,
			StaleGrace:        ranking.DefaultStaleGrace,
			RefreshInterval:   5 * time.Minute,
			Timezone:          "Local",
		},
		Statuses: Statuses{
			Resolved: []int{stats.StatusSolved, stats.StatusClosed},
			Pending:  []int{stats.StatusWaiting},
		},
	}
}

// Load loads the configuration from .env files, the YAML file named by
// TECHRANK_CONFIG and TECHRANK_ environment variables, in that order of
// increasing precedence.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory (highest priority for MCP servers)
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Layer file and environment over the defaults
	cfg, err := load(os.Getenv(EnvPrefix + "CONFIG"))
	if err != nil {
		return nil, err
	}

	// 4. Resolve data paths
	if cfg.DataPath == "" {
		cfg.DataPath = os.Getenv("DATA_PATH")
	}
	if cfg.DataPath == "" {
		if exeDir != "" {
			cfg.DataPath = exeDir
		} else {
			cfg.DataPath = "."
		}
	}
	if cfg.LogDir == "" {
		cfg.LogDir = filepath.Join(cfg.DataPath, "logs")
	}
	if cfg.CacheDir == "" {
		cfg.CacheDir = filepath.Join(cfg.DataPath, "cache")
	}
	for _, dir := range []string{cfg.LogDir, cfg.CacheDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Failed to create directory")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func load(path string) (*AppConfig, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrLoadConfig, path, err)
		}
		log.Debug().Str("path", path).Msg("Loaded configuration file")
	}

	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(s, "__", ".")
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: environment: %v", ErrLoadConfig, err)
	}

	cfg := Defaults()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoadConfig, err)
	}
	return cfg, nil
}

// Validate checks the settings the engine cannot run without.
func (c *AppConfig) Validate() error {
	var problems []string
	if c.GLPI.BaseURL == "" {
		problems = append(problems, "glpi.base_url is required")
	}
	if c.GLPI.UserToken == "" && (c.GLPI.Login == "" || c.GLPI.Password == "") {
		problems = append(problems, "glpi.user_token or glpi.login and glpi.password are required")
	}
	if c.Fetch.PageSize <= 0 {
		problems = append(problems, "fetch.page_size must be positive")
	}
	if c.Fetch.MaxRows < c.Fetch.PageSize {
		problems = append(problems, "fetch.max_rows must be at least fetch.page_size")
	}
	if c.Fetch.MaxRetries < 0 {
		problems = append(problems, "fetch.max_retries must not be negative")
	}
	if c.Engine.Workers <= 0 {
		problems = append(problems, "engine.workers must be positive")
	}
	if _, err := c.Location(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := c.groupTable(); err != nil {
		problems = append(problems, err.Error())
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// ClientConfig returns the GLPI client settings.
func (c *AppConfig) ClientConfig() glpi.Config {
	return glpi.Config{
		BaseURL:     c.GLPI.BaseURL,
		AppToken:    c.GLPI.AppToken,
		UserToken:   c.GLPI.UserToken,
		Login:       c.GLPI.Login,
		Password:    c.GLPI.Password,
		CallTimeout: c.GLPI.CallTimeout,
	}
}

// FetcherConfig returns the pagination settings.
func (c *AppConfig) FetcherConfig() fetch.Config {
	return fetch.Config{
		PageSize:     c.Fetch.PageSize,
		MaxRows:      c.Fetch.MaxRows,
		MaxRetries:   c.Fetch.MaxRetries,
		RetryInitial: c.Fetch.RetryInitial,
		RetryMax:     c.Fetch.RetryMax,
		Timeout:      c.Fetch.Timeout,
	}
}

// StatusTable returns the status classification.
func (c *AppConfig) StatusTable() stats.StatusTable {
	return stats.NewStatusTable(c.Statuses.Resolved, c.Statuses.Pending)
}

// Location returns the time zone GLPI datetimes are expressed in.
func (c *AppConfig) Location() (*time.Location, error) {
	switch c.Engine.Timezone {
	case "", "Local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Engine.Timezone)
	if err != nil {
		return nil, fmt.Errorf("engine.timezone: %v", err)
	}
	return loc, nil
}

// TierGroups merges the group ids of the directory file with the ones
// configured directly, which win.
func (c *AppConfig) TierGroups() (map[tier.Tier]string, error) {
	groups := make(map[tier.Tier]string)
	if c.Tiers.DirectoryFile != "" {
		d, err := tier.ReadDirectory(c.Tiers.DirectoryFile)
		if err != nil {
			return nil, err
		}
		fromFile, err := d.GroupTable()
		if err != nil {
			return nil, err
		}
		for t, id := range fromFile {
			groups[t] = id
		}
	}
	direct, err := c.groupTable()
	if err != nil {
		return nil, err
	}
	for t, id := range direct {
		groups[t] = id
	}
	return groups, nil
}

// NameSource returns the name directory, or nil when none is configured.
func (c *AppConfig) NameSource() tier.NameSource {
	if c.Tiers.DirectoryFile == "" {
		return nil
	}
	return tier.NewFile(c.Tiers.DirectoryFile)
}

func (c *AppConfig) groupTable() (map[tier.Tier]string, error) {
	return tier.Directory{Groups: c.Tiers.Groups}.GroupTable()
}
