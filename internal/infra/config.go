package infra

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"nft_market/internal/domain"

	"github.com/gagliardetto/solana-go"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// DefaultProgramID is the marketplace program address used when none is configured.
	DefaultProgramID = "29hLYT9LFzKpf98UHqWU4zxm91tWfimkcPq7uNYcdVsR"
)

// Config는 애플리케이션의 모든 설정을 담습니다.
// LoadConfig로 로드된 후에 환경 변수를 통해 배포별 값을 덮어씁니다.
type Config struct {
	App struct {
		Name    string `yaml:"name"`
		Version string `yaml:"version"`
	} `yaml:"app"`

	Program struct {
		ID             string `yaml:"id"`
		AllowFixtures  bool   `yaml:"allow_fixtures"`
		PDACacheTTLSec int    `yaml:"pda_cache_ttl_sec"`
	} `yaml:"program"`

	Engine struct {
		InboxSize       int    `yaml:"inbox_size"`
		SubmitTimeoutMS int    `yaml:"submit_timeout_ms"`
		DumpPath        string `yaml:"dump_path"`
	} `yaml:"engine"`

	Storage struct {
		DBPath        string `yaml:"db_path"`
		SnapshotDir   string `yaml:"snapshot_dir"`
		SnapshotKeep  int    `yaml:"snapshot_keep"`
		SnapshotEvery uint64 `yaml:"snapshot_every"` // instructions between snapshots, 0 = off
	} `yaml:"storage"`

	API struct {
		Listen     string  `yaml:"listen"`
		RatePerSec float64 `yaml:"rate_per_sec"`
		Burst      int     `yaml:"burst"`
	} `yaml:"api"`

	Logging struct {
		Level string `yaml:"level"`
		Dir   string `yaml:"dir"`
	} `yaml:"logging"`
}

// DefaultConfig returns a configuration usable without a file.
func DefaultConfig() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "nft-market"
	}
	if c.Program.ID == "" {
		c.Program.ID = DefaultProgramID
	}
	if c.Program.PDACacheTTLSec == 0 {
		c.Program.PDACacheTTLSec = 300
	}
	if c.Engine.InboxSize == 0 {
		c.Engine.InboxSize = 1024
	}
	if c.Engine.SubmitTimeoutMS == 0 {
		c.Engine.SubmitTimeoutMS = 5000
	}
	if c.Engine.DumpPath == "" {
		c.Engine.DumpPath = "panic_dump.json"
	}
	if c.Storage.SnapshotDir == "" {
		c.Storage.SnapshotDir = "snapshots"
	}
	if c.Storage.SnapshotKeep == 0 {
		c.Storage.SnapshotKeep = 3
	}
	if c.API.Listen == "" {
		c.API.Listen = ":8899"
	}
	if c.API.RatePerSec == 0 {
		c.API.RatePerSec = 20
	}
	if c.API.Burst == 0 {
		c.API.Burst = 40
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Dir == "" {
		c.Logging.Dir = "logs"
	}
}

// LoadConfig는 설정 파일을 읽고 파싱합니다.
func LoadConfig(path string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, path)
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	// 환경 변수 오버라이드 지원
	if err := overrideWithEnv(&cfg); err != nil {
		return nil, err
	}

	// 설정 유효성 검사
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration validity
func (c *Config) Validate() error {
	if _, err := solana.PublicKeyFromBase58(c.Program.ID); err != nil {
		return &domain.ConfigError{Field: "program.id", Err: err}
	}
	if c.Program.PDACacheTTLSec < 0 {
		return &domain.ConfigError{Field: "program.pda_cache_ttl_sec", Err: errors.New("must not be negative")}
	}
	if c.Engine.InboxSize <= 0 {
		return &domain.ConfigError{Field: "engine.inbox_size", Err: errors.New("must be positive")}
	}
	if c.Engine.SubmitTimeoutMS <= 0 {
		return &domain.ConfigError{Field: "engine.submit_timeout_ms", Err: errors.New("must be positive")}
	}
	if c.Storage.SnapshotKeep < 1 {
		return &domain.ConfigError{Field: "storage.snapshot_keep", Err: errors.New("must keep at least one snapshot")}
	}
	if c.API.RatePerSec <= 0 || c.API.Burst <= 0 {
		return &domain.ConfigError{Field: "api.rate_per_sec", Err: errors.New("rate and burst must be positive")}
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return &domain.ConfigError{Field: "logging.level", Err: fmt.Errorf("unknown level %q", c.Logging.Level)}
	}
	return nil
}

// ProgramID returns the parsed program id.
func (c *Config) ProgramID() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.Program.ID)
}

// PDACacheTTL returns how long derived addresses stay cached.
func (c *Config) PDACacheTTL() time.Duration {
	return time.Duration(c.Program.PDACacheTTLSec) * time.Second
}

// SubmitTimeout bounds how long a caller waits for its receipt.
func (c *Config) SubmitTimeout() time.Duration {
	return time.Duration(c.Engine.SubmitTimeoutMS) * time.Millisecond
}

// overrideWithEnv는 환경 변수가 존재할 경우 설정 값을 덮어씁니다.
func overrideWithEnv(cfg *Config) error {
	if v := os.Getenv("MARKET_PROGRAM_ID"); v != "" {
		cfg.Program.ID = v
	}
	if v := os.Getenv("MARKET_ALLOW_FIXTURES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &domain.ConfigError{Field: "MARKET_ALLOW_FIXTURES", Err: err}
		}
		cfg.Program.AllowFixtures = b
	}
	if v := os.Getenv("MARKET_DB_PATH"); v != "" {
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("MARKET_SNAPSHOT_DIR"); v != "" {
		cfg.Storage.SnapshotDir = v
	}
	if v := os.Getenv("MARKET_LISTEN"); v != "" {
		cfg.API.Listen = v
	}
	if v := os.Getenv("MARKET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}
