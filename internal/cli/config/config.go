package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"codearena/internal/common/cache"
	"codearena/internal/identity"
	"codearena/pkg/utils/logger"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultBaseURL        = "http://127.0.0.1:8000"
	DefaultTimeout        = 10 * time.Second
	DefaultCatalogTTL     = 30 * time.Second
	DefaultTokenStatePath = "configs/cli_state.json"
	DefaultCallbackAddr   = "127.0.0.1:8765"
	DefaultRedisPrefix    = "codearena:"

	envPrefix = "CODEARENA_"
)

// Token store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
)

// Identity modes.
const (
	IdentityManual = "manual"
	IdentityOIDC   = "oidc"
)

// Config holds CLI configuration.
type Config struct {
	BaseURL string        `yaml:"baseURL"`
	Timeout time.Duration `yaml:"timeout"`
	// JudgeTimeout bounds run/submit calls. Zero means no client-side limit.
	JudgeTimeout time.Duration `yaml:"judgeTimeout"`
	CatalogTTL   time.Duration `yaml:"catalogTTL"`

	Token    TokenConfig    `yaml:"token"`
	Identity IdentityConfig `yaml:"identity"`
	Log      logger.Config  `yaml:"log"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// TokenConfig selects where the credential survives restarts.
type TokenConfig struct {
	Store  string            `yaml:"store"`
	Path   string            `yaml:"path"`
	Redis  cache.RedisConfig `yaml:"redis"`
	Prefix string            `yaml:"prefix"`
	TTL    time.Duration     `yaml:"ttl"`
}

type IdentityConfig struct {
	Mode         string              `yaml:"mode"`
	CallbackAddr string              `yaml:"callbackAddr"`
	OIDC         identity.OIDCConfig `yaml:"oidc"`
}

type MetricsConfig struct {
	// Addr enables a /metrics listener when set.
	Addr string `yaml:"addr"`
}

// Load reads the YAML file at path, applies environment overrides and fills
// defaults. A missing file is not an error: the client runs on defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config file failed: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file failed: %w", err)
			}
		}
	}
	// .env is optional; real environment variables still win over it.
	_ = godotenv.Load()
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid %s%s: %w", envPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("BASE_URL", &cfg.BaseURL)
	str("TOKEN_STORE", &cfg.Token.Store)
	str("TOKEN_PATH", &cfg.Token.Path)
	str("REDIS_ADDR", &cfg.Token.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Token.Redis.Password)
	str("IDENTITY_MODE", &cfg.Identity.Mode)
	str("CALLBACK_ADDR", &cfg.Identity.CallbackAddr)
	str("OIDC_ISSUER", &cfg.Identity.OIDC.Issuer)
	str("OIDC_CLIENT_ID", &cfg.Identity.OIDC.ClientID)
	str("OIDC_CLIENT_SECRET", &cfg.Identity.OIDC.ClientSecret)
	str("OIDC_REDIRECT_URL", &cfg.Identity.OIDC.RedirectURL)
	str("LOG_LEVEL", &cfg.Log.Level)
	str("METRICS_ADDR", &cfg.Metrics.Addr)

	if v, ok := lookup(envPrefix + "REDIS_DB"); ok && v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sREDIS_DB: %w", envPrefix, err)
		}
		cfg.Token.Redis.DB = db
	}
	if err := dur("TIMEOUT", &cfg.Timeout); err != nil {
		return err
	}
	if err := dur("JUDGE_TIMEOUT", &cfg.JudgeTimeout); err != nil {
		return err
	}
	return dur("CATALOG_TTL", &cfg.CatalogTTL)
}

func applyDefaults(cfg *Config) {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CatalogTTL == 0 {
		cfg.CatalogTTL = DefaultCatalogTTL
	}
	if cfg.Token.Store == "" {
		cfg.Token.Store = StoreFile
	}
	if cfg.Token.Path == "" {
		cfg.Token.Path = DefaultTokenStatePath
	}
	if cfg.Token.Prefix == "" {
		cfg.Token.Prefix = DefaultRedisPrefix
	}
	if cfg.Identity.Mode == "" {
		cfg.Identity.Mode = IdentityManual
	}
	if cfg.Identity.CallbackAddr == "" {
		cfg.Identity.CallbackAddr = DefaultCallbackAddr
	}
	if cfg.Identity.OIDC.RedirectURL == "" {
		cfg.Identity.OIDC.RedirectURL = "http://" + cfg.Identity.CallbackAddr + "/callback"
	}
}

func validate(cfg Config) error {
	switch cfg.Token.Store {
	case StoreMemory, StoreFile:
	case StoreRedis:
		if cfg.Token.Redis.Addr == "" {
			return fmt.Errorf("token.redis.addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown token store %q", cfg.Token.Store)
	}
	switch cfg.Identity.Mode {
	case IdentityManual:
	case IdentityOIDC:
		if cfg.Identity.OIDC.Issuer == "" || cfg.Identity.OIDC.ClientID == "" {
			return fmt.Errorf("identity.oidc.issuer and identity.oidc.clientID are required in oidc mode")
		}
	default:
		return fmt.Errorf("unknown identity mode %q", cfg.Identity.Mode)
	}
	return nil
}
