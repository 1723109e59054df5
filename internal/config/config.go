// Package config loads the perfstore settings: defaults, overlaid by an
// optional YAML file, overlaid by PERFSTORE_* environment variables.
package config

import (
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hyp3rd/ewrap"
	"gopkg.in/yaml.v3"

	"perfstore/internal/compress"
	"perfstore/internal/hdr"
	"perfstore/internal/sentinel"
)

const envPrefix = "PERFSTORE_"

type Server struct {
	Addr         string        `yaml:"addr"`
	BasePath     string        `yaml:"base_path"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	BodyLimit    int           `yaml:"body_limit"`
}

type Database struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
	SSLMode  string `yaml:"sslmode"`
}

type Storage struct {
	Driver    string `yaml:"driver"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
	// Format is the compression applied to stored payloads.
	Format string `yaml:"format"`
}

type Cache struct {
	Driver   string        `yaml:"driver"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type Ledger struct {
	Driver       string        `yaml:"driver"`
	BatchSize    int           `yaml:"batch_size"`
	MaxWait      time.Duration `yaml:"max_wait"`
	MockDelay    time.Duration `yaml:"mock_delay"`
	MSPID        string        `yaml:"msp_id"`
	CertPath     string        `yaml:"cert_path"`
	KeyDir       string        `yaml:"key_dir"`
	TLSCertPath  string        `yaml:"tls_cert_path"`
	PeerEndpoint string        `yaml:"peer_endpoint"`
	GatewayPeer  string        `yaml:"gateway_peer"`
	Channel      string        `yaml:"channel"`
	Chaincode    string        `yaml:"chaincode"`
}

type HDR struct {
	MaxDataPoints int `yaml:"max_data_points"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Config is the whole configuration.
type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Storage  Storage  `yaml:"storage"`
	Cache    Cache    `yaml:"cache"`
	Ledger   Ledger   `yaml:"ledger"`
	HDR      HDR      `yaml:"hdr"`
	Log      Log      `yaml:"log"`
}

// Default is a runnable configuration keeping everything in memory.
func Default() Config {
	return Config{
		Server: Server{
			Addr:         ":8080",
			BasePath:     "/",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			BodyLimit:    64 << 20,
		},
		Database: Database{Driver: "memory", Port: "5432", SSLMode: "disable"},
		Storage:  Storage{Driver: "memory", Bucket: "perfstore", Format: string(compress.Zstd)},
		Cache:    Cache{Driver: "memory", TTL: 10 * time.Minute},
		Ledger: Ledger{
			Driver:       "none",
			BatchSize:    16,
			MaxWait:      25 * time.Millisecond,
			MSPID:        "Org1MSP",
			PeerEndpoint: "localhost:7051",
			GatewayPeer:  "peer0.org1.example.com",
			Channel:      "mychannel",
			Chaincode:    "basic",
		},
		HDR: HDR{MaxDataPoints: hdr.DefaultMaxDataPoints},
		Log: Log{Level: "info"},
	}
}

// Load reads path (when not empty) over the defaults, applies the
// environment and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, ewrap.Wrapf(err, "read config %s", path)
		}

		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, ewrap.Wrapf(sentinel.ErrInvalidArgument, "parse config %s: %v", path, err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}

	return cfg, cfg.Validate()
}

type envVar struct {
	name string
	set  func(string) error
}

func str(p *string) func(string) error {
	return func(v string) error { *p = v; return nil }
}

func integer(p *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}

		*p = n

		return nil
	}
}

func boolean(p *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}

		*p = b

		return nil
	}
}

func duration(p *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}

		*p = d

		return nil
	}
}

func (c *Config) envVars() []envVar {
	return []envVar{
		{"SERVER_ADDR", str(&c.Server.Addr)},
		{"SERVER_BASE_PATH", str(&c.Server.BasePath)},
		{"SERVER_READ_TIMEOUT", duration(&c.Server.ReadTimeout)},
		{"SERVER_WRITE_TIMEOUT", duration(&c.Server.WriteTimeout)},
		{"SERVER_BODY_LIMIT", integer(&c.Server.BodyLimit)},
		{"DATABASE_DRIVER", str(&c.Database.Driver)},
		{"DATABASE_HOST", str(&c.Database.Host)},
		{"DATABASE_PORT", str(&c.Database.Port)},
		{"DATABASE_USER", str(&c.Database.User)},
		{"DATABASE_PASSWORD", str(&c.Database.Password)},
		{"DATABASE_NAME", str(&c.Database.Name)},
		{"DATABASE_SSLMODE", str(&c.Database.SSLMode)},
		{"STORAGE_DRIVER", str(&c.Storage.Driver)},
		{"STORAGE_ENDPOINT", str(&c.Storage.Endpoint)},
		{"STORAGE_ACCESS_KEY", str(&c.Storage.AccessKey)},
		{"STORAGE_SECRET_KEY", str(&c.Storage.SecretKey)},
		{"STORAGE_BUCKET", str(&c.Storage.Bucket)},
		{"STORAGE_SECURE", boolean(&c.Storage.Secure)},
		{"STORAGE_FORMAT", str(&c.Storage.Format)},
		{"CACHE_DRIVER", str(&c.Cache.Driver)},
		{"CACHE_ADDR", str(&c.Cache.Addr)},
		{"CACHE_PASSWORD", str(&c.Cache.Password)},
		{"CACHE_DB", integer(&c.Cache.DB)},
		{"CACHE_TTL", duration(&c.Cache.TTL)},
		{"LEDGER_DRIVER", str(&c.Ledger.Driver)},
		{"LEDGER_BATCH_SIZE", integer(&c.Ledger.BatchSize)},
		{"LEDGER_MAX_WAIT", duration(&c.Ledger.MaxWait)},
		{"LEDGER_MOCK_DELAY", duration(&c.Ledger.MockDelay)},
		{"LEDGER_MSP_ID", str(&c.Ledger.MSPID)},
		{"LEDGER_CERT_PATH", str(&c.Ledger.CertPath)},
		{"LEDGER_KEY_DIR", str(&c.Ledger.KeyDir)},
		{"LEDGER_TLS_CERT_PATH", str(&c.Ledger.TLSCertPath)},
		{"LEDGER_PEER_ENDPOINT", str(&c.Ledger.PeerEndpoint)},
		{"LEDGER_GATEWAY_PEER", str(&c.Ledger.GatewayPeer)},
		{"LEDGER_CHANNEL", str(&c.Ledger.Channel)},
		{"LEDGER_CHAINCODE", str(&c.Ledger.Chaincode)},
		{"HDR_MAX_DATA_POINTS", integer(&c.HDR.MaxDataPoints)},
		{"LOG_LEVEL", str(&c.Log.Level)},
		{"LOG_DEVELOPMENT", boolean(&c.Log.Development)},
	}
}

// ApplyEnv overrides fields from PERFSTORE_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, v := range c.envVars() {
		value, ok := lookup(envPrefix + v.name)
		if !ok {
			continue
		}

		if err := v.set(strings.TrimSpace(value)); err != nil {
			return ewrap.Wrapf(sentinel.ErrInvalidArgument, "%s%s=%q: %v", envPrefix, v.name, value, err)
		}
	}

	return nil
}

func oneOf(field, value string, allowed ...string) error {
	if slices.Contains(allowed, value) {
		return nil
	}

	return ewrap.Wrapf(sentinel.ErrInvalidArgument, "%s %q not one of %s", field, value, strings.Join(allowed, ", "))
}

// Validate rejects unknown drivers and out of range numbers.
func (c *Config) Validate() error {
	checks := []error{
		oneOf("database.driver", c.Database.Driver, "memory", "postgres"),
		oneOf("storage.driver", c.Storage.Driver, "memory", "minio"),
		oneOf("cache.driver", c.Cache.Driver, "none", "memory", "redis"),
		oneOf("ledger.driver", c.Ledger.Driver, "none", "mock", "fabric"),
		oneOf("log.level", c.Log.Level, "debug", "info", "warn", "error"),
	}

	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if _, err := compress.ParseFormat(c.Storage.Format); err != nil {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "storage.format %q", c.Storage.Format)
	}

	if c.HDR.MaxDataPoints <= 0 {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "hdr.max_data_points must be positive, got %d", c.HDR.MaxDataPoints)
	}

	if c.Ledger.Driver != "none" && c.Ledger.BatchSize <= 0 {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "ledger.batch_size must be positive, got %d", c.Ledger.BatchSize)
	}

	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return ewrap.Wrapf(sentinel.ErrInvalidArgument, "server.base_path %q must start with /", c.Server.BasePath)
	}

	return nil
}
