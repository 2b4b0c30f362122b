package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultListen        = ":9012"
	defaultPusherCluster = "eu"
	defaultPushTTL       = 60
	defaultPushTimeout   = 15 * time.Second
	defaultSerializer    = "golang-ical"
	defaultOffsetMode    = "legacy"
	defaultStorePath     = "./pushcal.db"
	defaultCompactCron   = "@daily"
	defaultProductID     = "-//pushcal//Calendar Feed//EN"
	defaultCalendarName  = "pushcal"
)

// PushConfig holds web push (VAPID) settings.
type PushConfig struct {
	// GCMServerKey is accepted for legacy deployments; VAPID is used for delivery.
	GCMServerKey    string        `yaml:"gcm_server_key" json:"gcm_server_key"`
	VAPIDPublicKey  string        `yaml:"vapid_public_key" json:"vapid_public_key"`
	VAPIDPrivateKey string        `yaml:"vapid_private_key" json:"vapid_private_key"`
	VAPIDMailTo     string        `yaml:"vapid_mail_to" json:"vapid_mail_to"`
	TTL             int           `yaml:"ttl" json:"ttl"`
	Timeout         time.Duration `yaml:"timeout" json:"timeout"`
}

// PusherConfig holds the Pusher app credentials used for channel auth.
type PusherConfig struct {
	AppID     string `yaml:"app_id" json:"app_id"`
	Key       string `yaml:"key" json:"key"`
	Secret    string `yaml:"secret" json:"secret"`
	Cluster   string `yaml:"cluster" json:"cluster"`
	Encrypted *bool  `yaml:"encrypted,omitempty" json:"encrypted,omitempty"`
}

// CalendarConfig controls the iCalendar feed.
type CalendarConfig struct {
	// TokenSecret signs and verifies /ical/subscribe tokens.
	TokenSecret string `yaml:"token_secret" json:"token_secret"`

	// Serializer selects the iCalendar writer:
	//   - "golang-ical" (default)
	//   - "go-ical"
	Serializer string `yaml:"serializer" json:"serializer"`

	// OffsetMode selects how the "+oo" suffix of stored dates is applied:
	//   - "legacy" (default): offset hours are added to the local hour
	//   - "standard": the timestamp is normalized to UTC
	OffsetMode string `yaml:"offset_mode" json:"offset_mode"`

	ProductID string `yaml:"product_id" json:"product_id"`
	Name      string `yaml:"name" json:"name"`

	// ImportCacheDir caches remote calendars fetched for import. Empty
	// disables the cache.
	ImportCacheDir string `yaml:"import_cache_dir" json:"import_cache_dir"`
}

// StoreConfig locates the document store.
type StoreConfig struct {
	Path string `yaml:"path" json:"path"`
	// CompactCron schedules store compaction. Empty disables it.
	CompactCron string `yaml:"compact_cron" json:"compact_cron"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen   string `yaml:"listen" json:"listen"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	Push     PushConfig     `yaml:"push" json:"push"`
	Pusher   PusherConfig   `yaml:"pusher" json:"pusher"`
	Calendar CalendarConfig `yaml:"calendar" json:"calendar"`
	Store    StoreConfig    `yaml:"store" json:"store"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{
		Store: StoreConfig{CompactCron: defaultCompactCron},
	}
	c.Normalize()
	return c
}

// Normalize fills in missing/zero values with defaults.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Push.TTL <= 0 {
		c.Push.TTL = defaultPushTTL
	}
	if c.Push.Timeout <= 0 {
		c.Push.Timeout = defaultPushTimeout
	}
	if c.Pusher.Cluster == "" {
		c.Pusher.Cluster = defaultPusherCluster
	}
	if c.Pusher.Encrypted == nil {
		encrypted := true
		c.Pusher.Encrypted = &encrypted
	}
	if c.Calendar.Serializer == "" {
		c.Calendar.Serializer = defaultSerializer
	}
	if c.Calendar.OffsetMode == "" {
		c.Calendar.OffsetMode = defaultOffsetMode
	}
	if c.Calendar.ProductID == "" {
		c.Calendar.ProductID = defaultProductID
	}
	if c.Calendar.Name == "" {
		c.Calendar.Name = defaultCalendarName
	}
	if c.Store.Path == "" {
		c.Store.Path = defaultStorePath
	}
}

// Validate reports settings that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.Calendar.Serializer {
	case "golang-ical", "go-ical":
	default:
		return fmt.Errorf("calendar.serializer must be 'golang-ical' or 'go-ical', got '%s'", c.Calendar.Serializer)
	}
	switch c.Calendar.OffsetMode {
	case "legacy", "standard":
	default:
		return fmt.Errorf("calendar.offset_mode must be 'legacy' or 'standard', got '%s'", c.Calendar.OffsetMode)
	}
	return nil
}

// PusherEncrypted reports whether Pusher traffic uses TLS.
func (c *Config) PusherEncrypted() bool {
	return c.Pusher.Encrypted == nil || *c.Pusher.Encrypted
}

// Load loads configuration with the following precedence (highest first):
//  1. environment variables (including those from envFiles, via godotenv)
//  2. the YAML file at path
//  3. defaults
//
// If path does not exist, a default config file is written there with 0600
// permissions. An empty path skips the file entirely.
func Load(path string, envFiles ...string) (*Config, error) {
	if err := loadEnvFiles(envFiles); err != nil {
		return nil, err
	}

	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadEnvFiles(files []string) error {
	for _, f := range files {
		if f == "" {
			continue
		}
		// godotenv never overrides variables that are already set.
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load env file %s: %w", f, err)
		}
	}
	return nil
}

func loadFile(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return nil, fmt.Errorf("failed to write default config: %w", err)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Push.GCMServerKey, "GCM_SERVER_KEY")
	setString(&c.Push.VAPIDPublicKey, "VAPID_PUBLIC_KEY")
	setString(&c.Push.VAPIDPrivateKey, "VAPID_PRIVATE_KEY")
	setString(&c.Push.VAPIDMailTo, "VAPID_MAIL_TO")
	setString(&c.Pusher.AppID, "PUSHER_APP_ID")
	setString(&c.Pusher.Key, "PUSHER_PUBLIC_KEY")
	setString(&c.Pusher.Secret, "PUSHER_SECRET_KEY")
	setString(&c.Pusher.Cluster, "PUSHER_CLUSTER")
	setString(&c.Calendar.TokenSecret, "CALENDAR_TOKEN_SECRET")
	setString(&c.Store.Path, "STORE_PATH")
	setString(&c.LogLevel, "LOG_LEVEL")

	if port := os.Getenv("PORT"); port != "" {
		if _, err := strconv.Atoi(port); err != nil {
			return fmt.Errorf("invalid PORT value: %w", err)
		}
		c.Listen = ":" + port
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".pushcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
