// Package config loads foodbridge configuration from an optional TOML file
// and FOODBRIDGE_* environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Duration is a time.Duration that decodes from TOML strings like "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type Config struct {
	ListenAddr string `toml:"listen_addr"`
	DBPath     string `toml:"db_path"`

	Logging  LoggingConfig  `toml:"logging"`
	Donation DonationConfig `toml:"donation"`
	Pickup   PickupConfig   `toml:"pickup"`
	CORS     CORSConfig     `toml:"cors"`
	Push     PushConfig     `toml:"push"`
	Email    EmailConfig    `toml:"email"`
	Expiry   ExpiryConfig   `toml:"expiry"`
	Snapshot SnapshotConfig `toml:"snapshot"`
}

type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type DonationConfig struct {
	TTL               Duration `toml:"ttl"`
	DonorReward       int      `toml:"donor_reward"`
	ReceiverReward    int      `toml:"receiver_reward"`
	DefaultRadiusKm   float64  `toml:"default_radius_km"`
	RestoredCategory  string   `toml:"restored_category"`
	RestoredShelfLife Duration `toml:"restored_shelf_life"`
}

type PickupConfig struct {
	Secret           string   `toml:"secret"`
	VerifyRateLimit  int      `toml:"verify_rate_limit"`
	VerifyRateWindow Duration `toml:"verify_rate_window"`
	QRSize           int      `toml:"qr_size"`
}

type CORSConfig struct {
	AllowedOrigins []string `toml:"allowed_origins"`
}

type PushConfig struct {
	VAPIDPublicKey  string `toml:"vapid_public_key"`
	VAPIDPrivateKey string `toml:"vapid_private_key"`
	Subscriber      string `toml:"subscriber"`
}

// Enabled reports whether both VAPID keys are present.
func (c PushConfig) Enabled() bool {
	return c.VAPIDPublicKey != "" && c.VAPIDPrivateKey != ""
}

type EmailConfig struct {
	PostmarkToken string   `toml:"postmark_token"`
	From          string   `toml:"from"`
	Categories    []string `toml:"categories"`
}

// Enabled reports whether notification email can be sent.
func (c EmailConfig) Enabled() bool {
	return c.PostmarkToken != "" && c.From != ""
}

type ExpiryConfig struct {
	Interval             Duration `toml:"interval"`
	ProductWarningWindow Duration `toml:"product_warning_window"`
}

type SnapshotConfig struct {
	Endpoint      string   `toml:"endpoint"`
	Bucket        string   `toml:"bucket"`
	Region        string   `toml:"region"`
	AccessKey     string   `toml:"access_key"`
	SecretKey     string   `toml:"secret_key"`
	Passphrase    string   `toml:"passphrase"`
	Interval      Duration `toml:"interval"`
	RetentionDays int      `toml:"retention_days"`
}

// Default returns the configuration used when no file or env overrides are
// given.
func Default() *Config {
	return &Config{
		ListenAddr: ":8080",
		DBPath:     "foodbridge.db",
		Logging:    LoggingConfig{Level: "info", Format: "text"},
		Donation: DonationConfig{
			TTL:               Duration{24 * time.Hour},
			DonorReward:       10,
			ReceiverReward:    5,
			DefaultRadiusKm:   5,
			RestoredCategory:  "Returned Donation",
			RestoredShelfLife: Duration{72 * time.Hour},
		},
		Pickup: PickupConfig{
			VerifyRateLimit:  10,
			VerifyRateWindow: Duration{time.Minute},
			QRSize:           256,
		},
		CORS: CORSConfig{
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:3000"},
		},
		Push: PushConfig{Subscriber: "mailto:noreply@foodbridge.app"},
		Email: EmailConfig{
			Categories: []string{"donation_accepted", "donation_completed", "donation_expired", "product_expiry"},
		},
		Expiry: ExpiryConfig{
			Interval:             Duration{time.Minute},
			ProductWarningWindow: Duration{48 * time.Hour},
		},
		Snapshot: SnapshotConfig{
			Region:        "auto",
			RetentionDays: 30,
		},
	}
}

// Load builds the configuration with the following precedence:
//  1. defaults
//  2. TOML file at path (if path is non-empty)
//  3. FOODBRIDGE_* environment variables
//
// A missing or malformed file is an error. Unknown keys are logged and
// ignored.
func Load(path string, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}
	cfg := Default()

	if path != "" {
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			logger.Warn("unknown config keys ignored", "path", path, "keys", strings.Join(keys, ", "))
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("FOODBRIDGE_LISTEN_ADDR", &cfg.ListenAddr)
	if v, ok := lookup("FOODBRIDGE_PORT"); ok && v != "" {
		cfg.ListenAddr = ":" + v
	}
	str("FOODBRIDGE_DB_PATH", &cfg.DBPath)
	str("FOODBRIDGE_LOG_LEVEL", &cfg.Logging.Level)
	str("FOODBRIDGE_LOG_FORMAT", &cfg.Logging.Format)
	str("FOODBRIDGE_PICKUP_SECRET", &cfg.Pickup.Secret)
	str("FOODBRIDGE_VAPID_PUBLIC_KEY", &cfg.Push.VAPIDPublicKey)
	str("FOODBRIDGE_VAPID_PRIVATE_KEY", &cfg.Push.VAPIDPrivateKey)
	str("FOODBRIDGE_POSTMARK_TOKEN", &cfg.Email.PostmarkToken)
	str("FOODBRIDGE_EMAIL_FROM", &cfg.Email.From)
	str("FOODBRIDGE_S3_ENDPOINT", &cfg.Snapshot.Endpoint)
	str("FOODBRIDGE_S3_BUCKET", &cfg.Snapshot.Bucket)
	str("FOODBRIDGE_S3_REGION", &cfg.Snapshot.Region)
	str("FOODBRIDGE_S3_ACCESS_KEY", &cfg.Snapshot.AccessKey)
	str("FOODBRIDGE_S3_SECRET_KEY", &cfg.Snapshot.SecretKey)
	str("FOODBRIDGE_SNAPSHOT_PASSPHRASE", &cfg.Snapshot.Passphrase)

	if v, ok := lookup("FOODBRIDGE_CORS_ORIGINS"); ok && v != "" {
		var origins []string
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
		cfg.CORS.AllowedOrigins = origins
	}
	if v, ok := lookup("FOODBRIDGE_DONATION_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("FOODBRIDGE_DONATION_TTL: %w", err)
		}
		cfg.Donation.TTL = Duration{d}
	}
	if v, ok := lookup("FOODBRIDGE_DEFAULT_RADIUS_KM"); ok && v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("FOODBRIDGE_DEFAULT_RADIUS_KM: %w", err)
		}
		cfg.Donation.DefaultRadiusKm = r
	}
	return nil
}

// Validate checks values that would make the lifecycle misbehave.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path is required")
	}
	if c.Donation.TTL.Duration <= 0 {
		return fmt.Errorf("donation.ttl must be positive")
	}
	if c.Donation.DonorReward < 0 || c.Donation.ReceiverReward < 0 {
		return fmt.Errorf("donation rewards must be >= 0")
	}
	if c.Donation.DefaultRadiusKm <= 0 {
		return fmt.Errorf("donation.default_radius_km must be positive")
	}
	if c.Donation.RestoredShelfLife.Duration <= 0 {
		return fmt.Errorf("donation.restored_shelf_life must be positive")
	}
	if c.Pickup.VerifyRateLimit <= 0 || c.Pickup.VerifyRateWindow.Duration <= 0 {
		return fmt.Errorf("pickup verify rate limit and window must be positive")
	}
	if c.Expiry.Interval.Duration <= 0 {
		return fmt.Errorf("expiry.interval must be positive")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json", "":
	default:
		return fmt.Errorf("invalid logging.format %q: must be text or json", c.Logging.Format)
	}
	return nil
}
