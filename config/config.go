package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/adhocore/gronx"
	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ConfigPathEnvVar = "CIVIC_CONFIG"

	RealtimeSourceLocal     = "local"
	RealtimeSourceFirestore = "firestore"
)

type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Firebase   FirebaseConfig   `yaml:"firebase"`
	Realtime   RealtimeConfig   `yaml:"realtime"`
	Roles      RolesConfig      `yaml:"roles"`
	Uploads    UploadsConfig    `yaml:"uploads"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
	Polls      PollsConfig      `yaml:"polls"`
	Moderation ModerationConfig `yaml:"moderation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	GinMode        string   `yaml:"gin_mode"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	// TrustedProxies are the IPs or CIDRs whose forwarding headers are
	// believed. Empty trusts no proxy.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // mysql|sqlite3
	// DSN wins over the individual connection fields when set
	DSN             string   `yaml:"dsn"`
	User            string   `yaml:"user"`
	Password        string   `yaml:"password"`
	Host            string   `yaml:"host"`
	Name            string   `yaml:"name"`
	TLS             bool     `yaml:"tls"`
	MaxOpenConns    int      `yaml:"max_open_conns"`
	MaxIdleConns    int      `yaml:"max_idle_conns"`
	ConnMaxIdleTime Duration `yaml:"conn_max_idle_time"`
	Migrate         bool     `yaml:"migrate"`
}

type FirebaseConfig struct {
	Bucket string `yaml:"bucket"`
	// APIKey is the web API key used for password sign in
	APIKey string `yaml:"api_key"`
}

type RealtimeConfig struct {
	Source              string   `yaml:"source"` // local|firestore
	FirestoreCollection string   `yaml:"firestore_collection"`
	DebounceDelay       Duration `yaml:"debounce_delay"`
	ResubscribeInterval Duration `yaml:"resubscribe_interval"`
}

type RolesConfig struct {
	AdminDomains     []string `yaml:"admin_domains"`
	OfficialDomains  []string `yaml:"official_domains"`
	VerificationCode string   `yaml:"verification_code"`
}

type UploadsConfig struct {
	MaxSize SizeBytes `yaml:"max_size"`
}

type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type PollsConfig struct {
	ExpiryCron string `yaml:"expiry_cron"`
}

type ModerationConfig struct {
	AutoFlagThreshold int `yaml:"auto_flag_threshold"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json|console
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           8080,
			GinMode:        "release",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Database: DatabaseConfig{
			Driver:       "mysql",
			Name:         "civic-connect",
			TLS:          true,
			MaxOpenConns: 50,
			MaxIdleConns: 50,
		},
		Realtime: RealtimeConfig{
			Source:              RealtimeSourceLocal,
			FirestoreCollection: "changes",
			DebounceDelay:       Duration(500 * time.Millisecond),
			ResubscribeInterval: Duration(30 * time.Second),
		},
		Uploads:    UploadsConfig{MaxSize: 10 << 20},
		RateLimit:  RateLimitConfig{RPS: 10, Burst: 20},
		Polls:      PollsConfig{ExpiryCron: "* * * * *"},
		Moderation: ModerationConfig{AutoFlagThreshold: 5},
		Logging:    LoggingConfig{Level: "info", Format: "json"},
	}
}

// Load merges defaults, the optional yaml file, the environment and finally
// command line flags, in that order of precedence
func Load(args []string) (*Config, error) {
	_ = godotenv.Load(".env")

	flags := flag.NewFlagSet("civic-connect", flag.ContinueOnError)
	cfgPath := flags.String("config", os.Getenv(ConfigPathEnvVar), "Path to a yaml config file")
	port := flags.Int("port", 0, "HTTP listen port")
	migrate := flags.Bool("migrate", false, "Apply the bundled schema on start")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg := Default()
	if *cfgPath != "" {
		if err := cfg.loadFile(*cfgPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *migrate {
		cfg.Database.Migrate = true
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("config file not found: %s", path)
		}
		return err
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

func parseList(v string, sep string) []string {
	var parts []string
	for _, p := range strings.Split(v, sep) {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

func (c *Config) applyEnv() error {
	var errs []error
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%v: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok {
			*dst = strings.TrimSpace(v)
		}
	}

	setInt("PORT", &c.Server.Port)
	setString("GIN_MODE", &c.Server.GinMode)
	if v := os.Getenv("FE_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = parseList(v, ";")
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		c.Server.TrustedProxies = parseList(v, ",")
	}

	setString("DB_DRIVER", &c.Database.Driver)
	setString("DB_DSN", &c.Database.DSN)
	setString("DB_USER", &c.Database.User)
	setString("DB_PASS", &c.Database.Password)
	setString("DB_HOST", &c.Database.Host)
	setString("DB_NAME", &c.Database.Name)
	setInt("DB_MAX_OPEN_CONNS", &c.Database.MaxOpenConns)
	setInt("DB_MAX_IDLE_CONNS", &c.Database.MaxIdleConns)
	if v := os.Getenv("DB_MIGRATE"); v != "" {
		migrate, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DB_MIGRATE: %w", err))
		}
		c.Database.Migrate = migrate
	}

	setString("FIREBASE_BUCKET", &c.Firebase.Bucket)
	setString("FIREBASE_API_KEY", &c.Firebase.APIKey)

	setString("REALTIME_SOURCE", &c.Realtime.Source)
	setString("FIRESTORE_COLLECTION", &c.Realtime.FirestoreCollection)
	if v := os.Getenv("DEBOUNCE_DELAY"); v != "" {
		d, err := ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("DEBOUNCE_DELAY: %w", err))
		}
		c.Realtime.DebounceDelay = d
	}

	if v := os.Getenv("ADMIN_DOMAINS"); v != "" {
		c.Roles.AdminDomains = parseList(v, ",")
	}
	if v := os.Getenv("OFFICIAL_DOMAINS"); v != "" {
		c.Roles.OfficialDomains = parseList(v, ",")
	}
	setString("ROLE_VERIFICATION_CODE", &c.Roles.VerificationCode)

	if v := os.Getenv("MAX_UPLOAD_SIZE"); v != "" {
		size, err := ParseSize(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("MAX_UPLOAD_SIZE: %w", err))
		}
		c.Uploads.MaxSize = size
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("RATE_LIMIT_RPS: %w", err))
		}
		c.RateLimit.RPS = rps
	}
	setInt("RATE_LIMIT_BURST", &c.RateLimit.Burst)
	setString("POLL_EXPIRY_CRON", &c.Polls.ExpiryCron)
	setInt("AUTO_FLAG_THRESHOLD", &c.Moderation.AutoFlagThreshold)
	setString("LOG_LEVEL", &c.Logging.Level)
	setString("LOG_FORMAT", &c.Logging.Format)

	return errors.Join(errs...)
}

// Validate reports every missing or malformed setting at once
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 {
		errs = append(errs, errors.New("server port must be set"))
	}
	switch c.Database.Driver {
	case "mysql":
		if c.Database.DSN == "" && c.Database.Host == "" {
			errs = append(errs, errors.New("database host or dsn must be set"))
		}
	case "sqlite3":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("database dsn must be set for sqlite3"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Firebase.Bucket == "" {
		errs = append(errs, errors.New("firebase bucket must be set"))
	}
	if c.Realtime.Source != RealtimeSourceLocal && c.Realtime.Source != RealtimeSourceFirestore {
		errs = append(errs, fmt.Errorf("unsupported realtime source %q", c.Realtime.Source))
	}
	if !gronx.IsValid(c.Polls.ExpiryCron) {
		errs = append(errs, fmt.Errorf("invalid poll expiry cron %q", c.Polls.ExpiryCron))
	}
	for _, proxy := range c.Server.TrustedProxies {
		if net.ParseIP(proxy) == nil {
			if _, _, err := net.ParseCIDR(proxy); err != nil {
				errs = append(errs, fmt.Errorf("invalid trusted proxy %q", proxy))
			}
		}
	}
	if c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0 {
		errs = append(errs, errors.New("rate limit rps and burst must be positive"))
	}
	return errors.Join(errs...)
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}

// DatabaseDSN returns the configured dsn or builds a mysql one from the
// connection fields
func (c *Config) DatabaseDSN() string {
	if c.Database.DSN != "" || c.Database.Driver != "mysql" {
		return c.Database.DSN
	}
	dsn := mysql.NewConfig()
	dsn.User = c.Database.User
	dsn.Passwd = c.Database.Password
	dsn.Net = "tcp"
	dsn.Addr = c.Database.Host
	dsn.DBName = c.Database.Name
	dsn.ParseTime = true
	if c.Database.TLS {
		dsn.TLSConfig = "true"
	}
	return dsn.FormatDSN()
}
