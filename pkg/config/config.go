package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/cuemby/edgeagent/pkg/fileutil"
)

// Prefix is the environment variable prefix of every setting
const Prefix = "EDGEAGENT"

// DefaultEnvFile is read before the environment when present
const DefaultEnvFile = "/etc/edgeagent.env"

// ErrNoBaseLocation is returned when the control-plane base URL is missing
var ErrNoBaseLocation = errors.New("control-plane base location not configured")

// Config holds every tunable of the agent
type Config struct {
	// Persisted device state
	ServerLocationFile string `envconfig:"SERVER_LOCATION_FILE" default:"/root/server_location.txt"`
	SerialFile         string `envconfig:"SERIAL_FILE" default:"/root/serial_numbers.txt"`
	NvmemPath          string `envconfig:"NVMEM_PATH" default:"/sys/devices/platform/soc/78b5000.spi/spi_master/spi0/spi0.0/mtd/mtd0/mtd0/nvmem"`
	LinkFile           string `envconfig:"LINK_FILE" default:"/root/v2ray_link.txt"`
	NodeStore          string `envconfig:"NODE_STORE" default:"/etc/config/passwall2"`
	Crontab            string `envconfig:"CRONTAB" default:"/etc/crontabs/root"`
	StateDB            string `envconfig:"STATE_DB" default:"/root/edgeagent/state.db"`
	LockDir            string `envconfig:"LOCK_DIR" default:"/var/lock"`
	LEDDir             string `envconfig:"LED_DIR" default:"/sys/class/leds"`
	Manifest           string `envconfig:"MANIFEST" default:""`
	MetricsTextfile    string `envconfig:"METRICS_TEXTFILE" default:""`

	// Host integration
	WANInterface  string `envconfig:"WAN_INTERFACE" default:"wan"`
	TunnelService string `envconfig:"TUNNEL_SERVICE" default:"passwall2"`
	CronService   string `envconfig:"CRON_SERVICE" default:"cron"`
	InitDir       string `envconfig:"INIT_DIR" default:"/etc/init.d"`
	LocatorURL    string `envconfig:"LOCATOR_URL" default:"https://raw.githubusercontent.com/behjaf/google/main/v2ray_server"`

	// Retry knobs
	HTTPTimeout      time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	ReportAttempts   int           `envconfig:"REPORT_ATTEMPTS" default:"5"`
	ReportDelay      time.Duration `envconfig:"REPORT_DELAY" default:"2s"`
	FetchAttempts    int           `envconfig:"FETCH_ATTEMPTS" default:"3"`
	FetchDelay       time.Duration `envconfig:"FETCH_DELAY" default:"2s"`
	WatchAttempts    int           `envconfig:"WATCH_ATTEMPTS" default:"10"`
	WatchDelay       time.Duration `envconfig:"WATCH_DELAY" default:"15s"`
	WatchThreshold   int           `envconfig:"WATCH_THRESHOLD" default:"4"`
	EnableAttempts   int           `envconfig:"ENABLE_ATTEMPTS" default:"3"`
	EnableDelay      time.Duration `envconfig:"ENABLE_DELAY" default:"5s"`
	ArtifactPause    time.Duration `envconfig:"ARTIFACT_PAUSE" default:"2s"`
	HeartbeatBounce  bool          `envconfig:"HEARTBEAT_BOUNCE_WAN" default:"false"`
	JournalRetention int           `envconfig:"JOURNAL_RETENTION" default:"200"`

	// Logging
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogJSON  bool   `envconfig:"LOG_JSON" default:"false"`
}

// Load reads envFile, when it exists, into the process environment and then
// processes EDGEAGENT_* variables. Variables already set win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the agent cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.WatchAttempts < 1 {
		errs = append(errs, fmt.Errorf("WATCH_ATTEMPTS must be positive, got %d", c.WatchAttempts))
	}
	if c.WatchThreshold < 1 {
		errs = append(errs, fmt.Errorf("WATCH_THRESHOLD must be positive, got %d", c.WatchThreshold))
	}
	if c.ReportAttempts < 1 {
		errs = append(errs, fmt.Errorf("REPORT_ATTEMPTS must be positive, got %d", c.ReportAttempts))
	}
	if c.FetchAttempts < 1 {
		errs = append(errs, fmt.Errorf("FETCH_ATTEMPTS must be positive, got %d", c.FetchAttempts))
	}
	if c.EnableAttempts < 1 {
		errs = append(errs, fmt.Errorf("ENABLE_ATTEMPTS must be positive, got %d", c.EnableAttempts))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// NormalizeBaseURL trims whitespace and trailing slashes and checks that the
// result is an absolute http(s) URL
func NormalizeBaseURL(raw string) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(raw), "/")
	if base == "" {
		return "", ErrNoBaseLocation
	}
	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid base location %q", raw)
	}
	return base, nil
}

// ReadBaseURL returns the normalised base URL stored in path
func ReadBaseURL(path string) (string, error) {
	line, err := fileutil.ReadFirstLine(path)
	if errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("%w: %s missing", ErrNoBaseLocation, path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read base location: %w", err)
	}
	return NormalizeBaseURL(line)
}
