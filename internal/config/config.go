package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	SeenBackendSQLite = "sqlite"
	SeenBackendRedis  = "redis"
	SeenBackendMemory = "memory"

	FileName = "config.toml"
)

var ErrInvalidConfig = errors.New("invalid config")

var (
	osUserHomeDir = os.UserHomeDir
	osCurrentUser = user.Current
	osGeteuid     = os.Geteuid
	osTempDir     = os.TempDir
)

type WatcherConfig struct {
	PollInterval time.Duration
	MaxBackoff   time.Duration
}

type RefreshConfig struct {
	Interval time.Duration
}

type SeenConfig struct {
	Backend       string
	RedisAddr     string
	RetentionDays int
}

type NotifyConfig struct {
	PopupCommand    string
	ToastDuration   time.Duration
	ToastMaxVisible int
}

type Config struct {
	DataDir        string
	APIBase        string
	LogLevel       string
	RequestTimeout time.Duration
	Watcher        WatcherConfig
	Refresh        RefreshConfig
	Seen           SeenConfig
	Notify         NotifyConfig
}

const defaultConfigContent = `# catwatch configuration
# All values shown are defaults. Uncomment and edit to customize.

# Base URL of the cat monitoring backend.
# Environment variable: CATWATCH_API_BASE
# api_base = "http://localhost:5000"

# Log level: debug, info, warn, error.
# Environment variable: CATWATCH_LOG_LEVEL
# log_level = "info"

# Timeout of every backend request.
# Environment variable: CATWATCH_REQUEST_TIMEOUT
# request_timeout = "10s"

[watcher]
# How often alerts are polled.
# Environment variable: CATWATCH_POLL_INTERVAL
# poll_interval = "60s"

# Upper bound of the retry delay after failed polls.
# max_backoff = "10m"

[refresh]
# How often the cat list is refreshed.
# Environment variable: CATWATCH_REFRESH_INTERVAL
# interval = "5s"

[seen]
# Where notified alert identities are remembered: sqlite, redis, memory.
# Environment variable: CATWATCH_SEEN_BACKEND
# backend = "sqlite"

# Environment variable: CATWATCH_REDIS_ADDR
# redis_addr = "127.0.0.1:6379"

# Days of seen sets kept before garbage collection.
# retention_days = 7

[notify]
# Shell command run for every system popup. The title and message are
# exported as CATWATCH_TITLE and CATWATCH_BODY. Empty disables popups.
# Environment variable: CATWATCH_POPUP_COMMAND
# popup_command = 'notify-send "$CATWATCH_TITLE" "$CATWATCH_BODY"'

# How long an in-terminal toast stays visible.
# toast_duration = "6s"

# Maximum stacked toasts; 0 means unlimited.
# toast_max_visible = 0
`

func Defaults() Config {
	return Config{
		APIBase:        "http://localhost:5000",
		LogLevel:       "info",
		RequestTimeout: 10 * time.Second,
		Watcher: WatcherConfig{
			PollInterval: 60 * time.Second,
			MaxBackoff:   10 * time.Minute,
		},
		Refresh: RefreshConfig{Interval: 5 * time.Second},
		Seen: SeenConfig{
			Backend:       SeenBackendSQLite,
			RedisAddr:     "127.0.0.1:6379",
			RetentionDays: 7,
		},
		Notify: NotifyConfig{ToastDuration: 6 * time.Second},
	}
}

func Load() Config {
	cfg := Defaults()

	// Resolve DataDir first (needed for config file path).
	if v := strings.TrimSpace(os.Getenv("CATWATCH_DATA_DIR")); v != "" {
		cfg.DataDir = v
	} else {
		cfg.DataDir = defaultDataDir()
	}

	// Create default config file if it does not exist.
	configPath := filepath.Join(cfg.DataDir, FileName)
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		writeDefaultConfig(configPath)
	}

	// Load config file (values act as defaults).
	file := loadFile(configPath)

	if v := envOrFile("CATWATCH_API_BASE", file.APIBase); v != "" {
		cfg.APIBase = strings.TrimRight(v, "/")
	}
	if v := envOrFile("CATWATCH_LOG_LEVEL", file.LogLevel); v != "" {
		cfg.LogLevel = strings.ToLower(v)
	}
	cfg.RequestTimeout = pickDuration("CATWATCH_REQUEST_TIMEOUT", "request_timeout", file.RequestTimeout, cfg.RequestTimeout)

	cfg.Watcher.PollInterval = pickDuration("CATWATCH_POLL_INTERVAL", "watcher.poll_interval", file.Watcher.PollInterval, cfg.Watcher.PollInterval)
	cfg.Watcher.MaxBackoff = pickDuration("", "watcher.max_backoff", file.Watcher.MaxBackoff, cfg.Watcher.MaxBackoff)
	cfg.Refresh.Interval = pickDuration("CATWATCH_REFRESH_INTERVAL", "refresh.interval", file.Refresh.Interval, cfg.Refresh.Interval)

	if v := envOrFile("CATWATCH_SEEN_BACKEND", file.Seen.Backend); v != "" {
		cfg.Seen.Backend = strings.ToLower(v)
	}
	if v := envOrFile("CATWATCH_REDIS_ADDR", file.Seen.RedisAddr); v != "" {
		cfg.Seen.RedisAddr = v
	}
	cfg.Seen.RetentionDays = pickInt("seen.retention_days", file.Seen.RetentionDays, 1, cfg.Seen.RetentionDays)

	cfg.Notify.PopupCommand = envOrFile("CATWATCH_POPUP_COMMAND", file.Notify.PopupCommand)
	cfg.Notify.ToastDuration = pickDuration("", "notify.toast_duration", file.Notify.ToastDuration, cfg.Notify.ToastDuration)
	cfg.Notify.ToastMaxVisible = pickInt("notify.toast_max_visible", file.Notify.ToastMaxVisible, 0, cfg.Notify.ToastMaxVisible)

	return cfg
}

// Path is the config file inside DataDir.
func (c Config) Path() string {
	return filepath.Join(c.DataDir, FileName)
}

func (c Config) Validate() error {
	var problems []string
	if c.RequestTimeout <= 0 {
		problems = append(problems, "request_timeout must be positive")
	}
	if c.Watcher.PollInterval <= 0 {
		problems = append(problems, "watcher.poll_interval must be positive")
	}
	if c.Watcher.MaxBackoff < c.Watcher.PollInterval {
		problems = append(problems, "watcher.max_backoff must not be below poll_interval")
	}
	if c.Refresh.Interval < time.Second {
		problems = append(problems, "refresh.interval must be at least 1s")
	}
	switch c.Seen.Backend {
	case SeenBackendSQLite, SeenBackendMemory:
	case SeenBackendRedis:
		if strings.TrimSpace(c.Seen.RedisAddr) == "" {
			problems = append(problems, "seen.redis_addr is required for the redis backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown seen.backend %q", c.Seen.Backend))
	}
	if c.Seen.RetentionDays < 1 {
		problems = append(problems, "seen.retention_days must be at least 1")
	}
	if c.Notify.ToastDuration <= 0 {
		problems = append(problems, "notify.toast_duration must be positive")
	}
	if c.Notify.ToastMaxVisible < 0 {
		problems = append(problems, "notify.toast_max_visible must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

func defaultDataDir() string {
	if home, err := osUserHomeDir(); err == nil && strings.TrimSpace(home) != "" {
		return filepath.Join(home, ".catwatch")
	}
	if u, err := osCurrentUser(); err == nil && strings.TrimSpace(u.HomeDir) != "" {
		return filepath.Join(u.HomeDir, ".catwatch")
	}
	name := "catwatch"
	if uid := osGeteuid(); uid > 0 {
		name = "catwatch-" + strconv.Itoa(uid)
	}
	return filepath.Join(osTempDir(), name)
}

// fileConfig mirrors config.toml. Durations and counts keep their raw
// value so unusable entries can be reported by key.
type fileConfig struct {
	APIBase        string       `toml:"api_base"`
	LogLevel       string       `toml:"log_level"`
	RequestTimeout fileDuration `toml:"request_timeout"`
	Watcher        struct {
		PollInterval fileDuration `toml:"poll_interval"`
		MaxBackoff   fileDuration `toml:"max_backoff"`
	} `toml:"watcher"`
	Refresh struct {
		Interval fileDuration `toml:"interval"`
	} `toml:"refresh"`
	Seen struct {
		Backend       string  `toml:"backend"`
		RedisAddr     string  `toml:"redis_addr"`
		RetentionDays fileInt `toml:"retention_days"`
	} `toml:"seen"`
	Notify struct {
		PopupCommand    string       `toml:"popup_command"`
		ToastDuration   fileDuration `toml:"toast_duration"`
		ToastMaxVisible fileInt      `toml:"toast_max_visible"`
	} `toml:"notify"`
}

// fileDuration accepts "90s" style strings and bare integers as seconds.
type fileDuration struct {
	set   bool
	raw   string
	value time.Duration
	ok    bool
}

func (d *fileDuration) UnmarshalTOML(v any) error {
	d.set = true
	switch val := v.(type) {
	case string:
		d.raw = val
		d.value, d.ok = parseDuration(val)
	case int64:
		d.raw = strconv.FormatInt(val, 10)
		if val > 0 {
			d.value, d.ok = time.Duration(val)*time.Second, true
		}
	default:
		d.raw = fmt.Sprint(val)
	}
	return nil
}

// fileInt accepts integers and numeric strings.
type fileInt struct {
	set   bool
	raw   string
	value int
	ok    bool
}

func (n *fileInt) UnmarshalTOML(v any) error {
	n.set = true
	switch val := v.(type) {
	case int64:
		n.raw = strconv.FormatInt(val, 10)
		n.value, n.ok = int(val), true
	case string:
		n.raw = val
		parsed, err := strconv.Atoi(strings.TrimSpace(val))
		n.value, n.ok = parsed, err == nil
	default:
		n.raw = fmt.Sprint(val)
	}
	return nil
}

// loadFile decodes the TOML file. A missing or malformed file yields the
// zero fileConfig; unknown keys are reported and skipped.
func loadFile(path string) fileConfig {
	var fc fileConfig
	md, err := toml.DecodeFile(path, &fc)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Warn("config file ignored", "path", path, "err", err)
		}
		return fileConfig{}
	}
	for _, key := range md.Undecoded() {
		slog.Warn("unknown config key ignored", "path", path, "key", key.String())
	}
	return fc
}

func envOrFile(envKey, fileValue string) string {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		return v
	}
	return strings.TrimSpace(fileValue)
}

// pickDuration applies env > file > current. Unusable env or file values
// are logged and skipped. An empty envKey means the key has no env form.
func pickDuration(envKey, fileKey string, file fileDuration, current time.Duration) time.Duration {
	if envKey != "" {
		if raw := strings.TrimSpace(os.Getenv(envKey)); raw != "" {
			if d, ok := parseDuration(raw); ok {
				return d
			}
			slog.Warn("config value ignored, want a positive duration", "env", envKey, "value", raw)
		}
	}
	if !file.set {
		return current
	}
	if !file.ok {
		slog.Warn("config value ignored, want a positive duration", "key", fileKey, "value", file.raw)
		return current
	}
	return file.value
}

func pickInt(fileKey string, file fileInt, minimum, current int) int {
	if !file.set {
		return current
	}
	if !file.ok || file.value < minimum {
		slog.Warn("config value ignored", "key", fileKey, "value", file.raw, "min", minimum)
		return current
	}
	return file.value
}

// writeDefaultConfig creates the config file with commented-out defaults.
// Best-effort: errors are silently ignored.
func writeDefaultConfig(path string) {
	_ = os.MkdirAll(filepath.Dir(path), 0o700)
	_ = os.WriteFile(path, []byte(defaultConfigContent), 0o600) //nolint:gosec // fixed content, not user input
}

func parseDuration(raw string) (time.Duration, bool) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}
