package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/sydlexius/tracksignal/internal/logging"
	"github.com/sydlexius/tracksignal/internal/matcher"
	"github.com/sydlexius/tracksignal/internal/pipeline"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig             `yaml:"server"`
	Database  DatabaseConfig           `yaml:"database"`
	Logging   LoggingConfig            `yaml:"logging"`
	Detection DetectionConfig          `yaml:"detection"`
	Remote    RemoteConfig             `yaml:"remote"`
	Matching  MatchingConfig           `yaml:"matching"`
	History   HistoryConfig            `yaml:"history"`
	Files     FilesConfig              `yaml:"files"`
	Sessions  []pipeline.SessionConfig `yaml:"sessions"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`
	// APIToken, when set, is required as a bearer token on API calls.
	APIToken string `yaml:"api_token"`
	// TestRPS limits the diagnostic endpoints per client.
	TestRPS float64 `yaml:"test_rps"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	// OptimizeInterval schedules PRAGMA optimize and a WAL checkpoint.
	// Zero disables it.
	OptimizeInterval time.Duration `yaml:"optimize_interval"`
	// BackupDir enables VACUUM INTO snapshots when set.
	BackupDir      string        `yaml:"backup_dir"`
	BackupInterval time.Duration `yaml:"backup_interval"`
	BackupKeep     int           `yaml:"backup_keep"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxFiles   int    `yaml:"max_files"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// DetectionConfig tunes the file watcher and deduplication.
type DetectionConfig struct {
	Debounce     time.Duration `yaml:"debounce"`
	FilePoll     time.Duration `yaml:"file_poll"`
	MaxFileBytes int64         `yaml:"max_file_bytes"`
	ForcePoll    bool          `yaml:"force_poll"`
	FileWindow   time.Duration `yaml:"file_window"`
	RemoteWindow time.Duration `yaml:"remote_window"`
}

// RemoteConfig tunes live playlist polling.
type RemoteConfig struct {
	URLTemplate  string        `yaml:"url_template"`
	UserAgent    string        `yaml:"user_agent"`
	Interval     time.Duration `yaml:"interval"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
	MaxBodyBytes int64         `yaml:"max_body_bytes"`
	// RPS and Burst bound fetches per host across all sessions.
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// MatchingConfig holds request matching settings.
type MatchingConfig struct {
	Threshold        float64 `yaml:"threshold"`
	PriorityOrdering bool    `yaml:"priority_ordering"`
	Scorer           string  `yaml:"scorer"`
}

// HistoryConfig controls play history retention.
type HistoryConfig struct {
	RetentionDays int           `yaml:"retention_days"`
	PruneInterval time.Duration `yaml:"prune_interval"`
}

// FilesConfig controls now-playing text file discovery.
type FilesConfig struct {
	SearchPatterns []string      `yaml:"search_patterns"`
	MaxAge         time.Duration `yaml:"max_age"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8080,
			BasePath: "/",
			TestRPS:  2,
		},
		Database: DatabaseConfig{
			Path:             "/data/tracksignal.db",
			OptimizeInterval: 24 * time.Hour,
			BackupInterval:   24 * time.Hour,
			BackupKeep:       7,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxFiles:   3,
			MaxAgeDays: 30,
		},
		Detection: DetectionConfig{
			Debounce:     250 * time.Millisecond,
			FilePoll:     2 * time.Second,
			MaxFileBytes: 64 << 10,
			FileWindow:   30 * time.Second,
			RemoteWindow: 10 * time.Minute,
		},
		Remote: RemoteConfig{
			URLTemplate:  "https://serato.com/playlists/%s/live",
			Interval:     5 * time.Second,
			FetchTimeout: 4 * time.Second,
			MaxBodyBytes: 2 << 20,
			RPS:          2,
			Burst:        2,
		},
		Matching: MatchingConfig{
			Threshold: 0.85,
			Scorer:    "hybrid",
		},
		History: HistoryConfig{
			RetentionDays: 30,
			PruneInterval: time.Hour,
		},
		Files: FilesConfig{
			MaxAge: 12 * time.Hour,
		},
	}
}

// Load reads config from a YAML file (if it exists), then a .env file (if
// it exists), and finally overrides with environment variables.
// Environment variables take precedence.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if envFile != "" {
		// Variables already present in the environment win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading env file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

// envReader collects the first parse failure so loadFromEnv reads linearly.
type envReader struct {
	err error
}

func (r *envReader) str(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (r *envReader) integer(key string, dst *int) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = n
}

func (r *envReader) integer64(key string, dst *int64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = n
}

func (r *envReader) float(key string, dst *float64) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = f
}

func (r *envReader) boolean(key string, dst *bool) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = b
}

func (r *envReader) duration(key string, dst *time.Duration) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		r.fail(key, err)
		return
	}
	*dst = d
}

func (r *envReader) list(key string, dst *[]string) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	var out []string
	for p := range strings.SplitSeq(v, string(os.PathListSeparator)) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	*dst = out
}

func (r *envReader) fail(key string, err error) {
	if r.err == nil {
		r.err = fmt.Errorf("%s: %w", key, err)
	}
}

func (c *Config) loadFromEnv() error {
	var r envReader
	r.integer("TS_PORT", &c.Server.Port)
	r.str("TS_BASE_PATH", &c.Server.BasePath)
	r.str("TS_API_TOKEN", &c.Server.APIToken)
	r.float("TS_TEST_RPS", &c.Server.TestRPS)
	r.str("TS_DB_PATH", &c.Database.Path)
	r.duration("TS_DB_OPTIMIZE_INTERVAL", &c.Database.OptimizeInterval)
	r.str("TS_DB_BACKUP_DIR", &c.Database.BackupDir)
	r.duration("TS_DB_BACKUP_INTERVAL", &c.Database.BackupInterval)
	r.integer("TS_DB_BACKUP_KEEP", &c.Database.BackupKeep)
	r.str("TS_LOG_LEVEL", &c.Logging.Level)
	r.str("TS_LOG_FORMAT", &c.Logging.Format)
	r.str("TS_LOG_OUTPUT", &c.Logging.Output)
	r.str("TS_LOG_FILE", &c.Logging.FilePath)
	r.duration("TS_DEBOUNCE", &c.Detection.Debounce)
	r.duration("TS_FILE_POLL", &c.Detection.FilePoll)
	r.integer64("TS_MAX_FILE_BYTES", &c.Detection.MaxFileBytes)
	r.boolean("TS_FORCE_POLL", &c.Detection.ForcePoll)
	r.duration("TS_FILE_WINDOW", &c.Detection.FileWindow)
	r.duration("TS_REMOTE_WINDOW", &c.Detection.RemoteWindow)
	r.str("TS_REMOTE_URL_TEMPLATE", &c.Remote.URLTemplate)
	r.str("TS_REMOTE_USER_AGENT", &c.Remote.UserAgent)
	r.duration("TS_REMOTE_INTERVAL", &c.Remote.Interval)
	r.duration("TS_REMOTE_FETCH_TIMEOUT", &c.Remote.FetchTimeout)
	r.float("TS_REMOTE_RPS", &c.Remote.RPS)
	r.float("TS_MATCH_THRESHOLD", &c.Matching.Threshold)
	r.boolean("TS_MATCH_PRIORITY", &c.Matching.PriorityOrdering)
	r.str("TS_MATCH_SCORER", &c.Matching.Scorer)
	r.integer("TS_HISTORY_RETENTION_DAYS", &c.History.RetentionDays)
	r.list("TS_SEARCH_PATTERNS", &c.Files.SearchPatterns)
	return r.err
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Database.BackupKeep < 0 {
		return fmt.Errorf("database backup_keep must not be negative")
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	if c.Server.BasePath != "" && !strings.HasPrefix(c.Server.BasePath, "/") {
		c.Server.BasePath = "/" + c.Server.BasePath
	}
	if c.Matching.Threshold <= 0 || c.Matching.Threshold > 1 {
		return fmt.Errorf("matching threshold must be in (0, 1]: %v", c.Matching.Threshold)
	}
	if _, ok := matcher.ScorerByName(c.Matching.Scorer); !ok {
		return fmt.Errorf("unknown matching scorer %q", c.Matching.Scorer)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	if !logging.ValidFormat(c.Logging.Format) {
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}
	if !logging.ValidOutput(c.Logging.Output) {
		return fmt.Errorf("invalid log output %q", c.Logging.Output)
	}
	if c.Remote.Interval > 0 && c.Remote.FetchTimeout >= c.Remote.Interval {
		return fmt.Errorf("remote fetch_timeout (%s) must be shorter than interval (%s)", c.Remote.FetchTimeout, c.Remote.Interval)
	}
	if !strings.Contains(c.Remote.URLTemplate, "%s") {
		return fmt.Errorf("remote url_template must contain %%s")
	}
	if c.History.RetentionDays < 0 {
		return fmt.Errorf("history retention_days must not be negative")
	}
	for i := range c.Sessions {
		if strings.TrimSpace(c.Sessions[i].Kind) == "" {
			c.Sessions[i].Kind = pipeline.KindAuto
		}
	}
	return nil
}

// Retention returns the play history retention as a duration.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.History.RetentionDays) * 24 * time.Hour
}

// LoggerConfig converts the logging section for the logging package.
func (c *Config) LoggerConfig() logging.Config {
	return logging.Config{
		Level:          c.Logging.Level,
		Format:         c.Logging.Format,
		Output:         c.Logging.Output,
		FilePath:       c.Logging.FilePath,
		FileMaxSizeMB:  c.Logging.MaxSizeMB,
		FileMaxFiles:   c.Logging.MaxFiles,
		FileMaxAgeDays: c.Logging.MaxAgeDays,
	}
}
