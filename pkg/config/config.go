package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/iancoleman/strcase"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
)

const (
	MissingPolicyDelete      = "delete"
	MissingPolicyMarkMissing = "mark_missing"
)

type Config struct {
	DatabaseConnectRetryCount int           `koanf:"database_connect_retry_count" default:"5" validate:"gte=1"`
	DatabaseConnectRetryDelay time.Duration `koanf:"database_connect_retry_delay" default:"2s"`
	DatabaseDebug             bool          `koanf:"database_debug"`
	DatabaseFilePath          string        `koanf:"database_file_path" validate:"required"`
	DatabaseMaxRetries        int           `koanf:"database_max_retries" default:"5" validate:"gte=0"`
	DatabaseBusyTimeout       time.Duration `koanf:"database_busy_timeout" default:"5s"`

	ScanRoots              []string `koanf:"scan_roots"`
	LockFilePath           string   `koanf:"lock_file_path"`
	ThumbnailWidth         int      `koanf:"thumbnail_width" default:"200" validate:"gte=1"`
	ThumbnailHeight        int      `koanf:"thumbnail_height" default:"300" validate:"gte=1"`
	MissingPolicy          string   `koanf:"missing_policy" default:"delete" validate:"oneof=delete mark_missing"`
	DeleteOrphansAfterScan bool     `koanf:"delete_orphans_after_scan"`

	ScanSchedule       string        `koanf:"scan_schedule" default:"@every 1h"`
	WatchDevices       bool          `koanf:"watch_devices" default:"true"`
	WatchRoots         bool          `koanf:"watch_roots"`
	WatchInterval      time.Duration `koanf:"watch_interval" default:"30s"`
	WorkerPollInterval time.Duration `koanf:"worker_poll_interval" default:"5s"`
	JobRetention       time.Duration `koanf:"job_retention" default:"720h"`
}

const configFileENV = "CONFIG_FILE"

const defaultConfigFile = "/config/shelfscan.yaml"

// New loads the config file (if present) and then overlays environment
// variables named after the upper snake case of each key.
func New() (*Config, error) {
	k := koanf.New(".")

	configFile := os.Getenv(configFileENV)
	if configFile == "" {
		configFile = defaultConfigFile
	}
	if _, err := os.Stat(configFile); err == nil {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return nil, errors.Wrapf(err, "failed to load config file %s", configFile)
		}
	}

	keys := knownKeys()
	err := k.Load(env.ProviderWithValue("", ".", func(name, value string) (string, interface{}) {
		key := strings.ToLower(name)
		if _, ok := keys[key]; !ok {
			return "", nil
		}
		if key == "scan_roots" {
			return key, filepath.SplitList(value)
		}
		return key, value
	}), nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.WithStack(err)
	}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, errors.WithStack(err)
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	cfg.normalize()

	return cfg, nil
}

// NewForTest returns a config backed by an in-memory database.
func NewForTest() *Config {
	cfg := &Config{}
	_ = defaults.Set(cfg)
	cfg.DatabaseFilePath = ":memory:"
	cfg.DatabaseConnectRetryCount = 1
	cfg.WatchDevices = false
	cfg.normalize()
	return cfg
}

func (cfg *Config) normalize() {
	if cfg.LockFilePath == "" && cfg.DatabaseFilePath != ":memory:" {
		cfg.LockFilePath = cfg.DatabaseFilePath + ".scan.lock"
	}
	roots := make([]string, 0, len(cfg.ScanRoots))
	for _, root := range cfg.ScanRoots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		roots = append(roots, filepath.Clean(root))
	}
	cfg.ScanRoots = roots
}

func validate(cfg *Config) error {
	err := validator.New().Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.WithStack(err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		key := toSnakeCase(fe.StructField())
		if fe.Tag() == "required" {
			msgs = append(msgs, "missing required config: set "+strings.ToUpper(key)+" or "+key)
			continue
		}
		msgs = append(msgs, "invalid config "+key+": failed "+fe.Tag()+" "+fe.Param())
	}
	return errors.New(strings.Join(msgs, "; "))
}

func knownKeys() map[string]struct{} {
	keys := make(map[string]struct{})
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		keys[toSnakeCase(t.Field(i).Name)] = struct{}{}
	}
	return keys
}

func toSnakeCase(s string) string {
	return strcase.ToSnake(s)
}
