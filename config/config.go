package config

import (
	"errors"
	"fmt"
	"io/fs"
	"io/ioutil"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

const (
	DefaultConfigFile = "dval.yml"
	DefaultEnvFile    = ".env"
	DefaultAPIKeyEnv  = "FMP_KEY"
)

type Config struct {
	Timeout time.Duration

	// Snippet shape
	Marker            string
	DescriptionMarker string
	FunctionName      string

	// Evaluation
	Isolation   string
	StopOnWatch bool

	Fetch   FetchConfig
	Logging LoggingConfig
}

type FetchConfig struct {
	APIKey            string
	Endpoints         map[string]string
	RequestsPerSecond float64
	Burst             int
}

type LoggingConfig struct {
	Level  string
	Format string
	File   string
	MaxAge int
}

var GlobalCfg *Config

type dvalConfig struct {
	TimeoutSeconds    float64           `yaml:"timeout-seconds"`
	Marker            string            `yaml:"marker"`
	DescriptionMarker string            `yaml:"description-marker"`
	FunctionName      string            `yaml:"function-name"`
	Isolation         string            `yaml:"isolation"`
	StopOnWatch       *bool             `yaml:"stop-on-watch"`
	APIKeyEnv         string            `yaml:"api-key-env"` // Environment variable holding the data API key
	Endpoints         map[string]string `yaml:"endpoints"`
	RequestsPerSecond float64           `yaml:"requests-per-second"`
	Burst             int               `yaml:"burst"`
	LogLevel          string            `yaml:"log-level"`
	LogFormat         string            `yaml:"log-format"`
	LogFile           string            `yaml:"log-file"`
	LogMaxAge         int               `yaml:"log-max-age"`
}

// Read loads the environment file and then the config file. Either may be
// absent, in which case the defaults apply.
func Read(path string, envFile string) (*Config, error) {
	if envFile == "" {
		envFile = DefaultEnvFile
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("unable to load `%s`: %w", envFile, err)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	raw, err := readDvalConfig(path, explicit)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Timeout:           5 * time.Second,
		Marker:            raw.Marker,
		DescriptionMarker: raw.DescriptionMarker,
		FunctionName:      raw.FunctionName,
		Isolation:         raw.Isolation,
		StopOnWatch:       raw.StopOnWatch == nil || *raw.StopOnWatch,
		Fetch: FetchConfig{
			Endpoints:         raw.Endpoints,
			RequestsPerSecond: raw.RequestsPerSecond,
			Burst:             raw.Burst,
		},
		Logging: LoggingConfig{
			Level:  raw.LogLevel,
			Format: raw.LogFormat,
			File:   raw.LogFile,
			MaxAge: raw.LogMaxAge,
		},
	}

	if raw.TimeoutSeconds < 0 {
		return nil, errors.New(fmt.Sprintf("timeout-seconds must be positive, got %v", raw.TimeoutSeconds))
	} else if raw.TimeoutSeconds > 0 {
		cfg.Timeout = time.Duration(raw.TimeoutSeconds * float64(time.Second))
	}

	switch cfg.Isolation {
	case "":
		cfg.Isolation = "runtime"
	case "runtime", "process":
	default:
		return nil, errors.New(fmt.Sprintf("unknown isolation `%s`, expected `runtime` or `process`", cfg.Isolation))
	}

	keyEnv := raw.APIKeyEnv
	if keyEnv == "" {
		keyEnv = DefaultAPIKeyEnv
	}
	cfg.Fetch.APIKey = os.Getenv(keyEnv)

	GlobalCfg = cfg
	return cfg, nil
}

func readDvalConfig(path string, required bool) (dvalConfig, error) {
	c := dvalConfig{}

	bytes, err := ioutil.ReadFile(path)
	if os.IsNotExist(err) && !required {
		return c, nil
	}
	if err != nil {
		return c, err
	}

	if err := yaml.UnmarshalStrict(bytes, &c); err != nil {
		return c, fmt.Errorf("unable to parse `%s`: %w", path, err)
	}

	return c, nil
}
