package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

const (
	defaultExtension = "yaml"
	defaultTagName   = "yaml"
)

const (
	DefaultRetryMax         = 6
	DefaultRetryWaitMinSec  = 3
	DefaultRetryWaitMaxSec  = 120
	DefaultTimeoutSec       = 60
	DefaultExportTimeoutSec = 1800
)

type Binder interface {
	Bind(v *viper.Viper) error
}

type Loader interface {
	Load(name, path, envPrefix string, binder Binder) (Config, error)
}

type Config struct {
	Mindar    Mindar    `yaml:"mindar"`
	Transport Transport `yaml:"transport"`
	Export    Export    `yaml:"export"`

	LogLevel string `yaml:"log_level"`
	Debug    bool   `yaml:"debug"`
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Mindar, validation.Required),
		validation.Field(&c.Transport),
		validation.Field(&c.Export),
		validation.Field(&c.LogLevel, validation.Required, validation.In("trace", "debug", "info", "warn", "error")),
	)
}

// Mindar holds the location of the mindar service and the basic auth
// credentials used for every request.
type Mindar struct {
	APIURL   string `yaml:"api_url"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

func (m Mindar) Validate() error {
	return validation.ValidateStruct(&m,
		validation.Field(&m.APIURL, validation.Required, is.URL),
		validation.Field(&m.Username, validation.Required),
		validation.Field(&m.Password, validation.Required),
	)
}

type Transport struct {
	RetryMax        int `yaml:"retry_max"`
	RetryWaitMinSec int `yaml:"retry_wait_min_sec"`
	RetryWaitMaxSec int `yaml:"retry_wait_max_sec"`
	TimeoutSec      int `yaml:"timeout_sec"`
}

func (t Transport) Validate() error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.RetryMax, validation.Min(0)),
		validation.Field(&t.RetryWaitMinSec, validation.Min(0)),
		validation.Field(&t.RetryWaitMaxSec, validation.Min(t.RetryWaitMinSec)),
		validation.Field(&t.TimeoutSec, validation.Min(0)),
	)
}

func (t Transport) RetryWaitMin() time.Duration {
	return time.Duration(t.RetryWaitMinSec) * time.Second
}

func (t Transport) RetryWaitMax() time.Duration {
	return time.Duration(t.RetryWaitMaxSec) * time.Second
}

func (t Transport) Timeout() time.Duration {
	return time.Duration(t.TimeoutSec) * time.Second
}

type Export struct {
	RootDir      string `yaml:"root_dir"`
	TimeoutSec   int    `yaml:"timeout_sec"`
	IncludeRowID bool   `yaml:"include_row_id"`
	AddHeader    bool   `yaml:"add_header"`
}

func (e Export) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.TimeoutSec, validation.Min(0)),
	)
}

func (e Export) Timeout() time.Duration {
	return time.Duration(e.TimeoutSec) * time.Second
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("transport.retry_max", DefaultRetryMax)
	v.SetDefault("transport.retry_wait_min_sec", DefaultRetryWaitMinSec)
	v.SetDefault("transport.retry_wait_max_sec", DefaultRetryWaitMaxSec)
	v.SetDefault("transport.timeout_sec", DefaultTimeoutSec)
	v.SetDefault("export.root_dir", ".")
	v.SetDefault("export.timeout_sec", DefaultExportTimeoutSec)
	v.SetDefault("log_level", "info")
}

type FileParts struct {
	FileName string
	Path     string
}

func ProcessConfigPath(configFile string) (FileParts, error) {
	absolutePath, err := filepath.Abs(configFile)
	if err != nil {
		return FileParts{}, fmt.Errorf("convert to absolute path: %w", err)
	}

	fileName := filepath.Base(absolutePath)
	extension := filepath.Ext(fileName)

	if strings.ReplaceAll(strings.ToLower(extension), ".", "") != defaultExtension {
		return FileParts{}, fmt.Errorf("config file must have extension %s, got: %s", defaultExtension, extension)
	}

	return FileParts{
		FileName: strings.TrimSuffix(fileName, extension),
		Path:     filepath.Dir(absolutePath),
	}, nil
}

func NewFileSystemLoader() *FileSystemLoader {
	return &FileSystemLoader{}
}

type FileSystemLoader struct{}

func (fs *FileSystemLoader) Load(name, path, envPrefix string, b Binder) (Config, error) {
	v := viper.New()

	v.AddConfigPath(path)
	v.SetConfigName(name)
	v.SetConfigType(defaultExtension)

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if b != nil {
		err := b.Bind(v)
		if err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix(envPrefix)

	err := v.ReadInConfig()
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var config Config

	err = v.Unmarshal(&config, func(cfg *mapstructure.DecoderConfig) {
		cfg.TagName = defaultTagName
	})
	if err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	return config, nil
}

type EnvBinder struct {
	binders map[string]string
}

func (e *EnvBinder) Bind(v *viper.Viper) error {
	for envVar, key := range e.binders {
		err := v.BindEnv(key, envVar)
		if err != nil {
			return fmt.Errorf("bind env var %s to key %s: %w", envVar, key, err)
		}
	}

	return nil
}

func NewEnvBinder(binders map[string]string) *EnvBinder {
	return &EnvBinder{
		binders: binders,
	}
}

// NewDefaultEnvBinder maps the environment variables used by the NDA tools
// for credentials onto the config keys.
func NewDefaultEnvBinder() *EnvBinder {
	return NewEnvBinder(map[string]string{
		"MINDAR_URL":      "mindar.api_url",
		"MINDAR_USERNAME": "mindar.username",
		"MINDAR_PASSWORD": "mindar.password",
	})
}
