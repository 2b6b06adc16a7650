// Package config loads and persists shanbaysync settings with viper: a YAML
// file, SHANBAYSYNC_* environment variables and built-in defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/japaniel/shanbaysync/pkg/download"
	"github.com/japaniel/shanbaysync/pkg/export"
	"github.com/japaniel/shanbaysync/pkg/shanbay"
	"github.com/japaniel/shanbaysync/pkg/transport"
)

// EnvPrefix prefixes every environment override, e.g. SHANBAYSYNC_API_TIMEOUT.
const EnvPrefix = "SHANBAYSYNC"

// Settings is the full configuration.
type Settings struct {
	Database  string `mapstructure:"database"`
	MediaDir  string `mapstructure:"media_dir"`
	OutputDir string `mapstructure:"output_dir"`
	// Cookie is the session cookie map serialized as a JSON object.
	Cookie string `mapstructure:"cookie"`

	Deck                 string   `mapstructure:"deck"`
	NoteType             string   `mapstructure:"note_type"`
	Example              bool     `mapstructure:"example"`
	Translate            bool     `mapstructure:"translate"`
	TitleLanguage        string   `mapstructure:"title_language"`
	LinkStyle            string   `mapstructure:"link_style"`
	PhoneticAccents      []string `mapstructure:"phonetic_accents"`
	PronunciationAccents []string `mapstructure:"pronunciation_accents"`

	API struct {
		BaseURL           string        `mapstructure:"base_url"`
		Timeout           time.Duration `mapstructure:"timeout"`
		MaxRetries        int           `mapstructure:"max_retries"`
		RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	} `mapstructure:"api"`

	Download struct {
		Workers int `mapstructure:"workers"`
	} `mapstructure:"download"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
		File   string `mapstructure:"file"`
	} `mapstructure:"log"`

	// File is where Save writes; the loaded file or the default location.
	File string `mapstructure:"-"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("database", "shanbaysync.db")
	v.SetDefault("media_dir", "media")
	v.SetDefault("output_dir", "export")
	v.SetDefault("cookie", "")
	v.SetDefault("deck", "Shanbay")
	v.SetDefault("note_type", "Shanbay Reading")
	v.SetDefault("example", true)
	v.SetDefault("translate", true)
	v.SetDefault("title_language", string(export.TitleCN))
	v.SetDefault("link_style", string(export.LinkWeb))
	v.SetDefault("phonetic_accents", []string{string(export.AccentUK), string(export.AccentUS)})
	v.SetDefault("pronunciation_accents", []string{string(export.AccentUK), string(export.AccentUS)})

	v.SetDefault("api.base_url", shanbay.DefaultBaseURL)
	v.SetDefault("api.timeout", transport.DefaultTimeout)
	v.SetDefault("api.max_retries", transport.DefaultMaxRetries)
	v.SetDefault("api.requests_per_second", 5.0)

	v.SetDefault("download.workers", download.DefaultWorkers)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.file", "")
}

// DefaultDir is the per-user configuration directory.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("error fetching user directory: %w", err)
	}
	return filepath.Join(home, ".shanbaysync"), nil
}

// Load reads settings from path, or from config.yaml in the working
// directory or DefaultDir when path is empty. A missing file is not an
// error; defaults apply and Save creates it.
func Load(path string) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	file := path
	if path != "" {
		v.SetConfigFile(path)
	} else {
		dir, err := DefaultDir()
		if err != nil {
			return nil, err
		}
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(dir)
		file = filepath.Join(dir, "config.yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	} else {
		file = v.ConfigFileUsed()
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	s.File = file
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate rejects unknown option values.
func (s *Settings) Validate() error {
	if _, err := s.ExportOptions(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if s.Download.Workers <= 0 {
		return fmt.Errorf("invalid config: download.workers must be positive")
	}
	if _, err := s.Cookies(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ExportOptions converts the rendering settings.
func (s *Settings) ExportOptions() (export.Options, error) {
	lang, err := export.ParseTitleLanguage(s.TitleLanguage)
	if err != nil {
		return export.Options{}, err
	}
	style, err := export.ParseLinkStyle(s.LinkStyle)
	if err != nil {
		return export.Options{}, err
	}
	phon, err := export.ParseAccents(s.PhoneticAccents)
	if err != nil {
		return export.Options{}, err
	}
	pron, err := export.ParseAccents(s.PronunciationAccents)
	if err != nil {
		return export.Options{}, err
	}
	return export.Options{
		TitleLanguage:        lang,
		LinkStyle:            style,
		PhoneticAccents:      phon,
		PronunciationAccents: pron,
		IncludeExamples:      s.Example,
	}, nil
}

// TransportConfig converts the API settings.
func (s *Settings) TransportConfig() transport.Config {
	return transport.Config{
		Timeout:           s.API.Timeout,
		MaxRetries:        s.API.MaxRetries,
		RequestsPerSecond: s.API.RequestsPerSecond,
	}
}

// Cookies decodes the stored cookie map. An empty value yields nil.
func (s *Settings) Cookies() (map[string]string, error) {
	if strings.TrimSpace(s.Cookie) == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(s.Cookie), &m); err != nil {
		return nil, fmt.Errorf("cookie is not a JSON object: %w", err)
	}
	return m, nil
}

// SetCookies stores the cookie map.
func (s *Settings) SetCookies(cookies map[string]string) error {
	b, err := json.Marshal(cookies)
	if err != nil {
		return err
	}
	s.Cookie = string(b)
	return nil
}

// Save writes the settings to s.File as YAML.
func (s *Settings) Save() error {
	if s.File == "" {
		return fmt.Errorf("config: no file to save to")
	}
	v := viper.New()
	for key, value := range map[string]any{
		"database":                s.Database,
		"media_dir":               s.MediaDir,
		"output_dir":              s.OutputDir,
		"cookie":                  s.Cookie,
		"deck":                    s.Deck,
		"note_type":               s.NoteType,
		"example":                 s.Example,
		"translate":               s.Translate,
		"title_language":          s.TitleLanguage,
		"link_style":              s.LinkStyle,
		"phonetic_accents":        s.PhoneticAccents,
		"pronunciation_accents":   s.PronunciationAccents,
		"api.base_url":            s.API.BaseURL,
		"api.timeout":             s.API.Timeout.String(),
		"api.max_retries":         s.API.MaxRetries,
		"api.requests_per_second": s.API.RequestsPerSecond,
		"download.workers":        s.Download.Workers,
		"log.level":               s.Log.Level,
		"log.format":              s.Log.Format,
		"log.file":                s.Log.File,
	} {
		v.Set(key, value)
	}
	if err := os.MkdirAll(filepath.Dir(s.File), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	v.SetConfigType("yaml")
	if err := v.WriteConfigAs(s.File); err != nil {
		return fmt.Errorf("error writing config file: %w", err)
	}
	return nil
}
