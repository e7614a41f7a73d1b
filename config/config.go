// Package config loads the per-user StintFlow settings.
//
// Settings live in a JSON file under the OS-standard application data
// directory. Absent keys fall back to environment variables and then to
// built-in defaults, so a fresh install talks to a local MongoDB without
// any configuration.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
)

// Defaults applied when neither the settings file nor the environment
// provides a value.
const (
	DefaultMongoHost     = "localhost:27017"
	DefaultDatabaseName  = "stintflow"
	DefaultRetentionDays = 30
)

// Settings holds all user-configurable values.
type Settings struct {
	Mongo   MongoSettings   `json:"mongodb"`
	Logging LoggingSettings `json:"logging"`
	Agent   AgentSettings   `json:"agent"`
}

// MongoSettings configures the document-store connection. URI takes
// precedence over the host-based fields when both are present.
type MongoSettings struct {
	URI        string `json:"uri,omitempty"`
	Host       string `json:"host,omitempty"`
	Database   string `json:"database,omitempty"`
	Username   string `json:"username,omitempty"`
	Password   string `json:"password,omitempty"`
	AuthSource string `json:"auth_source,omitempty"`
}

// LoggingSettings configures log-file retention.
type LoggingSettings struct {
	RetentionDays int `json:"retention_days,omitempty"`
}

// AgentSettings configures the tracker agent identity.
type AgentSettings struct {
	Name string `json:"name,omitempty"`
}

// Default returns the built-in settings.
func Default() Settings {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "stint-tracker"
	}
	return Settings{
		Mongo: MongoSettings{
			Host:     DefaultMongoHost,
			Database: DefaultDatabaseName,
		},
		Logging: LoggingSettings{RetentionDays: DefaultRetentionDays},
		Agent:   AgentSettings{Name: host},
	}
}

// Path returns the absolute path of the user settings file.
func Path() string {
	return filepath.Join(baseDir(), "StintFlow", "settings.json")
}

func baseDir() string {
	if runtime.GOOS == "windows" {
		if dir := os.Getenv("APPDATA"); dir != "" {
			return dir
		}
		if dir := os.Getenv("LOCALAPPDATA"); dir != "" {
			return dir
		}
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// Load reads the settings file at Path and layers environment variables
// and defaults underneath it. A missing file is not an error.
func Load() (Settings, error) {
	return LoadFile(Path())
}

// LoadFile is Load with an explicit file path, used by tests.
func LoadFile(path string) (Settings, error) {
	var fileSettings Settings

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if jsonErr := json.Unmarshal(data, &fileSettings); jsonErr != nil {
			return Settings{}, fmt.Errorf("parse settings file %s: %w", path, jsonErr)
		}
	case errors.Is(err, os.ErrNotExist):
		// fresh install; file settings stay zero
	default:
		return Settings{}, fmt.Errorf("read settings file %s: %w", path, err)
	}

	s := fileSettings
	applyEnv(&s)
	applyDefaults(&s)

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func applyEnv(s *Settings) {
	fallback := func(field *string, env string) {
		*field = strings.TrimSpace(*field)
		if *field == "" {
			*field = strings.TrimSpace(os.Getenv(env))
		}
	}

	fallback(&s.Mongo.URI, "MONGODB_URI")
	fallback(&s.Mongo.Host, "MONGODB_HOST")
	fallback(&s.Mongo.Database, "MONGODB_DATABASE")
	fallback(&s.Mongo.Username, "MONGODB_USERNAME")
	fallback(&s.Mongo.Password, "MONGODB_PASSWORD")
	fallback(&s.Mongo.AuthSource, "MONGODB_AUTH_SOURCE")
	fallback(&s.Agent.Name, "STINTFLOW_AGENT_NAME")

	if s.Logging.RetentionDays == 0 {
		if v := os.Getenv("STINTFLOW_LOG_RETENTION_DAYS"); v != "" {
			if days, err := strconv.Atoi(v); err == nil {
				s.Logging.RetentionDays = days
			}
		}
	}
}

func applyDefaults(s *Settings) {
	def := Default()
	if s.Mongo.Host == "" {
		s.Mongo.Host = def.Mongo.Host
	}
	if s.Mongo.Database == "" {
		s.Mongo.Database = def.Mongo.Database
	}
	if s.Logging.RetentionDays == 0 {
		s.Logging.RetentionDays = def.Logging.RetentionDays
	}
	if s.Agent.Name == "" {
		s.Agent.Name = def.Agent.Name
	}
}

// Validate checks the settings for values that would fail later in a
// less obvious way.
func (s Settings) Validate() error {
	if s.Mongo.URI == "" {
		if err := validateHost(s.Mongo.Host); err != nil {
			return err
		}
	}
	if s.Mongo.Database == "" {
		return fmt.Errorf("mongodb database name is required")
	}
	if (s.Mongo.Username == "") != (s.Mongo.Password == "") {
		return fmt.Errorf("mongodb username and password must be set together")
	}
	return nil
}

// validateHost accepts "hostname" or "hostname:port" with a port in
// 1..65535.
func validateHost(host string) error {
	if host == "" {
		return fmt.Errorf("mongodb host is required")
	}
	if !strings.Contains(host, ":") {
		return nil
	}

	parts := strings.Split(host, ":")
	if len(parts) != 2 {
		return fmt.Errorf("invalid mongodb host %q (expected hostname or hostname:port)", host)
	}
	port, err := strconv.Atoi(parts[1])
	if err != nil || port < 1 || port > 65535 {
		return fmt.Errorf("invalid mongodb host %q (expected hostname or hostname:port)", host)
	}
	return nil
}

// Save writes the settings back to the user settings file, creating the
// directory when needed.
func (s Settings) Save() error {
	return s.SaveFile(Path())
}

// SaveFile is Save with an explicit path, used by tests.
func (s Settings) SaveFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o600)
}
