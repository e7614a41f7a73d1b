package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFileDefaults(t *testing.T) {
	// No file, no env: everything defaulted.
	t.Setenv("MONGODB_URI", "")
	t.Setenv("MONGODB_HOST", "")
	t.Setenv("MONGODB_DATABASE", "")
	t.Setenv("MONGODB_USERNAME", "")
	t.Setenv("MONGODB_PASSWORD", "")
	t.Setenv("MONGODB_AUTH_SOURCE", "")
	t.Setenv("STINTFLOW_AGENT_NAME", "")
	t.Setenv("STINTFLOW_LOG_RETENTION_DAYS", "")

	s, err := LoadFile(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if s.Mongo.Host != DefaultMongoHost {
		t.Errorf("host = %q, want %q", s.Mongo.Host, DefaultMongoHost)
	}
	if s.Mongo.Database != DefaultDatabaseName {
		t.Errorf("database = %q, want %q", s.Mongo.Database, DefaultDatabaseName)
	}
	if s.Logging.RetentionDays != DefaultRetentionDays {
		t.Errorf("retention = %d, want %d", s.Logging.RetentionDays, DefaultRetentionDays)
	}
	if s.Agent.Name == "" {
		t.Error("agent name should default to the host name")
	}
}

func TestLoadFileParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "settings.json")
	content := `{
		"mongodb": {"host": "db.example:27018", "database": "racing", "username": "u", "password": "p", "auth_source": "admin"},
		"logging": {"retention_days": 7},
		"agent": {"name": "pit-wall-1"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	s, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if s.Mongo.Host != "db.example:27018" {
		t.Errorf("host = %q", s.Mongo.Host)
	}
	if s.Mongo.Database != "racing" {
		t.Errorf("database = %q", s.Mongo.Database)
	}
	if s.Logging.RetentionDays != 7 {
		t.Errorf("retention = %d", s.Logging.RetentionDays)
	}
	if s.Agent.Name != "pit-wall-1" {
		t.Errorf("agent name = %q", s.Agent.Name)
	}
}

func TestLoadFileEnvFallback(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://env.example:27017")
	t.Setenv("STINTFLOW_AGENT_NAME", "env-agent")
	t.Setenv("STINTFLOW_LOG_RETENTION_DAYS", "14")

	s, err := LoadFile(filepath.Join(t.TempDir(), "settings.json"))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if s.Mongo.URI != "mongodb://env.example:27017" {
		t.Errorf("uri = %q", s.Mongo.URI)
	}
	if s.Agent.Name != "env-agent" {
		t.Errorf("agent name = %q", s.Agent.Name)
	}
	if s.Logging.RetentionDays != 14 {
		t.Errorf("retention = %d", s.Logging.RetentionDays)
	}
}

func TestLoadFileRejectsMalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFile(path); err == nil {
		t.Error("expected error for malformed settings file")
	}
}

func TestValidateHost(t *testing.T) {
	tests := []struct {
		host    string
		wantErr bool
	}{
		{"localhost", false},
		{"localhost:27017", false},
		{"db.example:1", false},
		{"db.example:65535", false},
		{"db.example:0", true},
		{"db.example:65536", true},
		{"db.example:abc", true},
		{"a:b:c", true},
		{"", true},
	}

	for _, tt := range tests {
		err := validateHost(tt.host)
		if (err != nil) != tt.wantErr {
			t.Errorf("validateHost(%q) error = %v, wantErr %v", tt.host, err, tt.wantErr)
		}
	}
}

func TestValidateCredentials(t *testing.T) {
	s := Default()
	s.Mongo.Username = "user"
	if err := s.Validate(); err == nil {
		t.Error("username without password should fail validation")
	}
	s.Mongo.Password = "pass"
	if err := s.Validate(); err != nil {
		t.Errorf("username+password should validate: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")

	s := Default()
	s.Mongo.Host = "saved.example:27017"
	s.Agent.Name = "saved-agent"
	if err := s.SaveFile(path); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}

	loaded, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if loaded.Mongo.Host != "saved.example:27017" || loaded.Agent.Name != "saved-agent" {
		t.Errorf("round trip lost values: %+v", loaded.Mongo)
	}
}
