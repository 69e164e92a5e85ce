package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Database.Path != "codify.db" {
		t.Errorf("expected default database path 'codify.db', got %q", cfg.Database.Path)
	}

	if cfg.GetServerPort() != DefaultServerPort {
		t.Errorf("expected default port %d, got %d", DefaultServerPort, cfg.GetServerPort())
	}

	if cfg.Registry.PageSize != 50 {
		t.Errorf("expected default page size 50, got %d", cfg.Registry.PageSize)
	}

	if cfg.Run.Dir != "run" {
		t.Errorf("expected default run dir 'run', got %q", cfg.Run.Dir)
	}

	if cfg.Engines.Dir != "engines.d" {
		t.Errorf("expected default engines dir 'engines.d', got %q", cfg.Engines.Dir)
	}

	if cfg.Vocab.Required {
		t.Error("vocab databases should not be required by default")
	}
}

func validConfig() Config {
	return Config{
		Registry: RegistryConfig{
			BaseURL:           "http://api.example.org/v1",
			PageSize:          50,
			RequestsPerMinute: 30,
			TimeoutSeconds:    60,
		},
		Run:     RunConfig{Dir: "run"},
		Engines: EnginesConfig{Dir: "engines.d"},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid baseline",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "zero port is invalid (omit for default)",
			mutate: func(c *Config) {
				zero := 0
				c.Server.Port = &zero
			},
			wantErr: true,
		},
		{
			name: "negative port is invalid",
			mutate: func(c *Config) {
				neg := -80
				c.Server.Port = &neg
			},
			wantErr: true,
		},
		{
			name: "nil port is valid (default)",
			mutate: func(c *Config) {
				c.Server.Port = nil
			},
			wantErr: false,
		},
		{
			name: "empty registry base url is invalid",
			mutate: func(c *Config) {
				c.Registry.BaseURL = ""
			},
			wantErr: true,
		},
		{
			name: "zero page size is invalid",
			mutate: func(c *Config) {
				c.Registry.PageSize = 0
			},
			wantErr: true,
		},
		{
			name: "zero rate limit is valid (unthrottled)",
			mutate: func(c *Config) {
				c.Registry.RequestsPerMinute = 0
			},
			wantErr: false,
		},
		{
			name: "negative rate limit is invalid",
			mutate: func(c *Config) {
				c.Registry.RequestsPerMinute = -1
			},
			wantErr: true,
		},
		{
			name: "zero run limit is valid (unlimited)",
			mutate: func(c *Config) {
				c.Run.Limit = 0
			},
			wantErr: false,
		},
		{
			name: "negative run limit is invalid",
			mutate: func(c *Config) {
				c.Run.Limit = -5
			},
			wantErr: true,
		},
		{
			name: "empty run dir is invalid",
			mutate: func(c *Config) {
				c.Run.Dir = ""
			},
			wantErr: true,
		},
		{
			name: "pmc enabled requires endpoints",
			mutate: func(c *Config) {
				c.PMC.Enabled = true
			},
			wantErr: true,
		},
		{
			name: "pmc enabled with endpoints is valid",
			mutate: func(c *Config) {
				c.PMC.Enabled = true
				c.PMC.EutilsBaseURL = "http://eutils.example.org"
				c.PMC.OABaseURL = "http://oa.example.org"
				c.PMC.TimeoutSeconds = 120
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "codify.toml")

	content := `
[database]
path = "trials.db"

[run]
dir = "/var/lib/codify/run"
strict = true
keypaths = ["brief_summary"]

[engines]
enabled = ["ctakes", "tagger"]
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Database.Path != "trials.db" {
		t.Errorf("expected database path 'trials.db', got %q", cfg.Database.Path)
	}
	if !cfg.Run.Strict {
		t.Error("expected run.strict = true")
	}
	if len(cfg.Run.Keypaths) != 1 || cfg.Run.Keypaths[0] != "brief_summary" {
		t.Errorf("unexpected keypaths: %v", cfg.Run.Keypaths)
	}
	if len(cfg.Engines.Enabled) != 2 {
		t.Errorf("expected 2 enabled engines, got %v", cfg.Engines.Enabled)
	}

	// Unset values fall back to defaults
	if cfg.Registry.PageSize != 50 {
		t.Errorf("expected default page size, got %d", cfg.Registry.PageSize)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile("/nonexistent/codify.toml")
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestCreateBackupRotation(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	write := func(content string) {
		if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
			t.Fatalf("writing config: %v", err)
		}
	}

	// No file yet: backup is a no-op
	if err := createBackup(configPath); err != nil {
		t.Fatalf("createBackup on missing file: %v", err)
	}

	write("v1")
	if err := createBackup(configPath); err != nil {
		t.Fatalf("createBackup v1: %v", err)
	}
	write("v2")
	if err := createBackup(configPath); err != nil {
		t.Fatalf("createBackup v2: %v", err)
	}
	write("v3")
	if err := createBackup(configPath); err != nil {
		t.Fatalf("createBackup v3: %v", err)
	}

	back1, err := os.ReadFile(configPath + ".back1")
	if err != nil {
		t.Fatalf("reading .back1: %v", err)
	}
	if string(back1) != "v3" {
		t.Errorf(".back1 should hold newest backup, got %q", back1)
	}

	back3, err := os.ReadFile(configPath + ".back3")
	if err != nil {
		t.Fatalf("reading .back3: %v", err)
	}
	if string(back3) != "v1" {
		t.Errorf(".back3 should hold oldest backup, got %q", back3)
	}
}

func TestIsBackupFile(t *testing.T) {
	if !isBackupFile("/home/u/.codify/config.toml.back1") {
		t.Error("expected .back1 to be recognized as backup")
	}
	if isBackupFile("/home/u/.codify/config.toml") {
		t.Error("config.toml is not a backup")
	}
}
