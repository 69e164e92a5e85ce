package config

import "fmt"

// Config represents the core codify configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Vocab    VocabConfig    `mapstructure:"vocab"`
	Registry RegistryConfig `mapstructure:"registry"`
	Run      RunConfig      `mapstructure:"run"`
	Engines  EnginesConfig  `mapstructure:"engines"`
	PMC      PMCConfig      `mapstructure:"pmc"`
	Server   ServerConfig   `mapstructure:"server"`
}

// DatabaseConfig configures the SQLite store for trials and runs
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// VocabConfig points at the local terminology databases used to resolve
// code meanings. All three are optional; lookups degrade to raw codes.
type VocabConfig struct {
	UMLSPath   string `mapstructure:"umls_path"`
	SNOMEDPath string `mapstructure:"snomed_path"`
	RxNormPath string `mapstructure:"rxnorm_path"`
	Required   bool   `mapstructure:"required"` // fail run start when databases are missing
}

// RegistryConfig configures the clinical trial registry client
type RegistryConfig struct {
	BaseURL           string `mapstructure:"base_url"`
	PageSize          int    `mapstructure:"page_size"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
	TimeoutSeconds    int    `mapstructure:"timeout_seconds"`
}

// RunConfig configures codification run behavior
type RunConfig struct {
	Dir           string   `mapstructure:"dir"`            // where run artifacts and engine drops live
	Keypaths      []string `mapstructure:"keypaths"`       // trial properties codified besides eligibility criteria
	Limit         int      `mapstructure:"limit"`          // max trials per run, 0 = unlimited
	Strict        bool     `mapstructure:"strict"`         // abort the run on the first engine failure
	DiscardCached bool     `mapstructure:"discard_cached"` // re-fetch trials already in the store
}

// EnginesConfig configures NLP engine discovery
type EnginesConfig struct {
	Dir     string   `mapstructure:"dir"`     // manifest directory (engines.d)
	Enabled []string `mapstructure:"enabled"` // engine names to run, empty = all discovered
}

// PMCConfig configures PubMed Central full-text retrieval
type PMCConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	EutilsBaseURL  string `mapstructure:"eutils_base_url"`
	OABaseURL      string `mapstructure:"oa_base_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// ServerConfig configures the codify HTTP server
type ServerConfig struct {
	Port           *int     `mapstructure:"port"` // nil = default, 0 is invalid (omit for default)
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// DefaultServerPort is the development port (above privileged range).
const DefaultServerPort = 7807

// File system constants
const (
	DefaultDirPermissions  = 0755 // Standard directory permissions (rwxr-xr-x)
	DefaultFilePermissions = 0644 // Standard file permissions (rw-r--r--)
)

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "codify.db" // Fallback default
	}
	return c.Database.Path
}

// GetServerPort returns the configured server port or the default
func (c *Config) GetServerPort() int {
	if c.Server.Port == nil || *c.Server.Port == 0 {
		return DefaultServerPort
	}
	return *c.Server.Port
}

// GetServerAllowedOrigins returns the allowed CORS origins
func (c *Config) GetServerAllowedOrigins() []string {
	if len(c.Server.AllowedOrigins) == 0 {
		return []string{
			"http://localhost",
			"https://localhost",
			"http://127.0.0.1",
			"https://127.0.0.1",
		}
	}
	return c.Server.AllowedOrigins
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Run: {Dir: %s, Strict: %t}, Engines: %v}",
		c.Database.Path, c.Run.Dir, c.Run.Strict, c.Engines.Enabled)
}
