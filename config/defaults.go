package config

import "github.com/spf13/viper"

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "codify.db")

	// Vocabulary database defaults, relative to the working directory
	v.SetDefault("vocab.umls_path", "databases/umls.db")
	v.SetDefault("vocab.snomed_path", "databases/snomed.db")
	v.SetDefault("vocab.rxnorm_path", "databases/rxnorm.db")
	v.SetDefault("vocab.required", false)

	// Registry defaults
	v.SetDefault("registry.base_url", "http://api.lillycoi.com/v1")
	v.SetDefault("registry.page_size", 50)
	v.SetDefault("registry.requests_per_minute", 30)
	v.SetDefault("registry.timeout_seconds", 60)

	// Run defaults
	v.SetDefault("run.dir", "run")
	v.SetDefault("run.keypaths", []string{})
	v.SetDefault("run.limit", 0)
	v.SetDefault("run.strict", false)
	v.SetDefault("run.discard_cached", false)

	// Engine discovery defaults
	v.SetDefault("engines.dir", "engines.d")
	v.SetDefault("engines.enabled", []string{})

	// PubMed Central defaults
	v.SetDefault("pmc.enabled", false)
	v.SetDefault("pmc.eutils_base_url", "http://eutils.ncbi.nlm.nih.gov/entrez/eutils")
	v.SetDefault("pmc.oa_base_url", "http://www.pubmedcentral.nih.gov/utils/oa/oa.fcgi")
	v.SetDefault("pmc.timeout_seconds", 300)

	// Server configuration defaults
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.allowed_origins", []string{
		"http://localhost",
		"https://localhost",
		"http://127.0.0.1",
		"https://127.0.0.1",
	})
}

// BindSensitiveEnvVars explicitly binds deployment-specific configuration to
// environment variables so containers can override paths without a file.
func BindSensitiveEnvVars(v *viper.Viper) {
	v.BindEnv("database.path", "CODIFY_DATABASE_PATH")
	v.BindEnv("registry.base_url", "CODIFY_REGISTRY_BASE_URL")
	v.BindEnv("vocab.umls_path", "CODIFY_VOCAB_UMLS_PATH")
	v.BindEnv("vocab.snomed_path", "CODIFY_VOCAB_SNOMED_PATH")
	v.BindEnv("vocab.rxnorm_path", "CODIFY_VOCAB_RXNORM_PATH")
	v.BindEnv("run.dir", "CODIFY_RUN_DIR")
}
