package config

import "github.com/trialkit/codify/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Server port: 0 is invalid (omit for default), negative is invalid
	if c.Server.Port != nil && *c.Server.Port == 0 {
		return errors.Newf("server.port cannot be 0 (omit for default port %d)", DefaultServerPort)
	}
	if c.Server.Port != nil && *c.Server.Port < 0 {
		return errors.Newf("server.port must be positive, got %d", *c.Server.Port)
	}

	if c.Registry.BaseURL == "" {
		return errors.New("registry.base_url cannot be empty")
	}
	if c.Registry.PageSize <= 0 {
		return errors.Newf("registry.page_size must be > 0, got %d", c.Registry.PageSize)
	}
	// 0 = unthrottled, negative = invalid
	if c.Registry.RequestsPerMinute < 0 {
		return errors.Newf("registry.requests_per_minute must be >= 0, got %d", c.Registry.RequestsPerMinute)
	}
	if c.Registry.TimeoutSeconds <= 0 {
		return errors.Newf("registry.timeout_seconds must be > 0, got %d", c.Registry.TimeoutSeconds)
	}

	// Run limit: 0 = unlimited, negative = invalid
	if c.Run.Limit < 0 {
		return errors.Newf("run.limit must be >= 0, got %d", c.Run.Limit)
	}
	if c.Run.Dir == "" {
		return errors.New("run.dir cannot be empty")
	}

	if c.Engines.Dir == "" {
		return errors.New("engines.dir cannot be empty")
	}

	if c.PMC.Enabled {
		if c.PMC.EutilsBaseURL == "" {
			return errors.New("pmc.eutils_base_url cannot be empty when enabled")
		}
		if c.PMC.OABaseURL == "" {
			return errors.New("pmc.oa_base_url cannot be empty when enabled")
		}
		if c.PMC.TimeoutSeconds <= 0 {
			return errors.Newf("pmc.timeout_seconds must be > 0, got %d", c.PMC.TimeoutSeconds)
		}
	}

	return nil
}
