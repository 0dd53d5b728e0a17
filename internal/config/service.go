package config

import "github.com/JonMunkholm/VehicleTaxonomy/internal/core"

// Policy converts the taxonomy section into the rules core applies.
func (c *TaxonomyConfig) Policy() core.Policy {
	return core.Policy{
		AcceptedBodyType:     c.AcceptedBodyType,
		MakeNameMaxLength:    c.MakeNameMaxLength,
		ModelNameMaxLength:   c.ModelNameMaxLength,
		VariantNameMaxLength: c.VariantNameMaxLength,
		EngineSizeCeilingCC:  c.EngineSizeCeilingCC,
	}
}

// ServiceConfig returns the settings for core.NewService.
func (c *Config) ServiceConfig() core.ServiceConfig {
	return core.ServiceConfig{
		Policy:        c.Taxonomy.Policy(),
		BatchSize:     c.Import.BatchSize,
		ImportTimeout: c.Import.Timeout,
		MaxConcurrent: c.Import.MaxConcurrent,
		MaxWait:       c.Import.MaxWaitTime,
	}
}

// Retention returns the settings for core.Service.StartHistoryPruner.
func (c *ImportConfig) Retention() core.HistoryRetention {
	return core.HistoryRetention{MaxAge: c.HistoryRetention, Interval: c.PruneInterval}
}
