package priority

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the numeric thresholds of the priority rule table.
type Config struct {
	FraudConfidence  float64 `toml:"fraud_confidence"`
	InvoiceTotal     float64 `toml:"invoice_total"`
	MediumConfidence float64 `toml:"medium_confidence"`
}

// ConfigEnv maps environment variable names for priority thresholds.
type ConfigEnv struct {
	FraudConfidence  string
	InvoiceTotal     string
	MediumConfidence string
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	var c Config
	c.loadDefaults()
	return c
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *ConfigEnv) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge applies non-zero values from the overlay configuration.
func (c *Config) Merge(overlay *Config) {
	if overlay.FraudConfidence != 0 {
		c.FraudConfidence = overlay.FraudConfidence
	}
	if overlay.InvoiceTotal != 0 {
		c.InvoiceTotal = overlay.InvoiceTotal
	}
	if overlay.MediumConfidence != 0 {
		c.MediumConfidence = overlay.MediumConfidence
	}
}

func (c *Config) loadDefaults() {
	if c.FraudConfidence == 0 {
		c.FraudConfidence = 0.7
	}
	if c.InvoiceTotal == 0 {
		c.InvoiceTotal = 10000
	}
	if c.MediumConfidence == 0 {
		c.MediumConfidence = 0.8
	}
}

func (c *Config) loadEnv(env *ConfigEnv) {
	setFloat(env.FraudConfidence, &c.FraudConfidence)
	setFloat(env.InvoiceTotal, &c.InvoiceTotal)
	setFloat(env.MediumConfidence, &c.MediumConfidence)
}

func (c *Config) validate() error {
	if c.FraudConfidence <= 0 || c.FraudConfidence > 1 {
		return fmt.Errorf("fraud_confidence must be in (0, 1]")
	}
	if c.MediumConfidence <= 0 || c.MediumConfidence > 1 {
		return fmt.Errorf("medium_confidence must be in (0, 1]")
	}
	if c.InvoiceTotal < 0 {
		return fmt.Errorf("invoice_total cannot be negative")
	}
	return nil
}

func setFloat(name string, dst *float64) {
	if name == "" {
		return
	}
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
