// Package config holds the application configuration and its loading
// from files, environment variables and command-line flags.
package config

import (
	"fmt"

	"github.com/pagemill/pagemill/internal/orient"
	"github.com/pagemill/pagemill/internal/pipeline"
)

// Config represents the complete configuration for pagemill. It covers
// the convert and serve commands and supports loading from configuration
// files, environment variables, and command-line flags.
type Config struct {
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose"`

	Pipeline    PipelineConfig    `mapstructure:"pipeline" yaml:"pipeline"`
	Orientation OrientationConfig `mapstructure:"orientation" yaml:"orientation"`
	Server      ServerConfig      `mapstructure:"server" yaml:"server"`
	Storage     StorageConfig     `mapstructure:"storage" yaml:"storage"`
	Layout      LayoutConfig      `mapstructure:"layout" yaml:"layout"`
}

// PipelineConfig contains document conversion settings.
type PipelineConfig struct {
	DPI      float64 `mapstructure:"dpi" yaml:"dpi"`
	MaxPages int     `mapstructure:"max_pages" yaml:"max_pages"`
	Workers  int     `mapstructure:"workers" yaml:"workers"`
}

// OrientationConfig contains orientation detection settings.
type OrientationConfig struct {
	Enabled             bool     `mapstructure:"enabled" yaml:"enabled"`
	ConfidenceThreshold float64  `mapstructure:"confidence_threshold" yaml:"confidence_threshold"`
	Languages           []string `mapstructure:"languages" yaml:"languages"`
	HeuristicOnly       bool     `mapstructure:"heuristic_only" yaml:"heuristic_only"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host               string `mapstructure:"host" yaml:"host"`
	Port               int    `mapstructure:"port" yaml:"port"`
	CORSOrigin         string `mapstructure:"cors_origin" yaml:"cors_origin"`
	MaxUploadMB        int    `mapstructure:"max_upload_mb" yaml:"max_upload_mb"`
	TimeoutSec         int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
	ShutdownTimeoutSec int    `mapstructure:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec"`
}

// StorageConfig contains artifact store settings.
type StorageConfig struct {
	Dir string `mapstructure:"dir" yaml:"dir"`
}

// LayoutConfig contains remote layout-parsing proxy settings.
type LayoutConfig struct {
	APIURL     string `mapstructure:"api_url" yaml:"api_url"`
	TimeoutSec int    `mapstructure:"timeout_sec" yaml:"timeout_sec"`
}

// Validate checks the configuration for values that must never reach the
// pipeline or the server.
func (c *Config) Validate() error {
	if c.Pipeline.DPI <= 0 {
		return fmt.Errorf("pipeline.dpi must be positive, got %v", c.Pipeline.DPI)
	}
	if c.Pipeline.MaxPages <= 0 {
		return fmt.Errorf("pipeline.max_pages must be positive, got %d", c.Pipeline.MaxPages)
	}
	if c.Orientation.ConfidenceThreshold < 0 || c.Orientation.ConfidenceThreshold > 1 {
		return fmt.Errorf("orientation.confidence_threshold must be within [0,1], got %v",
			c.Orientation.ConfidenceThreshold)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("server.max_upload_mb must be positive, got %d", c.Server.MaxUploadMB)
	}
	if c.Storage.Dir == "" {
		return fmt.Errorf("storage.dir must not be empty")
	}
	return nil
}

// PipelineSettings maps the file/env configuration onto the pipeline's
// own config type.
func (c *Config) PipelineSettings() pipeline.Config {
	pc := pipeline.DefaultConfig()
	pc.DPI = c.Pipeline.DPI
	pc.MaxPages = c.Pipeline.MaxPages
	if c.Pipeline.Workers > 0 {
		pc.Workers = c.Pipeline.Workers
	}
	pc.Orientation = c.OrientationSettings()
	return pc
}

// OrientationSettings maps the orientation section onto orient.Config.
func (c *Config) OrientationSettings() orient.Config {
	oc := orient.DefaultConfig()
	oc.Enabled = c.Orientation.Enabled
	oc.ConfidenceThreshold = c.Orientation.ConfidenceThreshold
	oc.HeuristicOnly = c.Orientation.HeuristicOnly
	if len(c.Orientation.Languages) > 0 {
		oc.Languages = c.Orientation.Languages
	}
	return oc
}
