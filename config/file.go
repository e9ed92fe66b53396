package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// pipelineFile is the YAML overlay for pipeline settings. Absent keys keep
// the defaults; environment variables are applied on top afterwards.
type pipelineFile struct {
	Pipeline struct {
		PrimaryModel       *string  `yaml:"primary_model"`
		FallbackModels     []string `yaml:"fallback_models"`
		MaxCandidates      *int     `yaml:"max_candidates"`
		PerRequestTimeout  *string  `yaml:"per_request_timeout"`
		TotalTimeout       *string  `yaml:"total_timeout"`
		AllowLocalFallback *bool    `yaml:"allow_local_fallback"`
	} `yaml:"pipeline"`
}

// loadPipelineFile merges the YAML file at path into cfg
func loadPipelineFile(path string, cfg *PipelineConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read pipeline config file: %w", err)
	}
	return applyPipelineYAML(data, cfg)
}

func applyPipelineYAML(data []byte, cfg *PipelineConfig) error {
	var file pipelineFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse pipeline config file: %w", err)
	}

	p := file.Pipeline
	if p.PrimaryModel != nil {
		cfg.PrimaryModel = *p.PrimaryModel
	}
	if p.FallbackModels != nil {
		cfg.FallbackModels = p.FallbackModels
	}
	if p.MaxCandidates != nil {
		cfg.MaxCandidates = *p.MaxCandidates
	}
	if p.AllowLocalFallback != nil {
		cfg.AllowLocalFallback = *p.AllowLocalFallback
	}
	if p.PerRequestTimeout != nil {
		d, err := time.ParseDuration(*p.PerRequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid per_request_timeout: %w", err)
		}
		cfg.PerRequestTimeout = d
	}
	if p.TotalTimeout != nil {
		d, err := time.ParseDuration(*p.TotalTimeout)
		if err != nil {
			return fmt.Errorf("invalid total_timeout: %w", err)
		}
		cfg.TotalTimeout = d
	}
	return nil
}
