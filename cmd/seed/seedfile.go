package main

import (
	"fmt"
	"os"
	"time"

	"github.com/bissquit/uptime-garden/internal/catalog"
	"github.com/bissquit/uptime-garden/internal/domain"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const initialMessage = "Initial setup"

// SeedFile describes the services registered by a seeding run.
type SeedFile struct {
	// InitialEntry records an operational "Initial setup" entry for every
	// service. Defaults to true.
	InitialEntry *bool         `yaml:"initial_entry"`
	Services     []SeedService `yaml:"services" validate:"required,min=1,dive"`
}

// SeedService is one registry entry in a seed file.
type SeedService struct {
	Name        string         `yaml:"name" validate:"required,max=255"`
	Description string         `yaml:"description" validate:"max=1000"`
	Endpoint    string         `yaml:"endpoint" validate:"required,url"`
	Monitoring  SeedMonitoring `yaml:"monitoring"`
}

// SeedMonitoring holds optional probe settings; zero values take the
// configured defaults.
type SeedMonitoring struct {
	Timeout        time.Duration `yaml:"timeout" validate:"gte=0"`
	Interval       time.Duration `yaml:"interval" validate:"gte=0"`
	ExpectedStatus int           `yaml:"expected_status" validate:"omitempty,min=100,max=599"`
	RetryAttempts  int           `yaml:"retry_attempts" validate:"gte=0,lte=10"`
}

func loadSeedFile(path string) (*SeedFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return parseSeedFile(data)
}

func parseSeedFile(data []byte) (*SeedFile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}

	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid seed file: %w", err)
	}

	seen := make(map[string]bool, len(f.Services))
	for _, s := range f.Services {
		if seen[s.Name] {
			return nil, fmt.Errorf("invalid seed file: duplicate service name %q", s.Name)
		}
		seen[s.Name] = true
	}

	return &f, nil
}

// Inputs converts the file into registration inputs.
func (f *SeedFile) Inputs() []catalog.RegisterServiceInput {
	message := initialMessage
	if f.InitialEntry != nil && !*f.InitialEntry {
		message = ""
	}

	inputs := make([]catalog.RegisterServiceInput, 0, len(f.Services))
	for _, s := range f.Services {
		inputs = append(inputs, catalog.RegisterServiceInput{
			Name:        s.Name,
			Endpoint:    s.Endpoint,
			Description: s.Description,
			MonitoringConfig: domain.MonitoringConfig{
				Timeout:        s.Monitoring.Timeout,
				Interval:       s.Monitoring.Interval,
				ExpectedStatus: s.Monitoring.ExpectedStatus,
				RetryAttempts:  s.Monitoring.RetryAttempts,
			},
			InitialMessage: message,
		})
	}
	return inputs
}
