package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config models fdpg.yml.
type Config struct {
	Portal struct {
		Abbreviation string `yaml:"abbreviation"`
	} `yaml:"portal"`
	Deadlines struct {
		DueDaysFdpgCheck           int `yaml:"due_days_fdpg_check"`
		DueDaysLocationCheck       int `yaml:"due_days_location_check"`
		DueDaysLocationContracting int `yaml:"due_days_location_contracting"`
		DueDaysExpectDataDelivery  int `yaml:"due_days_expect_data_delivery"`
		DueDaysDataCorrupt         int `yaml:"due_days_data_corrupt"`
		DueDaysFinishedProject     int `yaml:"due_days_finished_project"`
	} `yaml:"deadlines"`
	Votes struct {
		DataAmountThreshold int `yaml:"data_amount_threshold"`
	} `yaml:"votes"`
	Documents struct {
		DeferSeconds int `yaml:"defer_seconds"`
	} `yaml:"documents"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Portal.Abbreviation == "" {
		return fmt.Errorf("config.portal.abbreviation is required")
	}
	offsets := map[string]int{
		"due_days_fdpg_check":           c.Deadlines.DueDaysFdpgCheck,
		"due_days_location_check":       c.Deadlines.DueDaysLocationCheck,
		"due_days_location_contracting": c.Deadlines.DueDaysLocationContracting,
		"due_days_expect_data_delivery": c.Deadlines.DueDaysExpectDataDelivery,
		"due_days_data_corrupt":         c.Deadlines.DueDaysDataCorrupt,
		"due_days_finished_project":     c.Deadlines.DueDaysFinishedProject,
	}
	for name, days := range offsets {
		if days < 0 {
			return fmt.Errorf("config.deadlines.%s must not be negative", name)
		}
	}
	if c.Votes.DataAmountThreshold < 0 {
		return fmt.Errorf("config.votes.data_amount_threshold must not be negative")
	}
	if c.Documents.DeferSeconds < 0 {
		return fmt.Errorf("config.documents.defer_seconds must not be negative")
	}
	return nil
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "fdpg.yml")
}

// Load reads and validates config from the workspace.
func Load(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", Path(workspace))
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.Unmarshal([]byte(defaultTemplate), &cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

const defaultTemplate = `portal:
  abbreviation: FDPG

deadlines:
  due_days_fdpg_check: 14
  due_days_location_check: 56
  due_days_location_contracting: 28
  due_days_expect_data_delivery: 28
  due_days_data_corrupt: 14
  due_days_finished_project: 365

votes:
  data_amount_threshold: 0

documents:
  defer_seconds: 3
`
