package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// WorkType is a quick order description offered to masters.
type WorkType struct {
	Key   string `yaml:"key"`
	Title string `yaml:"title"`
}

// SupportConfig holds workshop contact details shown to clients.
type SupportConfig struct {
	Phone   string `yaml:"phone"`
	Email   string `yaml:"email"`
	Address string `yaml:"address"`
}

// WorkshopConfig is the root of workshop.yaml.
type WorkshopConfig struct {
	Name      string        `yaml:"name"`
	WorkTypes []WorkType    `yaml:"work_types"`
	Support   SupportConfig `yaml:"support"`
}

// DefaultWorkTypes is used when workshop.yaml lists none.
var DefaultWorkTypes = []WorkType{
	{Key: "diagnostic", Title: "Диагностика"},
	{Key: "repair", Title: "Ремонт"},
	{Key: "diag_repair", Title: "Диагностика и ремонт"},
	{Key: "maintenance", Title: "Техническое обслуживание"},
}

// LoadWorkshopConfig loads and validates workshop configuration from YAML file.
func LoadWorkshopConfig(path string) (*WorkshopConfig, error) {
	if path == "" {
		path = "configs/workshop.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workshop config: %w", err)
	}

	var cfg WorkshopConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse workshop config: %w", err)
	}
	if len(cfg.WorkTypes) == 0 {
		cfg.WorkTypes = DefaultWorkTypes
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate workshop config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the work-type catalogue for errors.
func (c *WorkshopConfig) Validate() error {
	keys := make(map[string]bool)
	for i, wt := range c.WorkTypes {
		if wt.Key == "" {
			return fmt.Errorf("work_types[%d]: key is required", i)
		}
		if strings.ContainsAny(wt.Key, ": ") {
			return fmt.Errorf("work_types[%d]: key %q must not contain ':' or spaces", i, wt.Key)
		}
		if keys[wt.Key] {
			return fmt.Errorf("work_types[%d]: duplicate key %q", i, wt.Key)
		}
		keys[wt.Key] = true
		if wt.Title == "" {
			return fmt.Errorf("work_types[%d]: title is required", i)
		}
	}
	return nil
}

// WorkTitle resolves a work-type key into its title.
func (c *WorkshopConfig) WorkTitle(key string) (string, bool) {
	for _, wt := range c.WorkTypes {
		if wt.Key == key {
			return wt.Title, true
		}
	}
	return "", false
}
