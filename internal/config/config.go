package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/formulize/internal/formula"
)

// Load reads a YAML configuration. Unknown keys are rejected so typos such
// as "xAxisVar" for "x_axis_var" surface immediately.
func Load(path string) (formula.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return formula.Config{}, err
	}
	return Parse(data)
}

func Parse(data []byte) (formula.Config, error) {
	var cfg formula.Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return formula.Config{}, fmt.Errorf("%w: %v", formula.ErrConfiguration, err)
	}
	return cfg, nil
}

func Save(path string, cfg formula.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Decode builds a configuration from an in-memory map, as handed over by an
// embedding application. Keys follow the YAML names.
func Decode(raw map[string]any) (formula.Config, error) {
	var cfg formula.Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return formula.Config{}, err
	}
	if err := dec.Decode(raw); err != nil {
		return formula.Config{}, fmt.Errorf("%w: %v", formula.ErrConfiguration, err)
	}
	return cfg, nil
}
