package database

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/GitDonce/TwoGuys/models"
)

//go:embed seed.yaml
var defaultSeed []byte

// SeedData is the initial dataset written into an empty store.
type SeedData struct {
	Items  []models.Item `yaml:"items"`
	Cities []models.City `yaml:"cities"`
}

// DefaultSeed returns the embedded dataset.
func DefaultSeed() (SeedData, error) {
	return parseSeed(defaultSeed)
}

// LoadSeed reads a YAML seed file, falling back to the embedded dataset when
// path is empty.
func LoadSeed(path string) (SeedData, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return DefaultSeed()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return SeedData{}, fmt.Errorf("read seed file: %w", err)
	}
	return parseSeed(b)
}

func parseSeed(b []byte) (SeedData, error) {
	var data SeedData
	if err := yaml.Unmarshal(b, &data); err != nil {
		return SeedData{}, fmt.Errorf("parse seed: %w", err)
	}
	if data.Items == nil {
		data.Items = []models.Item{}
	}
	if data.Cities == nil {
		data.Cities = []models.City{}
	}
	for i := range data.Cities {
		data.Cities[i].Normalize()
	}
	return data, nil
}
