package report

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/planfix/planfix/internal/benchmark"
)

// BenchmarkRecord is one entry of the benchmark registry file.
type BenchmarkRecord struct {
	ID      string         `yaml:"id"`
	Name    string         `yaml:"name"`
	Version string         `yaml:"version"`
	Family  string         `yaml:"family"`
	Facts   map[string]any `yaml:"facts"`
}

// LoadBenchmarks reads a YAML benchmark registry: an array of
// {id, name, version, family, facts} records.
func LoadBenchmarks(path string) ([]*benchmark.Benchmark, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read benchmark registry %s: %w", path, err)
	}

	var records []BenchmarkRecord
	if err := yaml.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("failed to parse benchmark registry %s: %w", path, err)
	}

	out := make([]*benchmark.Benchmark, 0, len(records))
	for i, rec := range records {
		if rec.Name == "" {
			return nil, fmt.Errorf("benchmark registry %s: entry %d has no name", path, i)
		}
		out = append(out, benchmark.New(rec.ID, rec.Name, rec.Version, rec.Family, rec.Facts))
	}
	return out, nil
}
