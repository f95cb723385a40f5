package scenario

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"slicelab/api"
	"slicelab/pkg/topology"
)

// File is the on-disk form of a scenario.
type File struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description,omitempty"`
	Topology    api.TopoConfig `yaml:"topology"`
	Steps       []Step         `yaml:"steps"`
}

// LoadScript reads a scenario file and builds its topology. Steps are only
// checked against the topology when they run.
func LoadScript(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read scenario")
	}
	return ParseScript(data)
}

func ParseScript(data []byte) (*Scenario, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(err, "parse scenario")
	}
	if f.Name == "" {
		return nil, errors.New("scenario has no name")
	}
	for i, s := range f.Steps {
		if !s.Kind.valid() {
			return nil, errors.Errorf("step #%d: unknown kind %q", i+1, s.Kind)
		}
	}
	topo, err := topology.FromConfig(&f.Topology)
	if err != nil {
		return nil, err
	}
	return &Scenario{
		Topology: topo,
		Script:   Script{Name: f.Name, Description: f.Description, Steps: f.Steps},
	}, nil
}

func (k Kind) valid() bool {
	switch k {
	case KindBlacklist, KindWhitelist, KindConntrack, KindReset, KindReidentify, KindProbe:
		return true
	}
	return false
}
