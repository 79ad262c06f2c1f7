package refdata

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

// Seed is the set of reference rows applied to an empty database.
type Seed struct {
	Departments []Department `yaml:"departments"`
	Statuses    []Status     `yaml:"statuses"`
	Urgencies   []Urgency    `yaml:"urgencies"`
}

// DefaultSeed parses the embedded seed file.
func DefaultSeed() (Seed, error) {
	return ParseSeed(seedYAML)
}

// ParseSeed decodes a YAML seed document and checks every required key is present.
func ParseSeed(data []byte) (Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse reference seed: %w", err)
	}
	if err := seed.validate(); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

func (s Seed) validate() error {
	deptKeys := make([]string, 0, len(s.Departments))
	for _, d := range s.Departments {
		deptKeys = append(deptKeys, d.Key)
	}
	if err := requireKeys("department", deptKeys, requiredDepartments); err != nil {
		return err
	}
	statusKeys := make([]string, 0, len(s.Statuses))
	for _, st := range s.Statuses {
		statusKeys = append(statusKeys, st.Key)
	}
	if err := requireKeys("status", statusKeys, requiredStatuses); err != nil {
		return err
	}
	urgencyKeys := make([]string, 0, len(s.Urgencies))
	priorities := make(map[int]string, len(s.Urgencies))
	for _, u := range s.Urgencies {
		urgencyKeys = append(urgencyKeys, u.Key)
		if other, dup := priorities[u.Priority]; dup {
			return fmt.Errorf("urgency %q and %q share priority %d", other, u.Key, u.Priority)
		}
		priorities[u.Priority] = u.Key
	}
	return requireKeys("urgency", urgencyKeys, requiredUrgencies)
}

func requireKeys(kind string, have []string, required []string) error {
	set := make(map[string]struct{}, len(have))
	for _, key := range have {
		if key == "" {
			return fmt.Errorf("%s row without key", kind)
		}
		if _, dup := set[key]; dup {
			return fmt.Errorf("duplicate %s key %q", kind, key)
		}
		set[key] = struct{}{}
	}
	for _, key := range required {
		if _, ok := set[key]; !ok {
			return fmt.Errorf("missing required %s %q", kind, key)
		}
	}
	return nil
}
