package classifier

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed policy.yaml
var defaultPolicyYAML []byte

// Policy is the tunable vocabulary behind the classification rules.
type Policy struct {
	NaturalMarkers   []string `yaml:"natural_markers"`
	NaturalPatterns  []string `yaml:"natural_patterns"`
	StreetSuffixes   []string `yaml:"street_suffixes"`
	LocalityWords    []string `yaml:"locality_words"`
	LocalityMinWords int      `yaml:"locality_min_words"`
	MaxFragmentWords int      `yaml:"max_fragment_words"`
}

// DefaultPolicy returns the embedded policy.
func DefaultPolicy() Policy {
	p, err := ParsePolicy(defaultPolicyYAML)
	if err != nil {
		panic("classifier: embedded policy is invalid: " + err.Error())
	}
	return p
}

// ParsePolicy decodes a YAML policy document.
func ParsePolicy(data []byte) (Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Policy{}, fmt.Errorf("decode classifier policy: %w", err)
	}
	if err := p.validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// LoadPolicy reads a policy from path. An empty path yields the default policy.
func LoadPolicy(path string) (Policy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicy(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("read classifier policy: %w", err)
	}
	return ParsePolicy(data)
}

func (p Policy) validate() error {
	if len(p.StreetSuffixes) == 0 {
		return fmt.Errorf("classifier policy: street_suffixes must not be empty")
	}
	if p.MaxFragmentWords < 0 || p.LocalityMinWords < 0 {
		return fmt.Errorf("classifier policy: word thresholds must not be negative")
	}
	for _, expr := range p.NaturalPatterns {
		if _, err := regexp.Compile(expr); err != nil {
			return fmt.Errorf("classifier policy: pattern %q: %w", expr, err)
		}
	}
	return nil
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w != "" {
			set[w] = struct{}{}
		}
	}
	return set
}
