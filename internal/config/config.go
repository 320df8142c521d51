package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// Config models tally.yml.
type Config struct {
	Participation struct {
		Rewards map[string]int `yaml:"rewards" json:"rewards"`
		Tiers   []TierBound    `yaml:"tiers" json:"tiers"`
	} `yaml:"participation" json:"participation"`
	Ledger struct {
		MaxRetries int `yaml:"max_retries" json:"max_retries"`
	} `yaml:"ledger" json:"ledger"`
	Roles struct {
		Moderators []string `yaml:"moderators" json:"moderators"`
	} `yaml:"roles" json:"roles"`
	Log struct {
		Mode string `yaml:"mode" json:"mode"`
	} `yaml:"log" json:"log"`
}

// TierBound names the tier reached at MinPoints.
type TierBound struct {
	Name      string `yaml:"name" json:"name"`
	MinPoints int    `yaml:"min_points" json:"min_points"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tl config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if len(c.Participation.Rewards) == 0 {
		return fmt.Errorf("config.participation.rewards is required")
	}
	for kind, pts := range c.Participation.Rewards {
		if kind == "" {
			return fmt.Errorf("config.participation.rewards has empty activity kind")
		}
		if pts <= 0 {
			return fmt.Errorf("reward for %s must be positive", kind)
		}
	}
	if len(c.Participation.Tiers) == 0 {
		return fmt.Errorf("config.participation.tiers is required")
	}
	tiers := c.SortedTiers()
	if tiers[0].MinPoints != 0 {
		return fmt.Errorf("lowest tier %s must start at 0 points", tiers[0].Name)
	}
	seen := map[string]bool{}
	for i, t := range tiers {
		if t.Name == "" {
			return fmt.Errorf("tier at %d points has empty name", t.MinPoints)
		}
		if seen[t.Name] {
			return fmt.Errorf("tier %s declared twice", t.Name)
		}
		seen[t.Name] = true
		if i > 0 && t.MinPoints == tiers[i-1].MinPoints {
			return fmt.Errorf("tiers %s and %s share threshold %d", tiers[i-1].Name, t.Name, t.MinPoints)
		}
	}
	if c.Ledger.MaxRetries < 0 {
		return fmt.Errorf("config.ledger.max_retries must not be negative")
	}
	for _, m := range c.Roles.Moderators {
		if m == "" {
			return fmt.Errorf("config.roles.moderators contains empty actor id")
		}
	}
	return nil
}

// SortedTiers returns tiers ordered by threshold.
func (c *Config) SortedTiers() []TierBound {
	out := append([]TierBound(nil), c.Participation.Tiers...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].MinPoints < out[j].MinPoints })
	return out
}

// Reward returns the points for an activity kind.
func (c *Config) Reward(kind string) (int, bool) {
	pts, ok := c.Participation.Rewards[kind]
	return pts, ok
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "tally.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	// Reward and tier tables replace the defaults wholesale when present.
	cfg.Participation.Rewards = nil
	cfg.Participation.Tiers = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if cfg.Participation.Rewards == nil {
		cfg.Participation.Rewards = Default().Participation.Rewards
	}
	if cfg.Participation.Tiers == nil {
		cfg.Participation.Tiers = Default().Participation.Tiers
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `participation:
  rewards:
    policy_creation: 50
    policy_vote: 10
    policy_feedback: 25
    forum_creation: 30
  tiers:
    - name: bronze
      min_points: 0
    - name: silver
      min_points: 200
    - name: gold
      min_points: 500
    - name: platinum
      min_points: 1000

ledger:
  max_retries: 8

roles:
  moderators: []

log:
  mode: dev
`
