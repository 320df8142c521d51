package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if pts, ok := cfg.Reward("policy_feedback"); !ok || pts != 25 {
		t.Fatalf("policy_feedback reward = %d, %v", pts, ok)
	}
	tiers := cfg.SortedTiers()
	if len(tiers) != 4 || tiers[3].Name != "platinum" || tiers[3].MinPoints != 1000 {
		t.Fatalf("unexpected tiers %+v", tiers)
	}
}

func TestFromYAMLExtendsRewards(t *testing.T) {
	cfg, err := FromYAML([]byte(`participation:
  rewards:
    policy_vote: 10
    course_review: 15
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if _, ok := cfg.Reward("policy_creation"); ok {
		t.Fatalf("rewards should be replaced, not merged")
	}
	if pts, _ := cfg.Reward("course_review"); pts != 15 {
		t.Fatalf("course_review = %d", pts)
	}
	if len(cfg.Participation.Tiers) != 4 {
		t.Fatalf("tiers should fall back to defaults")
	}
}

func TestValidateRejectsBadTiers(t *testing.T) {
	cases := map[string]string{
		"no zero tier": `participation:
  tiers:
    - name: silver
      min_points: 200
`,
		"duplicate threshold": `participation:
  tiers:
    - name: bronze
      min_points: 0
    - name: silver
      min_points: 0
`,
		"negative reward": `participation:
  rewards:
    policy_vote: -1
`,
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := FromYAML([]byte(doc)); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file should be nil,nil; got %v, %v", cfg, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tally.yml"), []byte(GenerateDefault()), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Ledger.MaxRetries != 8 {
		t.Fatalf("max retries = %d", cfg.Ledger.MaxRetries)
	}
}
