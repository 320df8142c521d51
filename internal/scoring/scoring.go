// Package scoring holds the pure derived-value computations: funding
// percentage, job match score and participation tier.
package scoring

import (
	"errors"
	"math"
	"sort"
	"strings"

	"tally/internal/domain"
)

var ErrNoRequiredSkills = errors.New("job has no required skills")

// FundingPercentage is raised/goal*100, unclamped; 0 when goal is not positive.
func FundingPercentage(raised, goal float64) float64 {
	if goal <= 0 {
		return 0
	}
	return raised * 100 / goal
}

// RoundTo rounds v half away from zero at the given number of decimals.
func RoundTo(v float64, decimals int) float64 {
	p := math.Pow10(decimals)
	return math.Round(v*p) / p
}

// NormalizeSkill folds case and surrounding space so "Go " and "go" match.
func NormalizeSkill(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeSkills dedupes skills by their normalized form, keeping first
// occurrence order and dropping blanks.
func NormalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		n := NormalizeSkill(s)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// JobMatchScore is |candidate ∩ required| / |required| * 100 rounded to one decimal.
func JobMatchScore(candidate, required []string) (float64, error) {
	req := NormalizeSkills(required)
	if len(req) == 0 {
		return 0, ErrNoRequiredSkills
	}
	have := make(map[string]struct{}, len(candidate))
	for _, s := range NormalizeSkills(candidate) {
		have[s] = struct{}{}
	}
	matched := 0
	for _, s := range req {
		if _, ok := have[s]; ok {
			matched++
		}
	}
	return RoundTo(float64(matched)*100/float64(len(req)), 1), nil
}

// Match pairs a ranked id (job or candidate) with its score.
type Match struct {
	ID      string   `json:"id"`
	Score   float64  `json:"score"`
	Matched []string `json:"matched,omitempty"`
}

// RankMatches orders by descending score; equal scores keep input order.
func RankMatches(in []Match) []Match {
	out := append([]Match(nil), in...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// Intersect returns the normalized required skills the candidate has, in required order.
func Intersect(candidate, required []string) []string {
	have := map[string]struct{}{}
	for _, s := range NormalizeSkills(candidate) {
		have[s] = struct{}{}
	}
	var out []string
	for _, s := range NormalizeSkills(required) {
		if _, ok := have[s]; ok {
			out = append(out, s)
		}
	}
	return out
}

// TierBound is the lowest point total that reaches Tier.
type TierBound struct {
	Tier      domain.Tier
	MinPoints int
}

// DefaultTiers are the bronze/silver/gold/platinum brackets.
var DefaultTiers = []TierBound{
	{Tier: domain.TierBronze, MinPoints: 0},
	{Tier: domain.TierSilver, MinPoints: 200},
	{Tier: domain.TierGold, MinPoints: 500},
	{Tier: domain.TierPlatinum, MinPoints: 1000},
}

// TierFor is a step function over bounds sorted ascending by MinPoints.
func TierFor(points int, bounds []TierBound) domain.Tier {
	if len(bounds) == 0 {
		bounds = DefaultTiers
	}
	tier := bounds[0].Tier
	for _, b := range bounds {
		if points < b.MinPoints {
			break
		}
		tier = b.Tier
	}
	return tier
}

// ParticipationTier uses the default brackets.
func ParticipationTier(points int) domain.Tier {
	return TierFor(points, DefaultTiers)
}
