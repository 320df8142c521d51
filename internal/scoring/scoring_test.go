package scoring

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tally/internal/domain"
)

func TestFundingPercentage(t *testing.T) {
	assert.Equal(t, 110.0, FundingPercentage(1100, 1000))
	assert.Equal(t, 0.0, FundingPercentage(500, 0))
	assert.Equal(t, 250.0, FundingPercentage(2500, 1000), "flexible goals are not clamped")
}

func TestJobMatchScore(t *testing.T) {
	score, err := JobMatchScore([]string{"Python", "Docker"}, []string{"Python", "SQL", "Docker"})
	require.NoError(t, err)
	assert.Equal(t, 66.7, score)

	score, err = JobMatchScore([]string{" python", "SQL", "docker"}, []string{"Python", "SQL", "Docker"})
	require.NoError(t, err)
	assert.Equal(t, 100.0, score)

	score, err = JobMatchScore(nil, []string{"Go"})
	require.NoError(t, err)
	assert.Equal(t, 0.0, score)

	_, err = JobMatchScore([]string{"Go"}, nil)
	assert.True(t, errors.Is(err, ErrNoRequiredSkills))
	_, err = JobMatchScore([]string{"Go"}, []string{"  "})
	assert.True(t, errors.Is(err, ErrNoRequiredSkills))
}

func TestRankMatchesIsStable(t *testing.T) {
	ranked := RankMatches([]Match{
		{ID: "a", Score: 50},
		{ID: "b", Score: 80},
		{ID: "c", Score: 50},
		{ID: "d", Score: 80},
	})
	ids := make([]string, len(ranked))
	for i, m := range ranked {
		ids[i] = m.ID
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, ids)
}

func TestIntersect(t *testing.T) {
	assert.Equal(t, []string{"python", "docker"}, Intersect([]string{"Docker", "PYTHON"}, []string{"Python", "SQL", "Docker"}))
}

func TestParticipationTier(t *testing.T) {
	cases := []struct {
		points int
		want   domain.Tier
	}{
		{0, domain.TierBronze},
		{190, domain.TierBronze},
		{199, domain.TierBronze},
		{200, domain.TierSilver},
		{215, domain.TierSilver},
		{499, domain.TierSilver},
		{500, domain.TierGold},
		{999, domain.TierGold},
		{1000, domain.TierPlatinum},
		{50000, domain.TierPlatinum},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, ParticipationTier(tc.points), "points=%d", tc.points)
	}
}

func TestTierForCustomBounds(t *testing.T) {
	bounds := []TierBound{{Tier: "novice", MinPoints: 0}, {Tier: "veteran", MinPoints: 10}}
	assert.Equal(t, domain.Tier("novice"), TierFor(9, bounds))
	assert.Equal(t, domain.Tier("veteran"), TierFor(10, bounds))
}
