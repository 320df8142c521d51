package app

import (
	"context"
	"os"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"tally/internal/config"
	"tally/internal/domain"
	"tally/internal/logger"
)

func TestOpenSeedsDefaultConfig(t *testing.T) {
	ctx := context.Background()
	ws := t.TempDir()
	rt, err := Open(ctx, Options{Workspace: ws, Logger: logger.Nop(), Registry: prometheus.NewRegistry()})
	require.NoError(t, err)
	defer rt.Close()

	pts, ok := rt.Config.Reward(string(domain.ActivityPolicyVote))
	require.True(t, ok)
	require.Equal(t, 10, pts)

	stored, err := rt.Engine.Repo.GetConfig(ctx)
	require.NoError(t, err)
	require.Equal(t, rt.Config.Participation.Rewards, stored.Participation.Rewards)
}

func TestWorkspaceFileOverridesStoredConfig(t *testing.T) {
	ctx := context.Background()
	ws := t.TempDir()
	rt, err := Open(ctx, Options{Workspace: ws, Logger: logger.Nop()})
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	custom := `participation:
  rewards:
    policy_vote: 3
  tiers:
    - name: bronze
      min_points: 0
    - name: silver
      min_points: 5
roles:
  moderators: [alice]
`
	require.NoError(t, os.WriteFile(config.Path(ws), []byte(custom), 0o644))

	rt, err = Open(ctx, Options{Workspace: ws, Logger: logger.Nop()})
	require.NoError(t, err)
	defer rt.Close()
	pts, _ := rt.Config.Reward(string(domain.ActivityPolicyVote))
	require.Equal(t, 3, pts)

	mod, err := rt.Engine.Auth.IsModerator(ctx, "alice")
	require.NoError(t, err)
	require.True(t, mod)

	acct, err := rt.Engine.Credit(ctx, "bob", domain.ActivityPolicyVote, 6)
	require.NoError(t, err)
	require.Equal(t, domain.Tier("silver"), acct.Tier)
}
