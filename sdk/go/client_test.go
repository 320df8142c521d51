package tallysdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"tally/internal/config"
	"tally/internal/db"
	"tally/internal/engine"
	"tally/internal/migrate"
	"tally/internal/server"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	cfg := config.Default()
	cfg.Roles.Moderators = []string{"mod"}
	handler, err := server.New(server.Config{
		Engine:   engine.New(conn, cfg, nil, nil),
		BasePath: "/v0",
		Auth:     server.AuthConfig{JWTSecret: "sdk-secret", DevLogin: true},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func login(t *testing.T, baseURL, actor string) *Client {
	t.Helper()
	c := New(baseURL)
	require.NoError(t, c.DevLogin(context.Background(), actor))
	return c
}

func TestFundingRoundTrip(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	owner := login(t, srv.URL, "owner")
	mod := login(t, srv.URL, "mod")
	backer := login(t, srv.URL, "backer")

	p, err := owner.ProposeProject(ctx, "Repair cafe", 1000, "fixed")
	require.NoError(t, err)
	require.Equal(t, "pending_approval", p.Status)

	_, _, err = backer.Contribute(ctx, p.ID, 50, false)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)
	require.Equal(t, "invalid_state", apiErr.Code)

	_, err = mod.TransitionProject(ctx, p.ID, "approve")
	require.NoError(t, err)
	_, _, err = backer.Contribute(ctx, p.ID, 600, false)
	require.NoError(t, err)
	p, _, err = backer.Contribute(ctx, p.ID, 500, true)
	require.NoError(t, err)
	require.Equal(t, "funded", p.Status)
	require.Equal(t, 1100.0, p.RaisedAmount)
	require.Equal(t, 2, p.ContributorCount)
	require.Equal(t, 110.0, p.FundingPercentage)
}

func TestDuplicateConnectCarriesExistingID(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	alice := login(t, srv.URL, "alice")
	bob := login(t, srv.URL, "bob")

	edge, err := alice.Connect(ctx, "bob", "hello")
	require.NoError(t, err)
	_, err = bob.Connect(ctx, "alice", "")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, "duplicate_action", apiErr.Code)
	require.Equal(t, edge.ID, apiErr.Details["existing_id"])

	accepted, err := bob.AcceptConnection(ctx, edge.ID)
	require.NoError(t, err)
	require.Equal(t, "accepted", accepted.Status)
}

func TestVoteAndPoints(t *testing.T) {
	ctx := context.Background()
	srv := newServer(t)
	owner := login(t, srv.URL, "owner")
	voter := login(t, srv.URL, "voter")

	pol, err := owner.CreatePolicy(ctx, "Open data")
	require.NoError(t, err)
	_, err = owner.TransitionPolicy(ctx, pol.ID, "open")
	require.NoError(t, err)

	res, err := voter.Vote(ctx, pol.ID, "support", "")
	require.NoError(t, err)
	require.False(t, res.Changed)
	res, err = voter.Vote(ctx, pol.ID, "neutral", "")
	require.NoError(t, err)
	require.True(t, res.Changed)
	require.Equal(t, 1, res.Policy.NeutralCount)
	require.Equal(t, 0, res.Policy.SupportCount)

	acct, err := voter.Participation(ctx, "voter")
	require.NoError(t, err)
	require.Equal(t, 10, acct.TotalPoints)

	board, err := voter.Leaderboard(ctx, 5)
	require.NoError(t, err)
	require.Len(t, board, 2)
	require.Equal(t, "owner", board[0].Actor)
	require.Equal(t, "bronze", board[0].Tier)
}
