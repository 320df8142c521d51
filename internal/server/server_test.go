package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"tally/internal/config"
	"tally/internal/db"
	"tally/internal/domain"
	"tally/internal/engine"
	"tally/internal/metrics"
	"tally/internal/migrate"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		t.Fatalf("ensure workspace: %v", err)
	}
	cfg := config.Default()
	cfg.Roles.Moderators = []string{"mod"}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	reg := prometheus.NewRegistry()
	m := &metrics.Ledger{}
	m.Register(reg)
	e := engine.New(conn, cfg, nil, m)
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowActorHeader: true, DevLogin: true},
		Gatherer: reg,
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func as(actor string) map[string]string { return map[string]string{"X-Actor-Id": actor} }

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func errorCode(t *testing.T, data []byte) (string, map[string]any) {
	t.Helper()
	var env struct {
		Error apiErrorBody `json:"error"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		t.Fatalf("unmarshal error envelope: %v (%s)", err, string(data))
	}
	return env.Error.Code, env.Error.Details
}

func TestAuthRequired(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("me without credentials: %d %s", res.StatusCode, string(body))
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: %d", res.StatusCode)
	}
}

func TestDevLoginAndAPIKey(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/auth/dev/login", map[string]any{"actor_id": "mod"}, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("dev login: %d %s", res.StatusCode, string(body))
	}
	var login DevLoginResponse
	_ = json.Unmarshal(body, &login)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"Authorization": "Bearer " + login.Token})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with jwt: %d %s", res.StatusCode, string(body))
	}
	var who WhoAmIResponse
	_ = json.Unmarshal(body, &who)
	if who.ActorID != "mod" || !who.Moderator || who.Source != "jwt" {
		t.Fatalf("whoami: %+v", who)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/me/api-keys", map[string]any{"name": "ci"}, as("bob"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create key: %d %s", res.StatusCode, string(body))
	}
	var key APIKeyResponse
	_ = json.Unmarshal(body, &key)
	if !strings.HasPrefix(key.Key, "tl_") {
		t.Fatalf("raw key not returned: %+v", key)
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me", nil, map[string]string{"X-Api-Key": key.Key})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("me with api key: %d %s", res.StatusCode, string(body))
	}
	_ = json.Unmarshal(body, &who)
	if who.ActorID != "bob" || who.Source != "api_key" {
		t.Fatalf("api key principal: %+v", who)
	}
}

func TestConnectDuplicateAndAccept(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/connections", map[string]any{"target_id": "bob"}, as("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("connect: %d %s", res.StatusCode, string(body))
	}
	var edge domain.Edge
	_ = json.Unmarshal(body, &edge)

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/connections", map[string]any{"target_id": "alice"}, as("bob"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("reverse connect: %d %s", res.StatusCode, string(body))
	}
	code, details := errorCode(t, body)
	if code != "duplicate_action" || details["existing_id"] != edge.ID {
		t.Fatalf("duplicate envelope: %s %v", code, details)
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/connections/"+edge.ID+"/accept", nil, as("alice"))
	if res.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("initiator accept: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/connections/"+edge.ID+"/accept", nil, as("bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me/connections", nil, as("alice"))
	var conns []domain.Edge
	_ = json.Unmarshal(body, &conns)
	if res.StatusCode != http.StatusOK || len(conns) != 1 || conns[0].Status != domain.EdgeAccepted {
		t.Fatalf("connections: %d %s", res.StatusCode, string(body))
	}
}

func TestMessagingBetweenConnections(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	msg := map[string]any{"recipient_id": "bob", "content": "Hello!"}
	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/messages", msg, as("alice"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("message without connection: %d %s", res.StatusCode, string(body))
	}
	if code, details := errorCode(t, body); code != "forbidden" || details["permission"] != "conversation.message" {
		t.Fatalf("forbidden envelope: %s %v", code, details)
	}

	_, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/connections", map[string]any{"target_id": "bob"}, as("alice"))
	var edge domain.Edge
	_ = json.Unmarshal(body, &edge)
	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/connections/"+edge.ID+"/accept", nil, as("bob"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("accept: %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, srv.URL+"/v0/messages", msg, as("alice"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("send: %d %s", res.StatusCode, string(body))
	}
	var sent domain.Message
	_ = json.Unmarshal(body, &sent)

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/me/messages/alice", nil, as("bob"))
	var msgs []domain.Message
	_ = json.Unmarshal(body, &msgs)
	if res.StatusCode != http.StatusOK || len(msgs) != 1 || msgs[0].ID != sent.ID || msgs[0].Content != "Hello!" {
		t.Fatalf("conversation: %d %s", res.StatusCode, string(body))
	}
}

func TestProjectFundingFlow(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/projects", map[string]any{
		"title": "Community fridge", "goal_amount": 100, "goal_type": "fixed",
	}, as("owner"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("propose: %d %s", res.StatusCode, string(body))
	}
	var f domain.Fundable
	_ = json.Unmarshal(body, &f)
	base := srv.URL + "/v0/projects/" + f.ID

	res, body = doJSON(t, client, http.MethodPost, base+"/contributions", map[string]any{"amount": 10}, as("bob"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("contribute before approval: %d %s", res.StatusCode, string(body))
	}
	if code, _ := errorCode(t, body); code != "invalid_state" {
		t.Fatalf("code = %s", code)
	}

	res, body = doJSON(t, client, http.MethodPost, base+"/transitions", map[string]any{"action": "approve"}, as("owner"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("owner approve: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodPost, base+"/transitions", map[string]any{"action": "approve"}, as("mod"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("moderator approve: %d %s", res.StatusCode, string(body))
	}

	res, body = doJSON(t, client, http.MethodPost, base+"/contributions", map[string]any{"amount": 120, "anonymous": true}, as("bob"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("contribute: %d %s", res.StatusCode, string(body))
	}
	var contributed ContributeResponse
	_ = json.Unmarshal(body, &contributed)
	if contributed.Project.Status != domain.FundableFunded || contributed.Project.FundingPercentage != 120 {
		t.Fatalf("snapshot after contribution: %+v", contributed.Project)
	}
	if contributed.Contribution.ContributorID != "bob" {
		t.Fatalf("contributor sees own id: %+v", contributed.Contribution)
	}

	res, body = doJSON(t, client, http.MethodGet, base+"/contributions", nil, as("carol"))
	var seen []ContributionResponse
	_ = json.Unmarshal(body, &seen)
	if res.StatusCode != http.StatusOK || len(seen) != 1 || seen[0].ContributorID != "" || !seen[0].Anonymous {
		t.Fatalf("masked listing: %d %s", res.StatusCode, string(body))
	}
}

func TestVoteChangeAndJournal(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, body := doJSON(t, client, http.MethodPost, srv.URL+"/v0/policies", map[string]any{"title": "Night buses"}, as("owner"))
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create policy: %d %s", res.StatusCode, string(body))
	}
	var created engine.PolicyResult
	_ = json.Unmarshal(body, &created)
	base := srv.URL + "/v0/policies/" + created.Policy.ID

	res, body = doJSON(t, client, http.MethodPut, base+"/vote", map[string]any{"vote_type": "support"}, as("bob"))
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("vote on draft: %d %s", res.StatusCode, string(body))
	}
	if res, body = doJSON(t, client, http.MethodPost, base+"/transitions", map[string]any{"event": "open"}, as("owner")); res.StatusCode != http.StatusOK {
		t.Fatalf("open: %d %s", res.StatusCode, string(body))
	}
	for _, vt := range []string{"support", "oppose"} {
		res, body = doJSON(t, client, http.MethodPut, base+"/vote", map[string]any{"vote_type": vt}, as("bob"))
		if res.StatusCode != http.StatusOK {
			t.Fatalf("vote %s: %d %s", vt, res.StatusCode, string(body))
		}
	}
	var vote engine.VoteResult
	_ = json.Unmarshal(body, &vote)
	if !vote.Changed || vote.Policy.SupportCount != 0 || vote.Policy.OpposeCount != 1 {
		t.Fatalf("vote change: %+v", vote)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?aggregate_id="+created.Policy.ID, nil, as("bob"))
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("journal for non-moderator: %d %s", res.StatusCode, string(body))
	}
	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?aggregate_kind=votable&limit=2", nil, as("mod"))
	if res.StatusCode != http.StatusOK {
		t.Fatalf("journal: %d %s", res.StatusCode, string(body))
	}
	var page paginatedEvents
	_ = json.Unmarshal(body, &page)
	if len(page.Items) != 2 || page.Items[0].Type != string(domain.EventChangeVote) || page.NextCursor == "" {
		t.Fatalf("journal page: %+v", page)
	}

	res, body = doJSON(t, client, http.MethodGet, srv.URL+"/metrics", nil, nil)
	if res.StatusCode != http.StatusOK || !strings.Contains(string(body), "tally_ledger_commands_total") {
		t.Fatalf("metrics: %d", res.StatusCode)
	}
}
