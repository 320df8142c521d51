package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/config"
	"tally/internal/db"
	"tally/internal/domain"
	"tally/internal/engine"
	"tally/internal/fsm"
	"tally/internal/migrate"
	"tally/internal/repo"
)

type testEnv struct {
	Engine engine.Engine
	Ctx    context.Context
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cfg := config.Default()
	cfg.Roles.Moderators = []string{"mod"}
	eng := engine.New(conn, cfg, nil, nil)
	eng.Now = func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background()}
}

func (env testEnv) activeProject(t *testing.T, goal float64, goalType domain.GoalType) domain.Fundable {
	t.Helper()
	f, err := env.Engine.ProposeProject(env.Ctx, engine.ProposeOptions{Owner: "owner", Title: "Solar roof", GoalAmount: goal, GoalType: goalType})
	if err != nil {
		t.Fatalf("propose: %v", err)
	}
	f, err = env.Engine.ApproveProject(env.Ctx, "mod", f.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return f
}

func (env testEnv) openPolicy(t *testing.T) domain.Votable {
	t.Helper()
	res, err := env.Engine.CreatePolicy(env.Ctx, "owner", "Bike lanes")
	if err != nil {
		t.Fatalf("create policy: %v", err)
	}
	v, err := env.Engine.TransitionPolicy(env.Ctx, "owner", res.Policy.ID, fsm.VotableOpen)
	if err != nil {
		t.Fatalf("open policy: %v", err)
	}
	return v
}

func TestConcurrentContributionsMatchLedger(t *testing.T) {
	env := newTestEnv(t)
	f := env.activeProject(t, 0, domain.GoalFlexible)
	const n = 25
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			_, _, err := env.Engine.Contribute(env.Ctx, engine.ContributeOptions{Project: f.ID, Contributor: "backer", Amount: 4})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("contribute: %v", err)
	}
	got, err := env.Engine.GetProject(env.Ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	sum, count, err := env.Engine.Repo.SumContributions(env.Ctx, f.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.RaisedAmount != sum || sum != 4*n {
		t.Fatalf("raised %v, ledger sum %v", got.RaisedAmount, sum)
	}
	if got.ContributorCount != n || count != n {
		t.Fatalf("contributor count %d, records %d", got.ContributorCount, count)
	}
}

func TestConcurrentConnectYieldsOneEdge(t *testing.T) {
	env := newTestEnv(t)
	const n = 12
	var (
		g          errgroup.Group
		mu         sync.Mutex
		ok, dupes  int
		existingID string
	)
	for i := 0; i < n; i++ {
		from, to := "alice", "bob"
		if i%2 == 1 {
			from, to = to, from
		}
		g.Go(func() error {
			_, err := env.Engine.Connect(env.Ctx, from, to, "hi")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, domain.ErrDuplicateAction):
				dupes++
				existingID, _ = domain.ExistingHolder(err)
			default:
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if ok != 1 || dupes != n-1 {
		t.Fatalf("ok=%d dupes=%d", ok, dupes)
	}
	edges, err := env.Engine.Repo.CountEdges(env.Ctx, "alice", "bob")
	if err != nil || edges != 1 {
		t.Fatalf("edges=%d err=%v", edges, err)
	}
	edge, err := env.Engine.GetConnection(env.Ctx, existingID)
	if err != nil || edge.Status != domain.EdgePending {
		t.Fatalf("existing edge %s: %+v %v", existingID, edge, err)
	}
}

func TestAcceptConnection(t *testing.T) {
	env := newTestEnv(t)
	edge, err := env.Engine.Connect(env.Ctx, "alice", "bob", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AcceptConnection(env.Ctx, "alice", edge.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("initiator accept: %v", err)
	}
	if _, err := env.Engine.AcceptConnection(env.Ctx, "mallory", edge.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("outsider accept: %v", err)
	}
	pending, err := env.Engine.PendingRequests(env.Ctx, "bob")
	if err != nil || len(pending) != 1 {
		t.Fatalf("pending for bob: %v %v", pending, err)
	}
	edge, err = env.Engine.AcceptConnection(env.Ctx, "bob", edge.ID)
	if err != nil || edge.Status != domain.EdgeAccepted || edge.AcceptedAt == nil {
		t.Fatalf("accept: %+v %v", edge, err)
	}
	if _, err := env.Engine.AcceptConnection(env.Ctx, "bob", edge.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("second accept: %v", err)
	}
	connected, err := env.Engine.AreConnected(env.Ctx, "bob", "alice")
	if err != nil || !connected {
		t.Fatalf("connected=%v err=%v", connected, err)
	}
	conns, _ := env.Engine.Connections(env.Ctx, "alice")
	if len(conns) != 1 || conns[0].Other("alice") != "bob" {
		t.Fatalf("connections: %+v", conns)
	}
	if _, err := env.Engine.Connect(env.Ctx, "bob", "alice", ""); !errors.Is(err, domain.ErrDuplicateAction) {
		t.Fatalf("reconnect after accept: %v", err)
	}
}

func TestVoteChangeMovesOneUnit(t *testing.T) {
	env := newTestEnv(t)
	v := env.openPolicy(t)
	for _, voter := range []string{"a", "b", "c"} {
		if _, err := env.Engine.Vote(env.Ctx, voter, v.ID, domain.VoteSupport, ""); err != nil {
			t.Fatalf("vote %s: %v", voter, err)
		}
	}
	res, err := env.Engine.Vote(env.Ctx, "a", v.ID, domain.VoteOppose, "changed my mind")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Changed || res.Points.Account != nil {
		t.Fatalf("vote change should not credit: %+v", res)
	}
	p := res.Policy
	if p.SupportCount != 2 || p.OpposeCount != 1 || p.NeutralCount != 0 || p.TotalVotes() != 3 {
		t.Fatalf("counters after change: %+v", p)
	}
	res, err = env.Engine.Vote(env.Ctx, "a", v.ID, domain.VoteOppose, "")
	if err != nil || res.Policy.TotalVotes() != 3 || res.Policy.OpposeCount != 1 {
		t.Fatalf("identical revote: %+v %v", res.Policy, err)
	}
	acct, _ := env.Engine.Participation(env.Ctx, "a")
	if acct.TotalPoints != 10 || acct.PerActivity[domain.ActivityPolicyVote] != 1 {
		t.Fatalf("voter credited once: %+v", acct)
	}
}

func TestConcurrentVoteChangesKeepCounterSum(t *testing.T) {
	env := newTestEnv(t)
	v := env.openPolicy(t)
	voters := []string{"v1", "v2", "v3", "v4", "v5", "v6"}
	for _, voter := range voters {
		if _, err := env.Engine.Vote(env.Ctx, voter, v.ID, domain.VoteNeutral, ""); err != nil {
			t.Fatal(err)
		}
	}
	types := []domain.VoteType{domain.VoteSupport, domain.VoteOppose, domain.VoteNeutral}
	ctx, cancel := context.WithCancel(env.Ctx)
	defer cancel()
	readerErr := make(chan error, 1)
	go func() {
		defer close(readerErr)
		for ctx.Err() == nil {
			p, err := env.Engine.GetPolicy(env.Ctx, v.ID)
			if err != nil {
				readerErr <- err
				return
			}
			if p.TotalVotes() != len(voters) {
				readerErr <- errors.New("reader saw a double count")
				return
			}
		}
	}()
	var g errgroup.Group
	for round := 0; round < 5; round++ {
		for i, voter := range voters {
			vt := types[(i+round)%len(types)]
			g.Go(func() error {
				_, err := env.Engine.Vote(env.Ctx, voter, v.ID, vt, "")
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("votes: %v", err)
	}
	cancel()
	if err := <-readerErr; err != nil {
		t.Fatal(err)
	}
	p, _ := env.Engine.GetPolicy(env.Ctx, v.ID)
	tally, err := env.Engine.Repo.CountVotesByType(env.Ctx, v.ID)
	if err != nil {
		t.Fatal(err)
	}
	if p.TotalVotes() != len(voters) {
		t.Fatalf("total votes %d", p.TotalVotes())
	}
	for _, vt := range types {
		if p.CountFor(vt) != tally[vt] {
			t.Fatalf("%s counter %d, vote rows %d", vt, p.CountFor(vt), tally[vt])
		}
	}
}

func TestContributeRejectedOutsideActiveStates(t *testing.T) {
	env := newTestEnv(t)
	f, err := env.Engine.ProposeProject(env.Ctx, engine.ProposeOptions{Owner: "owner", Title: "Library", GoalAmount: 500})
	if err != nil {
		t.Fatal(err)
	}
	_, _, err = env.Engine.Contribute(env.Ctx, engine.ContributeOptions{Project: f.ID, Contributor: "x", Amount: 50})
	if !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("pending_approval contribute: %v", err)
	}
	got, _ := env.Engine.GetProject(env.Ctx, f.ID)
	if got.RaisedAmount != 0 || got.ContributorCount != 0 {
		t.Fatalf("rejected contribution changed project: %+v", got)
	}
	if _, _, err := env.Engine.Contribute(env.Ctx, engine.ContributeOptions{Project: "missing", Contributor: "x", Amount: 1}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing project: %v", err)
	}
	if _, _, err := env.Engine.Contribute(env.Ctx, engine.ContributeOptions{Project: f.ID, Contributor: "x", Amount: -3}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("negative amount: %v", err)
	}
}

func TestApplyTwiceIsDuplicate(t *testing.T) {
	env := newTestEnv(t)
	org, err := env.Engine.CreateOrg(env.Ctx, "hr", "Acme")
	if err != nil {
		t.Fatal(err)
	}
	job, err := env.Engine.CreateJob(env.Ctx, "hr", org.ID, "Data engineer", []string{"Python", "SQL", "Docker"})
	if err != nil {
		t.Fatal(err)
	}
	first, err := env.Engine.Apply(env.Ctx, "ann", job.ID, "hello")
	if err != nil || first.Status != domain.ApplicationApplied {
		t.Fatalf("first apply: %+v %v", first, err)
	}
	_, err = env.Engine.Apply(env.Ctx, "ann", job.ID, "hello again")
	if !errors.Is(err, domain.ErrDuplicateAction) {
		t.Fatalf("second apply: %v", err)
	}
	if existing, _ := domain.ExistingHolder(err); existing != first.ID {
		t.Fatalf("existing = %q, want %q", existing, first.ID)
	}
	apps, err := env.Engine.JobApplications(env.Ctx, "hr", job.ID)
	if err != nil || len(apps) != 1 {
		t.Fatalf("applications: %v %v", apps, err)
	}
	if _, err := env.Engine.Apply(env.Ctx, "ann", "no-such-job", ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown job: %v", err)
	}
}

func TestApplicationStatusByOwningOrgOnly(t *testing.T) {
	env := newTestEnv(t)
	org, _ := env.Engine.CreateOrg(env.Ctx, "hr", "Acme")
	job, _ := env.Engine.CreateJob(env.Ctx, "hr", org.ID, "Engineer", []string{"go"})
	app, err := env.Engine.Apply(env.Ctx, "ann", job.ID, "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.UpdateApplicationStatus(env.Ctx, "ann", app.ID, domain.ApplicationAccepted); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("applicant self-accept: %v", err)
	}
	got, err := env.Engine.UpdateApplicationStatus(env.Ctx, "hr", app.ID, domain.ApplicationInterviewed)
	if err != nil || got.Status != domain.ApplicationInterviewed {
		t.Fatalf("org update: %+v %v", got, err)
	}
	got, err = env.Engine.UpdateApplicationStatus(env.Ctx, "hr", app.ID, domain.ApplicationApplied)
	if err != nil || got.Status != domain.ApplicationApplied {
		t.Fatalf("any status reachable: %+v %v", got, err)
	}
}

func TestFixedGoalFundedByConcurrentContributions(t *testing.T) {
	env := newTestEnv(t)
	f := env.activeProject(t, 1000, domain.GoalFixed)
	var g errgroup.Group
	for _, amt := range []float64{600, 500} {
		g.Go(func() error {
			_, _, err := env.Engine.Contribute(env.Ctx, engine.ContributeOptions{Project: f.ID, Contributor: "backer", Amount: amt})
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}
	got, _ := env.Engine.GetProject(env.Ctx, f.ID)
	if got.RaisedAmount != 1100 || got.Status != domain.FundableFunded || got.ContributorCount != 2 || got.FundingPercentage != 110 {
		t.Fatalf("funded snapshot: %+v", got)
	}
	if _, _, err := env.Engine.Contribute(env.Ctx, engine.ContributeOptions{Project: f.ID, Contributor: "late", Amount: 10}); err != nil {
		t.Fatalf("funded still accepts: %v", err)
	}
}

func TestProjectLifecycleAndMilestones(t *testing.T) {
	env := newTestEnv(t)
	f, err := env.Engine.ProposeProject(env.Ctx, engine.ProposeOptions{Owner: "owner", Title: "Garden", GoalType: domain.GoalFlexible, Milestones: []string{"plan"}})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.ApproveProject(env.Ctx, "owner", f.ID); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("self approval: %v", err)
	}
	if _, err := env.Engine.ApproveProject(env.Ctx, "mod", f.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.AddMilestone(env.Ctx, "owner", f.ID, "plan"); !errors.Is(err, domain.ErrDuplicateAction) {
		t.Fatalf("duplicate milestone: %v", err)
	}
	if _, err := env.Engine.AddMilestone(env.Ctx, "stranger", f.ID, "dig"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("stranger milestone: %v", err)
	}
	f, err = env.Engine.AddMilestone(env.Ctx, "owner", f.ID, "dig")
	if err != nil || len(f.Milestones) != 2 || f.Milestones[1] != "dig" {
		t.Fatalf("add milestone: %+v %v", f, err)
	}
	f, err = env.Engine.CompleteMilestone(env.Ctx, "owner", f.ID, "plan")
	if err != nil || !f.MilestoneCompleted("plan") {
		t.Fatalf("complete milestone: %+v %v", f, err)
	}
	if _, err := env.Engine.CompleteMilestone(env.Ctx, "owner", f.ID, "plan"); !errors.Is(err, domain.ErrDuplicateAction) {
		t.Fatalf("repeat milestone: %v", err)
	}
	if _, err := env.Engine.CompleteMilestone(env.Ctx, "owner", f.ID, "harvest"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown milestone: %v", err)
	}
	f, err = env.Engine.StartProject(env.Ctx, "owner", f.ID)
	if err != nil || f.Status != domain.FundableInProgress {
		t.Fatalf("start flexible: %+v %v", f, err)
	}
	f, err = env.Engine.CompleteProject(env.Ctx, "owner", f.ID)
	if err != nil || f.Status != domain.FundableCompleted {
		t.Fatalf("complete: %+v %v", f, err)
	}
	if _, err := env.Engine.CancelProject(env.Ctx, "mod", f.ID); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("cancel completed: %v", err)
	}
	if _, err := env.Engine.AddMilestone(env.Ctx, "owner", f.ID, "late"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("milestone after completion: %v", err)
	}
}

func TestCompleteMilestoneRowOnce(t *testing.T) {
	env := newTestEnv(t)
	f, err := env.Engine.ProposeProject(env.Ctx, engine.ProposeOptions{Owner: "owner", Title: "Well", GoalType: domain.GoalFlexible, Milestones: []string{"survey"}})
	if err != nil {
		t.Fatal(err)
	}
	complete := func(name string) error {
		tx, err := env.Engine.DB.BeginTx(env.Ctx, nil)
		if err != nil {
			t.Fatal(err)
		}
		defer tx.Rollback()
		if err := env.Engine.Repo.CompleteMilestone(env.Ctx, tx, f.ID, name, "2024-01-01T00:00:00Z"); err != nil {
			return err
		}
		return tx.Commit()
	}
	if err := complete("survey"); err != nil {
		t.Fatalf("first completion: %v", err)
	}
	if err := complete("survey"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second completion: %v", err)
	}
	if err := complete("drill"); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("unknown milestone: %v", err)
	}
}

func TestPointsTierScenario(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.Engine.Credit(env.Ctx, "p", domain.ActivityForumCreation, 180); err != nil {
		t.Fatal(err)
	}
	acct, err := env.Engine.CreditActivity(env.Ctx, "p", domain.ActivityPolicyVote)
	if err != nil || acct.TotalPoints != 190 || acct.Tier != domain.TierBronze {
		t.Fatalf("after vote credit: %+v %v", acct, err)
	}
	acct, err = env.Engine.CreditActivity(env.Ctx, "p", domain.ActivityPolicyFeedback)
	if err != nil || acct.TotalPoints != 215 || acct.Tier != domain.TierSilver {
		t.Fatalf("after feedback credit: %+v %v", acct, err)
	}
	if acct.PerActivity[domain.ActivityPolicyVote] != 1 || acct.PerActivity[domain.ActivityForumCreation] != 1 {
		t.Fatalf("per activity: %+v", acct.PerActivity)
	}
	if _, err := env.Engine.Credit(env.Ctx, "p", domain.ActivityPolicyVote, -5); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("negative credit: %v", err)
	}
	fresh, err := env.Engine.Participation(env.Ctx, "nobody")
	if err != nil || fresh.TotalPoints != 0 || fresh.Tier != domain.TierBronze {
		t.Fatalf("unknown actor: %+v %v", fresh, err)
	}
}

func TestPolicyInputWindowAndFeedback(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.CreatePolicy(env.Ctx, "owner", "Quiet hours")
	if err != nil {
		t.Fatal(err)
	}
	if res.Points.Account == nil || res.Points.Account.TotalPoints != 50 {
		t.Fatalf("creation credit: %+v", res.Points)
	}
	if _, err := env.Engine.Vote(env.Ctx, "a", res.Policy.ID, domain.VoteSupport, ""); !errors.Is(err, domain.ErrNotAcceptingInput) {
		t.Fatalf("vote on draft: %v", err)
	}
	if _, err := env.Engine.TransitionPolicy(env.Ctx, "owner", res.Policy.ID, fsm.VotableOpen); err != nil {
		t.Fatal(err)
	}
	fb, err := env.Engine.Feedback(env.Ctx, "a", res.Policy.ID, "", "needs exceptions")
	if err != nil || fb.Policy.FeedbackCount != 1 || fb.Points.Points != 25 {
		t.Fatalf("feedback: %+v %v", fb, err)
	}
	if _, err := env.Engine.TransitionPolicy(env.Ctx, "owner", res.Policy.ID, fsm.VotableReview); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("owner review: %v", err)
	}
	for _, ev := range []fsm.VotableEvent{fsm.VotableReview, fsm.VotableApprove} {
		if _, err := env.Engine.TransitionPolicy(env.Ctx, "mod", res.Policy.ID, ev); err != nil {
			t.Fatalf("%s: %v", ev, err)
		}
	}
	if _, err := env.Engine.Feedback(env.Ctx, "a", res.Policy.ID, "", "too late"); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("feedback after approval: %v", err)
	}
}

func TestEndorseRequiresAcceptedEdge(t *testing.T) {
	env := newTestEnv(t)
	edge, _ := env.Engine.Connect(env.Ctx, "alice", "bob", "")
	if _, err := env.Engine.Endorse(env.Ctx, "alice", "bob", "Go", ""); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("endorse while pending: %v", err)
	}
	if _, err := env.Engine.AcceptConnection(env.Ctx, "bob", edge.ID); err != nil {
		t.Fatal(err)
	}
	first, err := env.Engine.Endorse(env.Ctx, "alice", "bob", "Go", "solid")
	if err != nil || first.Skill != "go" {
		t.Fatalf("endorse: %+v %v", first, err)
	}
	if _, err := env.Engine.Endorse(env.Ctx, "alice", "bob", " go ", ""); !errors.Is(err, domain.ErrDuplicateAction) {
		t.Fatalf("repeat endorse: %v", err)
	}
	if _, err := env.Engine.Endorse(env.Ctx, "bob", "alice", "go", ""); err != nil {
		t.Fatalf("reverse endorse is distinct: %v", err)
	}
}

func TestMatchScoring(t *testing.T) {
	env := newTestEnv(t)
	org, _ := env.Engine.CreateOrg(env.Ctx, "hr", "Acme")
	job, _ := env.Engine.CreateJob(env.Ctx, "hr", org.ID, "Data engineer", []string{"Python", "SQL", "Docker"})
	other, _ := env.Engine.CreateJob(env.Ctx, "hr", org.ID, "Ops", []string{"docker"})
	if _, err := env.Engine.CreateJob(env.Ctx, "hr", org.ID, "Anything", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SetProfile(env.Ctx, "ann", "Ann", []string{"python", "Docker"}); err != nil {
		t.Fatal(err)
	}
	matches, err := env.Engine.MatchJobsForActor(env.Ctx, "ann")
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 || matches[0].ID != other.ID || matches[0].Score != 100 || matches[1].ID != job.ID || matches[1].Score != 66.7 {
		t.Fatalf("matches: %+v", matches)
	}
	if _, err := env.Engine.Apply(env.Ctx, "ann", job.ID, ""); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.Apply(env.Ctx, "ghost", job.ID, ""); err != nil {
		t.Fatal(err)
	}
	ranked, err := env.Engine.RankCandidates(env.Ctx, "hr", job.ID)
	if err != nil || len(ranked) != 2 || ranked[0].ID != "ann" || ranked[1].Score != 0 {
		t.Fatalf("ranked: %+v %v", ranked, err)
	}
}

func TestMatchTiesKeepPostingOrder(t *testing.T) {
	for _, tc := range []struct {
		name string
		step time.Duration
	}{
		{"same instant", 0},
		{"one second apart", time.Second},
	} {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			var mu sync.Mutex
			clock := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
			env.Engine.Now = func() time.Time {
				mu.Lock()
				defer mu.Unlock()
				clock = clock.Add(tc.step)
				return clock
			}
			org, err := env.Engine.CreateOrg(env.Ctx, "hr", "Acme")
			if err != nil {
				t.Fatal(err)
			}
			first, err := env.Engine.CreateJob(env.Ctx, "hr", org.ID, "First", []string{"go"})
			if err != nil {
				t.Fatal(err)
			}
			second, err := env.Engine.CreateJob(env.Ctx, "hr", org.ID, "Second", []string{"go"})
			if err != nil {
				t.Fatal(err)
			}
			if _, err := env.Engine.SetProfile(env.Ctx, "ann", "Ann", []string{"go"}); err != nil {
				t.Fatal(err)
			}
			matches, err := env.Engine.MatchJobsForActor(env.Ctx, "ann")
			if err != nil {
				t.Fatal(err)
			}
			if len(matches) != 2 || matches[0].ID != first.ID || matches[1].ID != second.ID {
				t.Fatalf("matches: %+v, want [%s %s]", matches, first.ID, second.ID)
			}
			jobs, err := env.Engine.ListJobs(env.Ctx, org.ID)
			if err != nil || len(jobs) != 2 || jobs[0].ID != first.ID {
				t.Fatalf("list jobs: %+v %v", jobs, err)
			}
		})
	}
}

func TestMessagesRequireAcceptedEdge(t *testing.T) {
	env := newTestEnv(t)
	edge, err := env.Engine.Connect(env.Ctx, "alice", "bob", "")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, "alice", "bob", "hi"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("message while pending: %v", err)
	}
	if _, err := env.Engine.AcceptConnection(env.Ctx, "bob", edge.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, "alice", "bob", "  "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("blank message: %v", err)
	}
	if _, err := env.Engine.SendMessage(env.Ctx, "alice", "mallory", "hi"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("message stranger: %v", err)
	}
	hello, err := env.Engine.SendMessage(env.Ctx, "alice", "bob", "hello")
	if err != nil || hello.Sender != "alice" || hello.Recipient != "bob" {
		t.Fatalf("send: %+v %v", hello, err)
	}
	reply, err := env.Engine.SendMessage(env.Ctx, "bob", "alice", "hey")
	if err != nil {
		t.Fatal(err)
	}
	for _, viewer := range []struct{ actor, other string }{{"alice", "bob"}, {"bob", "alice"}} {
		msgs, err := env.Engine.Conversation(env.Ctx, viewer.actor, viewer.other)
		if err != nil || len(msgs) != 2 || msgs[0].ID != hello.ID || msgs[1].ID != reply.ID {
			t.Fatalf("conversation for %s: %+v %v", viewer.actor, msgs, err)
		}
	}
	if msgs, err := env.Engine.Conversation(env.Ctx, "mallory", "bob"); err != nil || len(msgs) != 0 {
		t.Fatalf("outsider conversation: %+v %v", msgs, err)
	}
	events, err := env.Engine.Journal(env.Ctx, repo.EventFilter{AggregateKind: string(domain.AggregateConversation)})
	if err != nil || len(events) != 2 || events[0].RecordID != reply.ID {
		t.Fatalf("journal: %+v %v", events, err)
	}
}
