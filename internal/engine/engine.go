package engine

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"tally/internal/auth"
	"tally/internal/config"
	"tally/internal/domain"
	"tally/internal/guard"
	"tally/internal/ledger"
	"tally/internal/logger"
	"tally/internal/metrics"
	"tally/internal/repo"
	"tally/internal/scoring"
)

// Directory is what the engine reads from collaborators outside the ledger:
// profile skills, job ownership, org membership and accepted edges. Lookups
// run before a command enters its critical section.
type Directory interface {
	ActorSkills(ctx context.Context, actor string) ([]string, error)
	JobOrg(ctx context.Context, jobID string) (string, error)
	IsOrgMember(ctx context.Context, orgID, actorID string) (bool, error)
	AreConnected(ctx context.Context, a, b string) (bool, error)
}

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Ledger    *ledger.Writer
	Guard     guard.Guard
	Directory Directory
	Auth      auth.Service
	Config    *config.Config
	Metrics   *metrics.Ledger
	Log       *logger.Logger
	Now       func() time.Time
}

// New wires an engine over db. A nil cfg falls back to the defaults; log and
// m may be nil.
func New(db *sql.DB, cfg *config.Config, log *logger.Logger, m *metrics.Ledger) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logger.Nop()
	}
	r := repo.Repo{DB: db}
	w := ledger.New(db, log, m)
	if cfg.Ledger.MaxRetries > 0 {
		w.MaxRetries = cfg.Ledger.MaxRetries
	}
	return Engine{
		DB:        db,
		Repo:      r,
		Ledger:    w,
		Directory: r,
		Auth:      auth.Service{Repo: r, Moderators: cfg.Roles.Moderators},
		Config:    cfg,
		Metrics:   m,
		Log:       log,
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339Nano)
}

func (e Engine) logger() *logger.Logger {
	if e.Log == nil {
		return logger.Nop()
	}
	return e.Log
}

func newID() string { return uuid.NewString() }

func (e Engine) tiers() []scoring.TierBound {
	if e.Config == nil {
		return scoring.DefaultTiers
	}
	sorted := e.Config.SortedTiers()
	if len(sorted) == 0 {
		return scoring.DefaultTiers
	}
	out := make([]scoring.TierBound, 0, len(sorted))
	for _, t := range sorted {
		out = append(out, scoring.TierBound{Tier: domain.Tier(t.Name), MinPoints: t.MinPoints})
	}
	return out
}

// required trims v and rejects blanks with ErrInvalidInput.
func required(op, field, v string) (string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return "", domain.Reject(op, domain.ErrInvalidInput, "%s is required", field)
	}
	return v, nil
}

// notFound rewrites a bare store miss into a descriptive ActionError.
func notFound(err error, op, what, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		var ae *domain.ActionError
		if errors.As(err, &ae) {
			return err
		}
		return domain.NotFound(op, what, id)
	}
	return err
}

func (e Engine) isModerator(ctx context.Context, actor string) (bool, error) {
	return e.Auth.IsModerator(ctx, actor)
}
