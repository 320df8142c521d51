package migrate_test

import (
	"context"
	"testing"

	"tally/internal/db"
	"tally/internal/migrate"
)

func TestMigrateIsIdempotent(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()
	ctx := context.Background()

	if v, err := migrate.Current(ctx, conn); err != nil || v != 0 {
		t.Fatalf("fresh db version = %d, %v", v, err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
	latest, err := migrate.Latest()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	got, err := migrate.Current(ctx, conn)
	if err != nil {
		t.Fatalf("current: %v", err)
	}
	if got != latest {
		t.Fatalf("version %d, want %d", got, latest)
	}
	for _, table := range []string{"edges", "fundables", "contributions", "votables", "votes", "reservations", "participation", "events", "messages"} {
		var n int
		if err := conn.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&n); err != nil {
			t.Fatalf("lookup %s: %v", table, err)
		}
		if n != 1 {
			t.Fatalf("table %s missing", table)
		}
	}
}
