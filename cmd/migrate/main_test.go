package main

import (
	"context"
	"errors"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

func TestLoadMigrations(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatalf("unexpected error loading embedded migrations: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "create_signal_runs" {
		t.Fatalf("unexpected first migration %d %s", migrations[0].Version, migrations[0].Name)
	}
	if migrations[1].Version != 2 || !strings.Contains(migrations[1].UpSQL, "signal_rows") {
		t.Fatalf("unexpected second migration %+v", migrations[1])
	}
}

func TestLoadMigrationsRejectsBadSets(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"migrations/1_Create.up.sql": {Data: []byte("SELECT 1")},
		},
		"missing down": {
			"migrations/1_a.up.sql": {Data: []byte("SELECT 1")},
		},
		"empty file": {
			"migrations/1_a.up.sql":   {Data: []byte("  ")},
			"migrations/1_a.down.sql": {Data: []byte("SELECT 1")},
		},
		"conflicting names": {
			"migrations/1_a.up.sql":   {Data: []byte("SELECT 1")},
			"migrations/1_b.down.sql": {Data: []byte("SELECT 1")},
		},
		"empty dir": {},
	}
	for name, fsys := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadMigrations(fsys); err == nil {
				t.Fatal("expected an error")
			}
		})
	}
}

func TestParseSteps(t *testing.T) {
	if n, err := parseSteps(nil); err != nil || n != 1 {
		t.Fatalf("default steps: %d %v", n, err)
	}
	if n, err := parseSteps([]string{"3"}); err != nil || n != 3 {
		t.Fatalf("explicit steps: %d %v", n, err)
	}
	for _, bad := range []string{"0", "-1", "x"} {
		if _, err := parseSteps([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}
}

type fakeRows struct {
	pgx.Rows
	versions []int64
	pos      int
}

func (r *fakeRows) Next() bool {
	r.pos++
	return r.pos <= len(r.versions)
}
func (r *fakeRows) Scan(dest ...any) error {
	*dest[0].(*int64) = r.versions[r.pos-1]
	return nil
}
func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Close()     {}

type fakeRow struct {
	err     error
	version int64
	name    string
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*dest[0].(*int64) = r.version
	*dest[1].(*string) = r.name
	return nil
}

type fakeTx struct {
	pgx.Tx
	db *fakeDB
}

func (tx *fakeTx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	if tx.db.failOn != "" && strings.Contains(sql, tx.db.failOn) {
		return pgconn.CommandTag{}, errors.New("boom")
	}
	tx.db.txExecs = append(tx.db.txExecs, sql)
	return pgconn.CommandTag{}, nil
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.db.commits++
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	tx.db.rollbacks++
	return nil
}

type fakeDB struct {
	applied   []int64
	row       fakeRow
	failOn    string
	txExecs   []string
	commits   int
	rollbacks int
}

func (db *fakeDB) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (db *fakeDB) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return &fakeRows{versions: db.applied}, nil
}
func (db *fakeDB) QueryRow(context.Context, string, ...any) pgx.Row { return db.row }
func (db *fakeDB) Begin(context.Context) (pgx.Tx, error)            { return &fakeTx{db: db}, nil }

func TestApplyUpSkipsAppliedVersions(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatal(err)
	}
	db := &fakeDB{applied: []int64{1}}

	n, err := applyUp(context.Background(), db, migrations)
	if err != nil {
		t.Fatalf("applyUp: %v", err)
	}
	if n != 1 || db.commits != 1 {
		t.Fatalf("expected one applied migration, got n=%d commits=%d", n, db.commits)
	}
	if !strings.Contains(db.txExecs[0], "signal_rows") {
		t.Fatalf("expected version 2 to run, got %q", db.txExecs[0])
	}
}

func TestApplyUpRollsBackOnFailure(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatal(err)
	}
	db := &fakeDB{failOn: "INSERT INTO schema_migrations"}

	n, err := applyUp(context.Background(), db, migrations)
	if err == nil || n != 0 {
		t.Fatalf("expected failure before any commit, got n=%d err=%v", n, err)
	}
	if db.rollbacks != 1 || db.commits != 0 {
		t.Fatalf("expected a rollback, got rollbacks=%d commits=%d", db.rollbacks, db.commits)
	}
}

func TestApplyDownUnknownVersion(t *testing.T) {
	migrations, err := loadMigrations(migrationsFS)
	if err != nil {
		t.Fatal(err)
	}
	db := &fakeDB{applied: []int64{9}}

	if _, err := applyDown(context.Background(), db, migrations, 1); err == nil {
		t.Fatal("expected error for a version without source")
	}
}

func TestRunVersionWithNothingApplied(t *testing.T) {
	db := &fakeDB{row: fakeRow{err: pgx.ErrNoRows}}
	if err := run(context.Background(), db, []string{cmdVersion}, zerolog.Nop()); err != nil {
		t.Fatalf("run version: %v", err)
	}
	if err := run(context.Background(), db, []string{"sideways"}, zerolog.Nop()); err == nil {
		t.Fatal("expected unknown command error")
	}
}
