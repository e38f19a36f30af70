package postgres

import (
	"fmt"
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_a;"),
		},
		"sql/migrations/0002_more.up.sql": {
			Data: []byte("CREATE TABLE test_b (id INT);"),
		},
		"sql/migrations/0002_more.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_b;"),
		},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Name != "more" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoadMigrationsFromFS_MissingDown(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "both up and down") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsFromFS_InvalidFilename(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/not_a_migration.sql": {
			Data: []byte("SELECT 1;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for invalid migration file name")
	}
}

func TestLoadMigrationsFromFS_EmptyFile(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("   \n"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for empty migration file body")
	}
}

func TestEmbeddedMigrationsAreConsistent(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("embedded migrations must load: %v", err)
	}
	if len(migrations) != 5 {
		t.Fatalf("expected 5 embedded migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != int64(i+1) {
			t.Fatalf("migration versions must be contiguous, got %d at %d", m.Version, i)
		}
	}
	if !strings.Contains(migrations[1].UpSQL, "uq_transactions_return_of") {
		t.Fatal("transactions migration must create the return uniqueness index")
	}
}

func TestPlanForMarksApplied(t *testing.T) {
	t.Parallel()

	migrations := []migration{{Version: 1, Name: "actions"}, {Version: 2, Name: "transactions"}}
	plan := planFor(migrations, map[int64]bool{1: true})
	if len(plan) != 2 || !plan[0].Applied || plan[1].Applied {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}

func TestMigrationQueue(t *testing.T) {
	t.Parallel()

	migrations := []migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}
	applied := map[int64]bool{1: true, 2: true}

	versions := func(queue []migration) []int64 {
		out := make([]int64, 0, len(queue))
		for _, m := range queue {
			out = append(out, m.Version)
		}
		return out
	}

	cases := []struct {
		name      string
		direction migrationDirection
		applied   map[int64]bool
		steps     int
		want      []int64
	}{
		{name: "up all pending", direction: migrationUp, applied: applied, want: []int64{3}},
		{name: "up from scratch limited", direction: migrationUp, applied: map[int64]bool{}, steps: 2, want: []int64{1, 2}},
		{name: "down newest first", direction: migrationDown, applied: applied, steps: 5, want: []int64{2, 1}},
		{name: "down one", direction: migrationDown, applied: applied, steps: 1, want: []int64{2}},
		{name: "down nothing applied", direction: migrationDown, applied: map[int64]bool{}, steps: 1, want: []int64{}},
	}
	for _, tc := range cases {
		queue, err := migrationQueue(migrations, tc.applied, tc.direction, tc.steps)
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tc.name, err)
		}
		if got := versions(queue); fmt.Sprint(got) != fmt.Sprint(tc.want) {
			t.Fatalf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}

	if _, err := migrationQueue(migrations, map[int64]bool{9: true}, migrationDown, 1); err == nil {
		t.Fatal("expected error for unknown applied version")
	}
}
