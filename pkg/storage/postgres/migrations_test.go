package postgres

import (
	"testing"
	"testing/fstest"
)

func TestPendingMigrationsOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/010_later.sql":  {Data: []byte("SELECT 10")},
		"migrations/002_second.sql": {Data: []byte("SELECT 2")},
		"migrations/001_first.sql":  {Data: []byte("SELECT 1")},
		"migrations/notes.sql":      {Data: []byte("-- ignored")},
		"migrations/abc_bad.sql":    {Data: []byte("-- ignored")},
	}
	got, err := pendingMigrations(fsys)
	if err != nil {
		t.Fatal(err)
	}
	want := []int{1, 2, 10}
	if len(got) != len(want) {
		t.Fatalf("got %d migrations, want %d: %+v", len(got), len(want), got)
	}
	for i, m := range got {
		if m.version != want[i] {
			t.Errorf("migration %d version = %d, want %d", i, m.version, want[i])
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := pendingMigrations(migrationFiles)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) < 2 || got[0].name != "migrations/001_create_analyses.sql" {
		t.Errorf("embedded migrations = %+v", got)
	}
}
