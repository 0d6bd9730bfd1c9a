package postgres_test

import (
	"context"
	"os"
	"testing"

	"github.com/kyashrathore/formlink-sub001/internal/adapter/postgres"
)

// TestMigrationUpDown applies, rolls back and re-applies every migration so
// each Down section is exercised.
func TestMigrationUpDown(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("requires DATABASE_URL")
	}
	ctx := context.Background()
	const latest = 1

	steps := []struct {
		name string
		run  func() error
		want int64
	}{
		{"up", func() error { return postgres.RunMigrations(ctx, dsn) }, latest},
		{"down", func() error { return postgres.RollbackMigrations(ctx, dsn, latest) }, 0},
		{"re-up", func() error { return postgres.RunMigrations(ctx, dsn) }, latest},
	}
	for _, s := range steps {
		if err := s.run(); err != nil {
			t.Fatalf("%s: %v", s.name, err)
		}
		v, err := postgres.MigrationVersion(ctx, dsn)
		if err != nil {
			t.Fatalf("version after %s: %v", s.name, err)
		}
		if v != s.want {
			t.Fatalf("version after %s = %d, want %d", s.name, v, s.want)
		}
	}
}
