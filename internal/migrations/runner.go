// Package migrations normalizes persisted shapes left behind by earlier
// releases. Migrations run once per world, during bootstrap, GM-only.
package migrations

import (
	"context"
	"fmt"
	"log"

	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
	"github.com/Sayshal/spell-book/internal/reporting"
)

// Deps is what a migration may touch.
type Deps struct {
	Host host.Host
}

// Result is one migration's outcome.
type Result struct {
	Processed int
	Updated   int
	Errors    []string
	Details   []string
}

// Migration is a named, idempotent world fixup.
type Migration struct {
	Key         string
	Version     int
	Description string
	Run         func(ctx context.Context, deps *Deps) (*Result, error)
}

// Runner executes registered migrations in order.
type Runner struct {
	host       host.Host
	reporter   reporting.Reporter
	migrations []Migration
}

// RunnerConfig holds configuration for the migration runner.
type RunnerConfig struct {
	Host     host.Host          // Required
	Reporter reporting.Reporter // Optional; digests are dropped when nil
}

// NewRunner creates a migration runner with the standard set registered.
func NewRunner(cfg *RunnerConfig) *Runner {
	if cfg == nil || cfg.Host == nil {
		panic("migration runner host is required")
	}

	r := &Runner{
		host:     cfg.Host,
		reporter: cfg.Reporter,
	}
	r.Register(FolderRouting())
	r.Register(OwnershipValidation())
	r.Register(NullCustomSpellList())
	return r
}

// Register appends a migration. Order of registration is order of execution.
func (r *Runner) Register(m Migration) {
	r.migrations = append(r.migrations, m)
}

// RunPending executes every migration without a completion marker. Only a GM
// may run migrations; each runs inside its own error boundary and a failure
// never blocks the ones after it.
func (r *Runner) RunPending(ctx context.Context, userID string) error {
	user, err := r.host.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.IsGM {
		return sberr.PermissionDenied("only a GM can run migrations")
	}

	deps := &Deps{Host: r.host}
	var digest []string

	for _, migration := range r.migrations {
		marker := completionMarker(migration.Key)
		if v, ok := r.host.GetSetting(ctx, marker); ok && v == "true" {
			continue
		}

		result, rerr := r.runOne(ctx, migration, deps)
		if rerr != nil {
			log.Printf("Migrations: %s failed: %v", migration.Key, rerr)
			digest = append(digest, fmt.Sprintf("%s: failed (%v)", migration.Key, rerr))
			continue
		}

		if serr := r.host.SetSetting(ctx, marker, "true"); serr != nil {
			log.Printf("Migrations: failed to mark %s complete: %v", migration.Key, serr)
		}

		line := fmt.Sprintf("%s: %d processed, %d updated", migration.Key, result.Processed, result.Updated)
		if len(result.Errors) > 0 {
			line += fmt.Sprintf(", %d errors", len(result.Errors))
		}
		digest = append(digest, line)
		log.Printf("Migrations: %s", line)
	}

	if r.reporter != nil && len(digest) > 0 {
		if serr := r.reporter.SendMigrationReport(ctx, digest); serr != nil {
			log.Printf("Migrations: failed to send digest: %v", serr)
		}
	}
	return nil
}

// runOne executes a migration behind a recover boundary so a panicking
// migration degrades to an error instead of killing the session.
func (r *Runner) runOne(ctx context.Context, migration Migration, deps *Deps) (result *Result, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = nil
			err = sberr.Internalf("migration '%s' panicked: %v", migration.Key, rec)
		}
	}()

	result, err = migration.Run(ctx, deps)
	if err != nil {
		return nil, err
	}
	if result == nil {
		result = &Result{}
	}
	return result, nil
}

func completionMarker(key string) string {
	return "migration:" + key + ":completed"
}
