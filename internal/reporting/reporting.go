// Package reporting turns commit change summaries and migration results into
// GM-whispered chat digests.
package reporting

import (
	"context"
	"fmt"
	"html"
	"log"
	"sort"
	"strings"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	hostpkg "github.com/Sayshal/spell-book/internal/host"
)

//go:generate mockgen -destination=mock/mock_reporting.go -package=mockreporting -source=reporting.go

// ClassChange summarizes one class's preparation delta in a commit.
type ClassChange struct {
	Added           []string // spell names
	Removed         []string // spell names
	CurrentCantrips int
	MaxCantrips     int
	CurrentSpells   int
	MaxSpells       int
}

// overLimit reports whether either counter exceeds its ceiling.
func (c *ClassChange) overLimit() bool {
	return c.CurrentCantrips > c.MaxCantrips || c.CurrentSpells > c.MaxSpells
}

// empty reports whether the class contributes nothing to the digest.
func (c *ClassChange) empty() bool {
	return len(c.Added) == 0 && len(c.Removed) == 0 && !c.overLimit()
}

// ChangeSummary is one commit's worth of preparation changes.
type ChangeSummary struct {
	ActorName    string
	ClassChanges map[string]*ClassChange
}

// Reporter emits engine digests to chat.
type Reporter interface {
	// SendPreparationReport whispers a commit digest to GMs. Summaries with
	// nothing to report are dropped silently.
	SendPreparationReport(ctx context.Context, summary *ChangeSummary) error

	// SendMigrationReport whispers a migration digest to GMs
	SendMigrationReport(ctx context.Context, lines []string) error
}

// reporter implements Reporter.
type reporter struct {
	host hostpkg.Host
}

// Config holds configuration for the reporter.
type Config struct {
	Host hostpkg.Host // Required
}

// New creates a reporter.
func New(cfg *Config) Reporter {
	if cfg == nil || cfg.Host == nil {
		panic("reporter host is required")
	}
	return &reporter{host: cfg.Host}
}

// SendPreparationReport whispers a commit digest to GMs.
func (r *reporter) SendPreparationReport(ctx context.Context, summary *ChangeSummary) error {
	if summary == nil {
		return nil
	}

	content := BuildDigest(summary)
	if content == "" {
		return nil
	}

	gmIDs, err := r.gmUserIDs(ctx)
	if err != nil {
		return err
	}
	if len(gmIDs) == 0 {
		log.Printf("Reporter: no GM users, dropping preparation report for %s", summary.ActorName)
		return nil
	}

	return r.host.EmitChat(ctx, &hostpkg.ChatMessage{
		Content:   content,
		WhisperTo: gmIDs,
		Flags:     hostpkg.ChatFlags{MessageType: spellbook.MessageTypeUpdateReport},
	})
}

// SendMigrationReport whispers a migration digest to GMs.
func (r *reporter) SendMigrationReport(ctx context.Context, lines []string) error {
	if len(lines) == 0 {
		return nil
	}

	gmIDs, err := r.gmUserIDs(ctx)
	if err != nil {
		return err
	}
	if len(gmIDs) == 0 {
		return nil
	}

	var b strings.Builder
	b.WriteString("<h3>Spell Book Migrations</h3><ul>")
	for _, line := range lines {
		b.WriteString("<li>")
		b.WriteString(html.EscapeString(line))
		b.WriteString("</li>")
	}
	b.WriteString("</ul>")

	return r.host.EmitChat(ctx, &hostpkg.ChatMessage{
		Content:   b.String(),
		WhisperTo: gmIDs,
		Flags:     hostpkg.ChatFlags{MessageType: spellbook.MessageTypeMigrationReport},
	})
}

// BuildDigest renders a change summary as HTML. Returns "" when every class
// is empty.
func BuildDigest(summary *ChangeSummary) string {
	classIDs := make([]string, 0, len(summary.ClassChanges))
	for classID, change := range summary.ClassChanges {
		if change != nil && !change.empty() {
			classIDs = append(classIDs, classID)
		}
	}
	if len(classIDs) == 0 {
		return ""
	}
	sort.Strings(classIDs)

	var b strings.Builder
	fmt.Fprintf(&b, "<h3>%s: Spell Preparation Update</h3>", html.EscapeString(summary.ActorName))
	for _, classID := range classIDs {
		change := summary.ClassChanges[classID]
		fmt.Fprintf(&b, "<h4>%s</h4><ul>", html.EscapeString(classID))
		if len(change.Added) > 0 {
			fmt.Fprintf(&b, "<li>Prepared: %s</li>", html.EscapeString(strings.Join(change.Added, ", ")))
		}
		if len(change.Removed) > 0 {
			fmt.Fprintf(&b, "<li>Unprepared: %s</li>", html.EscapeString(strings.Join(change.Removed, ", ")))
		}
		if over := change.CurrentCantrips - change.MaxCantrips; over > 0 {
			fmt.Fprintf(&b, "<li>Cantrips over limit by %d (%d/%d)</li>", over, change.CurrentCantrips, change.MaxCantrips)
		}
		if over := change.CurrentSpells - change.MaxSpells; over > 0 {
			fmt.Fprintf(&b, "<li>Spells over limit by %d (%d/%d)</li>", over, change.CurrentSpells, change.MaxSpells)
		}
		b.WriteString("</ul>")
	}
	return b.String()
}

func (r *reporter) gmUserIDs(ctx context.Context) ([]string, error) {
	users, err := r.host.ListUsers(ctx)
	if err != nil {
		return nil, sberr.Wrap(err, "failed to list users")
	}
	gmIDs := make([]string, 0, 1)
	for _, user := range users {
		if user.IsGM {
			gmIDs = append(gmIDs, user.ID)
		}
	}
	return gmIDs, nil
}
