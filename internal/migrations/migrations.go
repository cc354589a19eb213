package migrations

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	"github.com/Sayshal/spell-book/internal/host"
)

// listNamePrefixes are the legacy type prefixes stripped from list names.
var listNamePrefixes = []string{"Custom - ", "Merged - ", "Modified - "}

// FolderRouting moves spell-list journals under the spell-list folder and
// strips legacy type prefixes from list page names.
func FolderRouting() Migration {
	return Migration{
		Key:         "folder-routing",
		Version:     1,
		Description: "Route spell list journals into the typed folder and clean list names",
		Run:         runFolderRouting,
	}
}

func runFolderRouting(ctx context.Context, deps *Deps) (*Result, error) {
	result := &Result{}

	folders, err := deps.Host.ListFolders(ctx)
	if err != nil {
		return nil, err
	}
	folderID := ""
	for _, folder := range folders {
		if folder.Flags.SpellListFolder {
			folderID = folder.ID
			break
		}
	}
	if folderID == "" {
		folderID, err = deps.Host.CreateFolder(ctx, &host.Folder{
			Name:  "Spell Lists",
			Flags: host.FolderFlags{SpellListFolder: true},
		})
		if err != nil {
			return nil, err
		}
	}

	journals, err := deps.Host.ListJournals(ctx)
	if err != nil {
		return nil, err
	}

	for _, journal := range journals {
		if !journal.Flags.SpellListJournal {
			continue
		}
		result.Processed++

		if journal.FolderID != folderID {
			if merr := deps.Host.MoveJournalToFolder(ctx, journal.ID, folderID); merr != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("journal %s: %v", journal.ID, merr))
				continue
			}
			result.Updated++
			result.Details = append(result.Details, "moved journal "+journal.Name)
		}

		pages, perr := deps.Host.ListPages(ctx, journal.ID)
		if perr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("journal %s pages: %v", journal.ID, perr))
			continue
		}
		for _, page := range pages {
			if !page.Flags.SpellList {
				continue
			}
			result.Processed++
			cleaned := stripListPrefix(page.Name)
			if cleaned == page.Name {
				continue
			}
			page.Name = cleaned
			if uerr := deps.Host.UpdatePage(ctx, journal.ID, page); uerr != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("page %s: %v", page.ID, uerr))
				continue
			}
			result.Updated++
		}
	}
	return result, nil
}

func stripListPrefix(name string) string {
	for _, prefix := range listNamePrefixes {
		if strings.HasPrefix(name, prefix) {
			return strings.TrimPrefix(name, prefix)
		}
	}
	return name
}

// OwnershipValidation enforces the ownership matrices on the user-data
// journal, its pages, and spell-list journals.
func OwnershipValidation() Migration {
	return Migration{
		Key:         "ownership-validation",
		Version:     1,
		Description: "Repair ownership on engine-owned journals and pages",
		Run:         runOwnershipValidation,
	}
}

func runOwnershipValidation(ctx context.Context, deps *Deps) (*Result, error) {
	result := &Result{}

	users, err := deps.Host.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	var gmIDs []string
	for _, user := range users {
		if user.IsGM {
			gmIDs = append(gmIDs, user.ID)
		}
	}

	journals, err := deps.Host.ListJournals(ctx)
	if err != nil {
		return nil, err
	}

	for _, journal := range journals {
		switch {
		case journal.Flags.UserDataJournal:
			result.Processed++
			want := ownershipMatrix(host.OwnershipNone, gmIDs, "")
			if fixOwnership(&journal.Ownership, want) {
				if uerr := deps.Host.UpdateJournal(ctx, journal); uerr != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("journal %s: %v", journal.ID, uerr))
					continue
				}
				result.Updated++
			}

			pages, perr := deps.Host.ListPages(ctx, journal.ID)
			if perr != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("journal %s pages: %v", journal.ID, perr))
				continue
			}
			for _, page := range pages {
				if !page.Flags.UserData || page.Flags.UserID == "" {
					continue
				}
				result.Processed++
				wantPage := ownershipMatrix(host.OwnershipNone, gmIDs, page.Flags.UserID)
				if fixOwnership(&page.Ownership, wantPage) {
					if uerr := deps.Host.UpdatePage(ctx, journal.ID, page); uerr != nil {
						result.Errors = append(result.Errors, fmt.Sprintf("page %s: %v", page.ID, uerr))
						continue
					}
					result.Updated++
				}
			}

		case journal.Flags.SpellListJournal:
			result.Processed++
			want := ownershipMatrix(host.OwnershipLimited, gmIDs, "")
			if fixOwnership(&journal.Ownership, want) {
				if uerr := deps.Host.UpdateJournal(ctx, journal); uerr != nil {
					result.Errors = append(result.Errors, fmt.Sprintf("journal %s: %v", journal.ID, uerr))
					continue
				}
				result.Updated++
			}
		}
	}
	return result, nil
}

func ownershipMatrix(defaultLevel host.OwnershipLevel, gmIDs []string, ownerUserID string) host.OwnershipMap {
	out := host.OwnershipMap{host.OwnershipDefaultKey: defaultLevel}
	for _, id := range gmIDs {
		out[id] = host.OwnershipOwner
	}
	if ownerUserID != "" {
		out[ownerUserID] = host.OwnershipOwner
	}
	return out
}

// fixOwnership raises or sets required entries, leaving extra grants alone.
// Reports whether anything changed.
func fixOwnership(current *host.OwnershipMap, want host.OwnershipMap) bool {
	if *current == nil {
		*current = host.OwnershipMap{}
	}
	changed := false
	for key, level := range want {
		if (*current)[key] != level {
			(*current)[key] = level
			changed = true
		}
	}
	return changed
}

// NullCustomSpellList rewrites customSpellList: null to an empty list in
// every persisted class rule record.
func NullCustomSpellList() Migration {
	return Migration{
		Key:         "null-custom-spell-list",
		Version:     1,
		Description: "Normalize customSpellList: null to [] in class rule records",
		Run:         runNullCustomSpellList,
	}
}

func runNullCustomSpellList(ctx context.Context, deps *Deps) (*Result, error) {
	result := &Result{}

	actors, err := deps.Host.ListActors(ctx)
	if err != nil {
		return nil, err
	}

	for _, actor := range actors {
		stored := make(map[string]json.RawMessage)
		set, gerr := deps.Host.GetActorFlag(ctx, actor.ID, spellbook.FlagClassRules, &stored)
		if gerr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("actor %s: %v", actor.ID, gerr))
			continue
		}
		if !set || len(stored) == 0 {
			continue
		}
		result.Processed++

		dirty := false
		for classID, raw := range stored {
			var record map[string]json.RawMessage
			if uerr := json.Unmarshal(raw, &record); uerr != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("actor %s class %s: %v", actor.ID, classID, uerr))
				continue
			}
			if value, ok := record["customSpellList"]; !ok || string(value) != "null" {
				continue
			}
			record["customSpellList"] = json.RawMessage("[]")
			fixed, merr := json.Marshal(record)
			if merr != nil {
				result.Errors = append(result.Errors, fmt.Sprintf("actor %s class %s: %v", actor.ID, classID, merr))
				continue
			}
			stored[classID] = fixed
			dirty = true
		}
		if !dirty {
			continue
		}

		if serr := deps.Host.SetActorFlag(ctx, actor.ID, spellbook.FlagClassRules, stored); serr != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("actor %s: %v", actor.ID, serr))
			continue
		}
		result.Updated++
		result.Details = append(result.Details, "normalized rules on "+actor.Name)
	}
	return result, nil
}
