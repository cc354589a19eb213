package store

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/Sayshal/spell-book/internal/domain/spellbook"
	sberr "github.com/Sayshal/spell-book/internal/errors"
	"github.com/Sayshal/spell-book/internal/host"
)

const (
	userDataFolderName  = "Spell Book"
	userDataJournalName = "User Spell Data"
	introPageName       = "About This Journal"
)

const introPageContent = `<h1>User Spell Data</h1>
<p>Each page in this journal stores one player's spell notes, favorites, and
usage statistics. Pages are maintained automatically; manual edits to the
tables are preserved.</p>`

// EnsureDocuments creates the folder, journal, intro page, and one page per
// non-GM user when missing. Safe to run every session.
func (s *service) EnsureDocuments(ctx context.Context) error {
	users, err := s.host.ListUsers(ctx)
	if err != nil {
		return sberr.Wrap(err, "failed to list users")
	}

	gmIDs := make([]string, 0, 1)
	for _, u := range users {
		if u.IsGM {
			gmIDs = append(gmIDs, u.ID)
		}
	}

	folderID, err := s.ensureFolder(ctx)
	if err != nil {
		return err
	}

	journalID, err := s.ensureJournal(ctx, folderID, gmIDs)
	if err != nil {
		return err
	}

	pages, err := s.host.ListPages(ctx, journalID)
	if err != nil {
		return err
	}

	havePage := make(map[string]bool)
	haveIntro := false
	for _, page := range pages {
		if page.Flags.IntroPage {
			haveIntro = true
		}
		if page.Flags.UserData && page.Flags.UserID != "" {
			havePage[page.Flags.UserID] = true
		}
	}

	if !haveIntro {
		intro := &host.JournalPage{
			Name:      introPageName,
			Content:   introPageContent,
			Flags:     host.PageFlags{IntroPage: true},
			Ownership: journalOwnership(gmIDs),
		}
		if _, err := s.host.CreatePage(ctx, journalID, intro); err != nil {
			return sberr.Wrap(err, "failed to create intro page")
		}
	}

	// Page creation fans out; each user's page is independent.
	g, gctx := errgroup.WithContext(ctx)
	for _, user := range users {
		if user.IsGM || havePage[user.ID] {
			continue
		}
		user := user
		g.Go(func() error {
			return s.createUserPage(gctx, journalID, user, gmIDs)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Printf("SpellDataStore: documents ensured (journal %s, %d users)", journalID, len(users))
	return nil
}

func (s *service) ensureFolder(ctx context.Context) (string, error) {
	s.mu.RLock()
	if s.folderID != "" {
		id := s.folderID
		s.mu.RUnlock()
		return id, nil
	}
	s.mu.RUnlock()

	folders, err := s.host.ListFolders(ctx)
	if err != nil {
		return "", sberr.Wrap(err, "failed to list folders")
	}
	for _, folder := range folders {
		if folder.Flags.UserDataFolder {
			s.setFolderID(folder.ID)
			return folder.ID, nil
		}
	}

	id, err := s.host.CreateFolder(ctx, &host.Folder{
		Name:  userDataFolderName,
		Flags: host.FolderFlags{UserDataFolder: true},
	})
	if err != nil {
		return "", sberr.Wrap(err, "failed to create user data folder")
	}
	s.setFolderID(id)
	return id, nil
}

func (s *service) ensureJournal(ctx context.Context, folderID string, gmIDs []string) (string, error) {
	journalID, err := s.findJournal(ctx)
	if err == nil {
		return journalID, nil
	}
	if !sberr.IsNotFound(err) {
		return "", err
	}

	id, err := s.host.CreateJournal(ctx, &host.JournalEntry{
		Name:      userDataJournalName,
		FolderID:  folderID,
		Flags:     host.EntryFlags{UserDataJournal: true},
		Ownership: journalOwnership(gmIDs),
	})
	if err != nil {
		return "", sberr.Wrap(err, "failed to create user data journal")
	}

	s.mu.Lock()
	s.journalID = id
	s.mu.Unlock()
	return id, nil
}

func (s *service) createUserPage(ctx context.Context, journalID string, user *host.User, gmIDs []string) error {
	doc, err := ParseDocument("")
	if err != nil {
		return err
	}
	doc.SetSchemaVersion(spellbook.UserDataSchemaVersion)
	content, err := doc.Render()
	if err != nil {
		return err
	}

	page := &host.JournalPage{
		Name:      user.Name,
		Content:   content,
		Flags:     host.PageFlags{UserData: true, UserID: user.ID, SchemaVersion: spellbook.UserDataSchemaVersion},
		Ownership: userPageOwnership(user.ID, gmIDs),
	}
	if _, err := s.host.CreatePage(ctx, journalID, page); err != nil {
		return sberr.Wrapf(err, "failed to create user data page for '%s'", user.ID)
	}

	log.Printf("SpellDataStore: created user data page for %s", user.Name)
	return nil
}

func (s *service) setFolderID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.folderID = id
}

// journalOwnership: GMs own, everyone else sees nothing.
func journalOwnership(gmIDs []string) host.OwnershipMap {
	out := host.OwnershipMap{host.OwnershipDefaultKey: host.OwnershipNone}
	for _, id := range gmIDs {
		out[id] = host.OwnershipOwner
	}
	return out
}

// userPageOwnership: the user and GMs own, everyone else sees nothing.
func userPageOwnership(userID string, gmIDs []string) host.OwnershipMap {
	out := journalOwnership(gmIDs)
	out[userID] = host.OwnershipOwner
	return out
}
