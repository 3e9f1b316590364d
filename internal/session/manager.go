package session

import (
	"collab-docs-server/internal/domain"
	"collab-docs-server/internal/errors"
	"collab-docs-server/internal/version"
	"context"
	"strings"
	"sync"
	"time"
)

// DocumentAccess is the visibility/edit authorization delegated to the
// document subsystem.
type DocumentAccess interface {
	AuthorizeView(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error)
	AuthorizeEdit(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error)
}

// VersionStore persists document versions.
type VersionStore interface {
	CreateVersion(ctx context.Context, docID uint64, content *string, title string, authorID uint64, opts version.Options) (*domain.DocumentVersion, error)
	Rollback(ctx context.Context, docID uint64, target uint64, reason string, authorID uint64) (*domain.DocumentVersion, error)
}

// Manager owns the registry of live document sessions. A session is created
// when the first collaborator joins and destroyed when the last one leaves.
// Sessions for different documents are fully independent; within one
// document every operation is serialized by the session's command loop.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uint64]*docSession

	docs     DocumentAccess
	store    VersionStore
	debounce time.Duration
}

func NewManager(docs DocumentAccess, store VersionStore, debounce time.Duration) *Manager {
	return &Manager{
		sessions: make(map[uint64]*docSession),
		docs:     docs,
		store:    store,
		debounce: debounce,
	}
}

// Join adds the user to the document's live session, creating the session
// from the persisted document if nobody is joined yet. Returns the
// authoritative state the newcomer should render. The registry mutex covers
// only the map lookup: the session command runs with the mutex released, so
// one document's session never stalls another's.
func (m *Manager) Join(ctx context.Context, docID uint64, ident domain.Identity) (*State, error) {
	doc, err := m.docs.AuthorizeView(ctx, docID, ident)
	if err != nil {
		return nil, err
	}

	for {
		m.mu.Lock()
		s, ok := m.sessions[docID]
		if !ok {
			s = newDocSession(doc, m.store, m.debounce)
			m.sessions[docID] = s
			go s.run()
		}
		m.mu.Unlock()

		var state State
		joined := false
		alive := s.do(func() {
			if s.closing {
				return
			}
			s.addParticipant(ident.UserID, ident.Name)
			state = s.snapshotState()
			joined = true
		})
		if alive && joined {
			return &state, nil
		}

		// lost a race with the last leave; drop the stale entry and retry
		m.mu.Lock()
		if m.sessions[docID] == s {
			delete(m.sessions, docID)
		}
		m.mu.Unlock()
	}
}

// Leave removes the user from the session and returns the remaining
// participants. The last leave flushes any pending debounced save and tears
// the session down. The flush (a synchronous store write) runs outside the
// registry mutex; the closing flag keeps a concurrent Join from slipping
// into the session between the flush and the teardown.
func (m *Manager) Leave(docID uint64, userID uint64) []Participant {
	m.mu.RLock()
	s, ok := m.sessions[docID]
	m.mu.RUnlock()

	if !ok {
		return nil
	}

	var remaining []Participant
	alive := s.do(func() {
		s.removeParticipant(userID)
		remaining = s.participantList()
		if len(remaining) == 0 {
			s.closing = true
			s.flush()
		}
	})
	if !alive {
		return nil
	}

	if len(remaining) == 0 {
		m.mu.Lock()
		if m.sessions[docID] == s {
			delete(m.sessions, docID)
		}
		m.mu.Unlock()
		s.close()
	}

	return remaining
}

// SubmitEdit accepts a full-content update from a joined collaborator.
// Conflicting concurrent edits resolve by last-write-wins: the arriving
// content replaces the in-memory state outright, no merge is attempted.
func (m *Manager) SubmitEdit(docID uint64, userID uint64, content string) (*State, error) {
	m.mu.RLock()
	s, ok := m.sessions[docID]
	m.mu.RUnlock()

	if !ok {
		return nil, errors.Forbidden("Join the document session before editing", nil)
	}

	var state State
	joined := false
	alive := s.do(func() {
		if _, ok := s.participants[userID]; !ok {
			return
		}
		joined = true
		s.applyEdit(userID, content)
		state = s.snapshotState()
	})

	if !alive || !joined {
		return nil, errors.Forbidden("Join the document session before editing", nil)
	}

	return &state, nil
}

// RequestSnapshot persists a named snapshot immediately, bypassing the
// debounce. Works with or without a live session: with one, the snapshot
// captures the in-memory authoritative content and cancels any pending
// auto-save; without one, it captures the persisted document content.
func (m *Manager) RequestSnapshot(ctx context.Context, docID uint64, ident domain.Identity, name, description string, tags []string) (*domain.DocumentVersion, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.UnprocessableEntity("Snapshot name can't be blank", nil)
	}

	doc, err := m.docs.AuthorizeEdit(ctx, docID, ident)
	if err != nil {
		return nil, err
	}

	opts := version.Options{
		IsSnapshot:          true,
		SnapshotName:        name,
		SnapshotDescription: description,
		Tags:                tags,
	}

	m.mu.RLock()
	s, ok := m.sessions[docID]
	m.mu.RUnlock()

	if !ok {
		return m.store.CreateVersion(ctx, docID, &doc.Content, doc.Title, ident.UserID, opts)
	}

	var v *domain.DocumentVersion
	var createErr error
	alive := s.do(func() {
		s.cancelDebounce()
		content := s.content
		v, createErr = m.store.CreateVersion(ctx, docID, &content, s.title, ident.UserID, opts)
		if createErr == nil {
			s.version = v.Version
			s.dirty = false
		}
	})
	if !alive {
		return m.store.CreateVersion(ctx, docID, &doc.Content, doc.Title, ident.UserID, opts)
	}

	return v, createErr
}

// RequestRollback restores an older version's content as a new version. Like
// RequestSnapshot it runs through the live session when one exists, so the
// in-memory state picks up the restored content immediately and joiners and
// broadcasts never see pre-rollback state.
func (m *Manager) RequestRollback(ctx context.Context, docID uint64, ident domain.Identity, target uint64, reason string) (*domain.DocumentVersion, error) {
	if _, err := m.docs.AuthorizeEdit(ctx, docID, ident); err != nil {
		return nil, err
	}

	m.mu.RLock()
	s, ok := m.sessions[docID]
	m.mu.RUnlock()

	if !ok {
		return m.store.Rollback(ctx, docID, target, reason, ident.UserID)
	}

	var v *domain.DocumentVersion
	var rollErr error
	alive := s.do(func() {
		s.cancelDebounce()
		v, rollErr = m.store.Rollback(ctx, docID, target, reason, ident.UserID)
		if rollErr == nil {
			s.content = v.Content
			s.title = v.Title
			s.version = v.Version
			s.dirty = false
		}
	})
	if !alive {
		return m.store.Rollback(ctx, docID, target, reason, ident.UserID)
	}

	return v, rollErr
}

// RefreshState pushes externally persisted content (an explicit REST content
// update) into the live session, if one exists. Any pending auto-save is
// cancelled: the external write is the newer one under last-write-wins.
func (m *Manager) RefreshState(docID uint64, content, title string, version uint64) {
	m.mu.RLock()
	s, ok := m.sessions[docID]
	m.mu.RUnlock()

	if !ok {
		return
	}

	s.do(func() {
		s.cancelDebounce()
		s.content = content
		s.title = title
		s.version = version
		s.dirty = false
	})
}

// Participants returns the active collaborator set, nil when nobody is joined.
func (m *Manager) Participants(docID uint64) []Participant {
	m.mu.RLock()
	s, ok := m.sessions[docID]
	m.mu.RUnlock()

	if !ok {
		return nil
	}

	var list []Participant
	s.do(func() {
		list = s.participantList()
	})
	return list
}

// Shutdown flushes every live session's pending save and tears them down.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*docSession, 0, len(m.sessions))
	for docID, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, docID)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		s.do(s.flush)
		s.close()
	}
}
