package session

import (
	"collab-docs-server/internal/domain"
	"collab-docs-server/internal/version"
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Participant is one user currently joined to a live editing session.
type Participant struct {
	UserID uint64 `json:"user_id"`
	Name   string `json:"name"`
}

// State is the authoritative in-memory state of a live document.
type State struct {
	DocumentID    uint64        `json:"document_id"`
	Title         string        `json:"title"`
	Content       string        `json:"content"`
	Version       uint64        `json:"version"`
	Collaborators []Participant `json:"collaborators"`
}

// docSession holds the live state of one document while at least one
// collaborator is joined. All access goes through the command loop: callers
// enqueue closures and the session goroutine runs them in arrival order, so
// the state needs no locks of its own.
type docSession struct {
	docID uint64

	commands chan func()
	closed   chan struct{}

	store    VersionStore
	debounce time.Duration

	// loop-owned state, never touched outside the command loop
	title        string
	content      string
	version      uint64
	closing      bool
	dirty        bool
	lastEditor   uint64
	participants map[uint64]string
	joinOrder    []uint64
	pending      *time.Timer
}

func newDocSession(doc *domain.Document, store VersionStore, debounce time.Duration) *docSession {
	return &docSession{
		docID:        doc.ID,
		commands:     make(chan func()),
		closed:       make(chan struct{}),
		store:        store,
		debounce:     debounce,
		title:        doc.Title,
		content:      doc.Content,
		version:      doc.CurrentVersion,
		participants: make(map[uint64]string),
	}
}

func (s *docSession) run() {
	for {
		select {
		case fn := <-s.commands:
			fn()
		case <-s.closed:
			return
		}
	}
}

// do runs fn on the session loop and waits for it to finish. Returns false
// if the session was torn down before fn could be scheduled.
func (s *docSession) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case s.commands <- func() { fn(); close(done) }:
	case <-s.closed:
		return false
	}
	<-done
	return true
}

// enqueue schedules fn without waiting; used by the debounce timer callback.
func (s *docSession) enqueue(fn func()) {
	select {
	case s.commands <- fn:
	case <-s.closed:
	}
}

func (s *docSession) close() {
	close(s.closed)
}

func (s *docSession) addParticipant(userID uint64, name string) {
	if _, ok := s.participants[userID]; !ok {
		s.joinOrder = append(s.joinOrder, userID)
	}
	s.participants[userID] = name
}

func (s *docSession) removeParticipant(userID uint64) {
	if _, ok := s.participants[userID]; !ok {
		return
	}
	delete(s.participants, userID)
	for i, id := range s.joinOrder {
		if id == userID {
			s.joinOrder = append(s.joinOrder[:i], s.joinOrder[i+1:]...)
			break
		}
	}
}

func (s *docSession) participantList() []Participant {
	list := make([]Participant, 0, len(s.joinOrder))
	for _, id := range s.joinOrder {
		list = append(list, Participant{UserID: id, Name: s.participants[id]})
	}
	return list
}

func (s *docSession) snapshotState() State {
	return State{
		DocumentID:    s.docID,
		Title:         s.title,
		Content:       s.content,
		Version:       s.version,
		Collaborators: s.participantList(),
	}
}

// applyEdit replaces the in-memory content outright (last-write-wins) and
// re-arms the auto-save debounce so rapid keystrokes persist as one version.
func (s *docSession) applyEdit(userID uint64, content string) {
	s.content = content
	s.lastEditor = userID
	s.dirty = true

	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = time.AfterFunc(s.debounce, func() {
		s.enqueue(s.autoSave)
	})
}

// autoSave runs on the loop when the debounce timer fires.
func (s *docSession) autoSave() {
	s.pending = nil
	s.persistIfDirty()
}

func (s *docSession) cancelDebounce() {
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
}

// flush cancels any pending timer and persists unsaved content; called on
// explicit saves and before teardown.
func (s *docSession) flush() {
	s.cancelDebounce()
	s.persistIfDirty()
}

func (s *docSession) persistIfDirty() {
	if !s.dirty {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	content := s.content
	v, err := s.store.CreateVersion(ctx, s.docID, &content, s.title, s.lastEditor, version.Options{
		IsAutoSave: true,
	})
	if err != nil {
		// the content stays dirty; the next timer or flush retries
		log.Error().Err(err).Uint64("document_id", s.docID).Msg("auto-save failed")
		return
	}

	s.version = v.Version
	s.dirty = false
}
