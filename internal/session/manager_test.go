package session

import (
	"collab-docs-server/internal/domain"
	apiError "collab-docs-server/internal/errors"
	"collab-docs-server/internal/version"
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAccess serves a single document and mirrors the document service's
// authorization errors.
type fakeAccess struct {
	doc    *domain.Document
	denyID uint64 // user denied access
}

func (f *fakeAccess) AuthorizeView(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error) {
	if f.doc == nil || f.doc.ID != docID {
		return nil, apiError.NotFound("Document not found", nil)
	}
	if ident.UserID == f.denyID {
		return nil, apiError.Forbidden("You don't have access to this document", nil)
	}
	return f.doc, nil
}

func (f *fakeAccess) AuthorizeEdit(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error) {
	return f.AuthorizeView(ctx, docID, ident)
}

// fakeStore records CreateVersion calls and hands out sequence numbers.
type fakeStore struct {
	mu      sync.Mutex
	next    uint64
	created []domain.DocumentVersion
}

func newFakeStore(current uint64) *fakeStore {
	return &fakeStore{next: current}
}

func (f *fakeStore) CreateVersion(ctx context.Context, docID uint64, content *string, title string, authorID uint64, opts version.Options) (*domain.DocumentVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	v := domain.DocumentVersion{
		DocumentID:   docID,
		Version:      f.next,
		Content:      *content,
		Title:        title,
		AuthorID:     authorID,
		IsSnapshot:   opts.IsSnapshot,
		SnapshotName: opts.SnapshotName,
		IsAutoSave:   opts.IsAutoSave,
	}
	f.created = append(f.created, v)
	return &v, nil
}

func (f *fakeStore) Rollback(ctx context.Context, docID uint64, target uint64, reason string, authorID uint64) (*domain.DocumentVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.next++
	v := domain.DocumentVersion{
		DocumentID:     docID,
		Version:        f.next,
		Content:        "restored content",
		Title:          "Design notes",
		AuthorID:       authorID,
		RollbackOf:     &target,
		RollbackReason: reason,
	}
	f.created = append(f.created, v)
	return &v, nil
}

func (f *fakeStore) calls() []domain.DocumentVersion {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.DocumentVersion, len(f.created))
	copy(out, f.created)
	return out
}

func testDoc() *domain.Document {
	return &domain.Document{
		ID:             1,
		Title:          "Design notes",
		Content:        "Hello",
		CurrentVersion: 1,
	}
}

func userA() domain.Identity { return domain.Identity{UserID: 10, Name: "alice"} }
func userB() domain.Identity { return domain.Identity{UserID: 20, Name: "bob"} }

func TestJoin_ReturnsAuthoritativeState(t *testing.T) {
	store := newFakeStore(1)
	m := NewManager(&fakeAccess{doc: testDoc()}, store, time.Hour)

	state, err := m.Join(context.Background(), 1, userA())

	require.NoError(t, err)
	assert.Equal(t, "Hello", state.Content)
	assert.Equal(t, uint64(1), state.Version)
	assert.Equal(t, []Participant{{UserID: 10, Name: "alice"}}, state.Collaborators)
}

func TestJoin_DocumentNotFound(t *testing.T) {
	m := NewManager(&fakeAccess{doc: testDoc()}, newFakeStore(1), time.Hour)

	_, err := m.Join(context.Background(), 99, userA())

	var apiErr *apiError.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestJoin_PermissionDenied(t *testing.T) {
	m := NewManager(&fakeAccess{doc: testDoc(), denyID: 20}, newFakeStore(1), time.Hour)

	_, err := m.Join(context.Background(), 1, userB())

	var apiErr *apiError.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestSubmitEdit_RequiresJoin(t *testing.T) {
	m := NewManager(&fakeAccess{doc: testDoc()}, newFakeStore(1), time.Hour)

	_, err := m.SubmitEdit(1, 10, "edit without joining")

	var apiErr *apiError.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestSubmitEdit_LastWriteWins(t *testing.T) {
	store := newFakeStore(1)
	// debounce far in the future; persistence happens on last leave
	m := NewManager(&fakeAccess{doc: testDoc()}, store, time.Hour)

	_, err := m.Join(context.Background(), 1, userA())
	require.NoError(t, err)
	_, err = m.Join(context.Background(), 1, userB())
	require.NoError(t, err)

	_, err = m.SubmitEdit(1, 10, "foo")
	require.NoError(t, err)
	state, err := m.SubmitEdit(1, 20, "bar")
	require.NoError(t, err)

	// no merge: the later write replaces the earlier one outright
	assert.Equal(t, "bar", state.Content)

	m.Leave(1, 10)
	m.Leave(1, 20)

	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "bar", calls[0].Content)
	assert.Equal(t, uint64(20), calls[0].AuthorID)
	assert.True(t, calls[0].IsAutoSave)
}

func TestSubmitEdit_DebouncePersistsOnce(t *testing.T) {
	store := newFakeStore(1)
	m := NewManager(&fakeAccess{doc: testDoc()}, store, 20*time.Millisecond)

	_, err := m.Join(context.Background(), 1, userA())
	require.NoError(t, err)

	_, err = m.SubmitEdit(1, 10, "Hello w")
	require.NoError(t, err)
	_, err = m.SubmitEdit(1, 10, "Hello wor")
	require.NoError(t, err)
	_, err = m.SubmitEdit(1, 10, "Hello world")
	require.NoError(t, err)

	// rapid keystrokes collapse into a single persisted version
	assert.Eventually(t, func() bool {
		return len(store.calls()) == 1
	}, time.Second, 10*time.Millisecond)

	time.Sleep(60 * time.Millisecond)
	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "Hello world", calls[0].Content)
	assert.Equal(t, uint64(2), calls[0].Version)

	// the persisted version becomes visible to the next joiner
	state, err := m.Join(context.Background(), 1, userB())
	require.NoError(t, err)
	assert.Equal(t, "Hello world", state.Content)
	assert.Equal(t, uint64(2), state.Version)
}

func TestLeave_FlushesPendingSave(t *testing.T) {
	store := newFakeStore(1)
	m := NewManager(&fakeAccess{doc: testDoc()}, store, time.Hour)

	_, err := m.Join(context.Background(), 1, userA())
	require.NoError(t, err)
	_, err = m.SubmitEdit(1, 10, "unsaved edit")
	require.NoError(t, err)

	remaining := m.Leave(1, 10)

	assert.Empty(t, remaining)
	calls := store.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "unsaved edit", calls[0].Content)

	// session is gone; edits need a fresh join
	_, err = m.SubmitEdit(1, 10, "after teardown")
	assert.Error(t, err)
}

func TestLeave_ReportsRemainingParticipants(t *testing.T) {
	m := NewManager(&fakeAccess{doc: testDoc()}, newFakeStore(1), time.Hour)

	_, _ = m.Join(context.Background(), 1, userA())
	_, _ = m.Join(context.Background(), 1, userB())

	remaining := m.Leave(1, 10)

	assert.Equal(t, []Participant{{UserID: 20, Name: "bob"}}, remaining)
}

func TestRequestSnapshot_BlankName(t *testing.T) {
	m := NewManager(&fakeAccess{doc: testDoc()}, newFakeStore(1), time.Hour)

	_, err := m.RequestSnapshot(context.Background(), 1, userA(), "  ", "", nil)

	var apiErr *apiError.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.Status)
}

func TestRequestSnapshot_CancelsPendingAutoSave(t *testing.T) {
	store := newFakeStore(1)
	m := NewManager(&fakeAccess{doc: testDoc()}, store, 50*time.Millisecond)

	_, err := m.Join(context.Background(), 1, userA())
	require.NoError(t, err)
	_, err = m.SubmitEdit(1, 10, "work in progress")
	require.NoError(t, err)

	v, err := m.RequestSnapshot(context.Background(), 1, userA(), "before-refactor", "checkpoint", []string{"wip"})
	require.NoError(t, err)
	assert.True(t, v.IsSnapshot)
	assert.Equal(t, "before-refactor", v.SnapshotName)
	assert.Equal(t, "work in progress", v.Content)

	// the debounced save was cancelled: no second version shows up
	time.Sleep(120 * time.Millisecond)
	assert.Len(t, store.calls(), 1)

	// and leaving doesn't persist again either
	m.Leave(1, 10)
	assert.Len(t, store.calls(), 1)
}

func TestRequestSnapshot_WithoutLiveSession(t *testing.T) {
	store := newFakeStore(1)
	m := NewManager(&fakeAccess{doc: testDoc()}, store, time.Hour)

	v, err := m.RequestSnapshot(context.Background(), 1, userA(), "archive", "", nil)

	require.NoError(t, err)
	assert.True(t, v.IsSnapshot)
	// snapshots the persisted content when nobody is editing
	assert.Equal(t, "Hello", v.Content)
}

func TestSessionsAreIndependentPerDocument(t *testing.T) {
	docA := testDoc()
	docB := &domain.Document{ID: 2, Title: "Other", Content: "Second doc", CurrentVersion: 3}

	access := &multiAccess{docs: map[uint64]*domain.Document{1: docA, 2: docB}}
	store := newFakeStore(10)
	m := NewManager(access, store, time.Hour)

	stateA, err := m.Join(context.Background(), 1, userA())
	require.NoError(t, err)
	stateB, err := m.Join(context.Background(), 2, userA())
	require.NoError(t, err)

	_, err = m.SubmitEdit(1, 10, "only doc one changes")
	require.NoError(t, err)

	assert.Equal(t, "only doc one changes", mustState(t, m, 1, userB()))
	assert.Equal(t, "Second doc", mustState(t, m, 2, userB()))
	assert.Equal(t, uint64(1), stateA.Version)
	assert.Equal(t, uint64(3), stateB.Version)
}

// blockingStore parks every CreateVersion call until released, to hold a
// session's flush open while other calls race it.
type blockingStore struct {
	fakeStore
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func newBlockingStore(current uint64) *blockingStore {
	return &blockingStore{
		fakeStore: fakeStore{next: current},
		started:   make(chan struct{}),
		release:   make(chan struct{}),
	}
}

func (b *blockingStore) CreateVersion(ctx context.Context, docID uint64, content *string, title string, authorID uint64, opts version.Options) (*domain.DocumentVersion, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.fakeStore.CreateVersion(ctx, docID, content, title, authorID, opts)
}

func TestLeave_FlushDoesNotBlockOtherDocuments(t *testing.T) {
	docA := testDoc()
	docB := &domain.Document{ID: 2, Title: "Other", Content: "Second doc", CurrentVersion: 3}
	access := &multiAccess{docs: map[uint64]*domain.Document{1: docA, 2: docB}}
	store := newBlockingStore(1)
	m := NewManager(access, store, time.Hour)

	_, err := m.Join(context.Background(), 1, userA())
	require.NoError(t, err)
	_, err = m.SubmitEdit(1, 10, "unsaved edit")
	require.NoError(t, err)

	leaveDone := make(chan struct{})
	go func() {
		m.Leave(1, 10)
		close(leaveDone)
	}()
	<-store.started

	// the flush on document 1 is stuck in the store; document 2 must not care
	joinDone := make(chan struct{})
	go func() {
		_, err := m.Join(context.Background(), 2, userB())
		assert.NoError(t, err)
		close(joinDone)
	}()

	select {
	case <-joinDone:
	case <-time.After(time.Second):
		t.Fatal("join on an unrelated document blocked behind another document's flush")
	}

	close(store.release)
	<-leaveDone
}

// syncStore mirrors each persisted version back onto the document, the way
// the real version store keeps the document row current.
type syncStore struct {
	fakeStore
	doc *domain.Document
}

func (s *syncStore) CreateVersion(ctx context.Context, docID uint64, content *string, title string, authorID uint64, opts version.Options) (*domain.DocumentVersion, error) {
	v, err := s.fakeStore.CreateVersion(ctx, docID, content, title, authorID, opts)
	if err == nil {
		s.doc.Content = v.Content
		s.doc.Title = v.Title
		s.doc.CurrentVersion = v.Version
	}
	return v, err
}

func TestJoin_AfterTeardownCreatesFreshSession(t *testing.T) {
	doc := testDoc()
	store := &syncStore{fakeStore: fakeStore{next: 1}, doc: doc}
	m := NewManager(&fakeAccess{doc: doc}, store, time.Hour)

	_, err := m.Join(context.Background(), 1, userA())
	require.NoError(t, err)
	_, err = m.SubmitEdit(1, 10, "unsaved edit")
	require.NoError(t, err)
	m.Leave(1, 10)

	state, err := m.Join(context.Background(), 1, userB())
	require.NoError(t, err)
	assert.Equal(t, []Participant{{UserID: 20, Name: "bob"}}, state.Collaborators)
	assert.Equal(t, "unsaved edit", state.Content)
}

func TestRequestRollback_RefreshesLiveSession(t *testing.T) {
	store := newFakeStore(7)
	m := NewManager(&fakeAccess{doc: testDoc()}, store, time.Hour)

	_, err := m.Join(context.Background(), 1, userA())
	require.NoError(t, err)
	_, err = m.SubmitEdit(1, 10, "about to be discarded")
	require.NoError(t, err)

	v, err := m.RequestRollback(context.Background(), 1, userA(), 2, "bad merge")
	require.NoError(t, err)
	assert.Equal(t, "restored content", v.Content)
	require.NotNil(t, v.RollbackOf)
	assert.Equal(t, uint64(2), *v.RollbackOf)

	// the live session now serves the rolled-back state
	state, err := m.Join(context.Background(), 1, userB())
	require.NoError(t, err)
	assert.Equal(t, "restored content", state.Content)
	assert.Equal(t, v.Version, state.Version)

	// the discarded edit never gets persisted
	m.Leave(1, 10)
	m.Leave(1, 20)
	assert.Len(t, store.calls(), 1)
}

func TestRequestRollback_WithoutLiveSession(t *testing.T) {
	store := newFakeStore(5)
	m := NewManager(&fakeAccess{doc: testDoc()}, store, time.Hour)

	v, err := m.RequestRollback(context.Background(), 1, userA(), 2, "")

	require.NoError(t, err)
	assert.Equal(t, uint64(6), v.Version)
	require.NotNil(t, v.RollbackOf)
	assert.Equal(t, uint64(2), *v.RollbackOf)
}

func TestRequestRollback_PermissionDenied(t *testing.T) {
	m := NewManager(&fakeAccess{doc: testDoc(), denyID: 20}, newFakeStore(1), time.Hour)

	_, err := m.RequestRollback(context.Background(), 1, userB(), 1, "")

	var apiErr *apiError.APIError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
}

func TestRefreshState_UpdatesLiveSession(t *testing.T) {
	store := newFakeStore(7)
	m := NewManager(&fakeAccess{doc: testDoc()}, store, 20*time.Millisecond)

	_, err := m.Join(context.Background(), 1, userA())
	require.NoError(t, err)
	_, err = m.SubmitEdit(1, 10, "stale in-memory edit")
	require.NoError(t, err)

	// a write landed through the REST surface
	m.RefreshState(1, "restored content", "Design notes", 9)

	state, err := m.Join(context.Background(), 1, userB())
	require.NoError(t, err)
	assert.Equal(t, "restored content", state.Content)
	assert.Equal(t, uint64(9), state.Version)

	// the pending auto-save of the overwritten edit was cancelled
	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, store.calls())
}

type multiAccess struct {
	docs map[uint64]*domain.Document
}

func (f *multiAccess) AuthorizeView(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error) {
	doc, ok := f.docs[docID]
	if !ok {
		return nil, apiError.NotFound("Document not found", nil)
	}
	return doc, nil
}

func (f *multiAccess) AuthorizeEdit(ctx context.Context, docID uint64, ident domain.Identity) (*domain.Document, error) {
	return f.AuthorizeView(ctx, docID, ident)
}

func mustState(t *testing.T, m *Manager, docID uint64, ident domain.Identity) string {
	t.Helper()
	state, err := m.Join(context.Background(), docID, ident)
	require.NoError(t, err)
	return state.Content
}
