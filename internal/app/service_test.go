package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"jotter/api/internal/config"
	"jotter/api/internal/store"
)

// memStore is an in-memory Store used by scenario tests. It reports missing
// rows as sql.ErrNoRows, like the Postgres store.
type memStore struct {
	users map[string]store.User
	notes map[string]store.Note
}

func newMemStore() *memStore {
	return &memStore{
		users: map[string]store.User{},
		notes: map[string]store.Note{},
	}
}

func (m *memStore) CreateUser(_ context.Context, user store.User) error {
	if _, ok := m.users[user.Username]; ok {
		return errors.New("duplicate username")
	}
	m.users[user.Username] = user
	return nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (store.User, error) {
	user, ok := m.users[username]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memStore) CreateNote(_ context.Context, note store.Note) error {
	m.notes[note.ID] = note
	return nil
}

func (m *memStore) GetNote(_ context.Context, id string) (store.Note, error) {
	note, ok := m.notes[id]
	if !ok {
		return store.Note{}, sql.ErrNoRows
	}
	return note, nil
}

func (m *memStore) ListNotesVisibleTo(_ context.Context, userID string) ([]store.Note, error) {
	var notes []store.Note
	for _, note := range m.notes {
		if note.OwnerID == userID || note.IsPublic {
			notes = append(notes, note)
		}
	}
	return notes, nil
}

func (m *memStore) SearchNotes(_ context.Context, userID, keyword string) ([]store.Note, error) {
	var notes []store.Note
	for _, note := range m.notes {
		if (note.OwnerID == userID || note.IsPublic) && strings.Contains(note.Content, keyword) {
			notes = append(notes, note)
		}
	}
	return notes, nil
}

func (m *memStore) UpdateNoteContent(_ context.Context, id, content string) error {
	note, ok := m.notes[id]
	if !ok {
		return sql.ErrNoRows
	}
	note.Content = content
	m.notes[id] = note
	return nil
}

func (m *memStore) DeleteNote(_ context.Context, id string) error {
	if _, ok := m.notes[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.notes, id)
	return nil
}

func (m *memStore) SetNotePublic(_ context.Context, id string) error {
	note, ok := m.notes[id]
	if !ok {
		return sql.ErrNoRows
	}
	note.IsPublic = true
	m.notes[id] = note
	return nil
}

func (m *memStore) Ping(context.Context) error { return nil }

// fakeStore overrides individual operations for targeted tests.
type fakeStore struct {
	memStore
	listNotesVisibleToFn func(context.Context, string) ([]store.Note, error)
	searchNotesFn        func(context.Context, string, string) ([]store.Note, error)
}

func (f *fakeStore) ListNotesVisibleTo(ctx context.Context, userID string) ([]store.Note, error) {
	if f.listNotesVisibleToFn != nil {
		return f.listNotesVisibleToFn(ctx, userID)
	}
	return f.memStore.ListNotesVisibleTo(ctx, userID)
}

func (f *fakeStore) SearchNotes(ctx context.Context, userID, keyword string) ([]store.Note, error) {
	if f.searchNotesFn != nil {
		return f.searchNotesFn(ctx, userID, keyword)
	}
	return f.memStore.SearchNotes(ctx, userID, keyword)
}

func testConfig() config.Config {
	return config.Config{
		JWTSecret: "test-secret",
		TokenTTL:  time.Hour,
	}
}

func newTestService(st Store) *Service {
	return New(testConfig(), st)
}

var (
	bob   = Identity{UserID: "user-bob", Username: "Bob"}
	alice = Identity{UserID: "user-alice", Username: "Alice"}
)

func seedNote(ms *memStore, id, content, ownerID string, isPublic bool) {
	ms.notes[id] = store.Note{ID: id, Content: content, OwnerID: ownerID, IsPublic: isPublic}
}

func noteIDs(notes []NotePayload) map[string]bool {
	ids := map[string]bool{}
	for _, note := range notes {
		ids[note.ID] = true
	}
	return ids
}

func assertNotFound(t *testing.T, err error) {
	t.Helper()
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		t.Fatalf("expected DomainError, got %v", err)
	}
	if domainErr.Code != "NOT_FOUND" || domainErr.Message != "Note not found" {
		t.Fatalf("unexpected error payload: %+v", domainErr)
	}
}

func TestListNotesReturnsOwnedAndPublic(t *testing.T) {
	ms := newMemStore()
	seedNote(ms, "n1", "bob note 1", bob.UserID, false)
	seedNote(ms, "n2", "bob note 2", bob.UserID, false)
	seedNote(ms, "n3", "alice note", alice.UserID, false)

	svc := newTestService(ms)
	ctx := context.Background()

	notes, err := svc.ListNotes(ctx, bob)
	if err != nil {
		t.Fatalf("ListNotes() error = %v", err)
	}
	ids := noteIDs(notes)
	if len(ids) != 2 || !ids["n1"] || !ids["n2"] {
		t.Fatalf("expected bob's notes only, got %v", ids)
	}

	if err := ms.SetNotePublic(ctx, "n3"); err != nil {
		t.Fatalf("SetNotePublic() error = %v", err)
	}
	notes, err = svc.ListNotes(ctx, bob)
	if err != nil {
		t.Fatalf("ListNotes() error = %v", err)
	}
	if ids := noteIDs(notes); len(ids) != 3 || !ids["n3"] {
		t.Fatalf("expected public note to appear, got %v", ids)
	}
}

func TestSearchSharedNoteScenario(t *testing.T) {
	ms := newMemStore()
	seedNote(ms, "n1", "Lorem ipsum dolor sit amet", alice.UserID, false)
	seedNote(ms, "n2", "consectetur sit elit", bob.UserID, false)

	svc := newTestService(ms)
	ctx := context.Background()

	// Alice only sees her own note, even though Bob's also contains "sit".
	notes, err := svc.SearchNotes(ctx, alice, "sit")
	if err != nil {
		t.Fatalf("SearchNotes() error = %v", err)
	}
	if ids := noteIDs(notes); len(ids) != 1 || !ids["n1"] {
		t.Fatalf("expected only alice's note, got %v", ids)
	}

	// Bob shares his note; now Alice sees both.
	if err := svc.ShareNote(ctx, bob, "n2"); err != nil {
		t.Fatalf("ShareNote() error = %v", err)
	}
	notes, err = svc.SearchNotes(ctx, alice, "sit")
	if err != nil {
		t.Fatalf("SearchNotes() error = %v", err)
	}
	if ids := noteIDs(notes); len(ids) != 2 || !ids["n1"] || !ids["n2"] {
		t.Fatalf("expected both notes, got %v", ids)
	}

	// Sharing never grants write access: Bob still cannot modify Alice's note.
	if _, err := svc.UpdateNote(ctx, bob, "n1", "defaced"); err == nil {
		t.Fatal("expected non-owner update to fail")
	}
	note, _ := ms.GetNote(ctx, "n1")
	if note.Content != "Lorem ipsum dolor sit amet" {
		t.Fatalf("content changed to %q", note.Content)
	}
}

func TestSearchMissesReturnEmpty(t *testing.T) {
	ms := newMemStore()
	seedNote(ms, "n1", "Lorem ipsum dolor sit amet", bob.UserID, false)

	svc := newTestService(ms)
	notes, err := svc.SearchNotes(context.Background(), bob, "gdksgkjgj")
	if err != nil {
		t.Fatalf("SearchNotes() error = %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("expected no matches, got %v", notes)
	}
}

func TestGetNoteConflatesMissingAndForbidden(t *testing.T) {
	ms := newMemStore()
	seedNote(ms, "n1", "private", alice.UserID, false)

	svc := newTestService(ms)
	ctx := context.Background()

	_, missingErr := svc.GetNote(ctx, bob, "no-such-note")
	assertNotFound(t, missingErr)

	_, forbiddenErr := svc.GetNote(ctx, bob, "n1")
	assertNotFound(t, forbiddenErr)

	// The two failure modes must be indistinguishable to the caller.
	if missingErr.Error() != forbiddenErr.Error() {
		t.Fatalf("existence leaks: %q vs %q", missingErr, forbiddenErr)
	}

	// Owner and public reads still succeed.
	if _, err := svc.GetNote(ctx, alice, "n1"); err != nil {
		t.Fatalf("owner GetNote() error = %v", err)
	}
	if err := svc.ShareNote(ctx, alice, "n1"); err != nil {
		t.Fatalf("ShareNote() error = %v", err)
	}
	if _, err := svc.GetNote(ctx, bob, "n1"); err != nil {
		t.Fatalf("GetNote() of public note error = %v", err)
	}
}

func TestUpdateNote(t *testing.T) {
	ms := newMemStore()
	seedNote(ms, "n1", "X", bob.UserID, false)

	svc := newTestService(ms)
	ctx := context.Background()

	updated, err := svc.UpdateNote(ctx, bob, "n1", "Y")
	if err != nil {
		t.Fatalf("UpdateNote() error = %v", err)
	}
	if updated.Content != "Y" {
		t.Fatalf("updated content = %q, want Y", updated.Content)
	}
	got, err := svc.GetNote(ctx, bob, "n1")
	if err != nil {
		t.Fatalf("GetNote() error = %v", err)
	}
	if got.Content != "Y" {
		t.Fatalf("content after update = %q, want Y", got.Content)
	}

	if _, err := svc.UpdateNote(ctx, bob, "n1", ""); err == nil {
		t.Fatal("expected empty content to be rejected")
	}

	_, err = svc.UpdateNote(ctx, alice, "n1", "Z")
	assertNotFound(t, err)
	if got, _ := svc.GetNote(ctx, bob, "n1"); got.Content != "Y" {
		t.Fatalf("rejected update must not change content, got %q", got.Content)
	}
}

func TestDeleteNoteIsIdempotentFailing(t *testing.T) {
	ms := newMemStore()
	seedNote(ms, "n1", "to delete", bob.UserID, false)

	svc := newTestService(ms)
	ctx := context.Background()

	if err := svc.DeleteNote(ctx, bob, "n1"); err != nil {
		t.Fatalf("DeleteNote() error = %v", err)
	}
	_, err := svc.GetNote(ctx, bob, "n1")
	assertNotFound(t, err)

	// Second delete fails the same way, it does not crash.
	assertNotFound(t, svc.DeleteNote(ctx, bob, "n1"))
}

func TestShareIsOwnerOnlyAndMonotonic(t *testing.T) {
	ms := newMemStore()
	seedNote(ms, "n1", "bob's", bob.UserID, false)

	svc := newTestService(ms)
	ctx := context.Background()

	assertNotFound(t, svc.ShareNote(ctx, alice, "n1"))

	if err := svc.ShareNote(ctx, bob, "n1"); err != nil {
		t.Fatalf("ShareNote() error = %v", err)
	}

	// Nothing in the API can flip a public note back to private.
	if _, err := svc.UpdateNote(ctx, bob, "n1", "still public"); err != nil {
		t.Fatalf("UpdateNote() error = %v", err)
	}
	if err := svc.ShareNote(ctx, bob, "n1"); err != nil {
		t.Fatalf("repeated ShareNote() error = %v", err)
	}
	note, _ := ms.GetNote(ctx, "n1")
	if !note.IsPublic {
		t.Fatal("public flag must be monotonic")
	}
}

func TestCreateNoteRequiresContent(t *testing.T) {
	svc := newTestService(newMemStore())
	if _, err := svc.CreateNote(context.Background(), bob, ""); err == nil {
		t.Fatal("expected empty content to be rejected")
	}
}

func TestCreateNoteSetsOwner(t *testing.T) {
	ms := newMemStore()
	svc := newTestService(ms)

	note, err := svc.CreateNote(context.Background(), bob, "note content 1")
	if err != nil {
		t.Fatalf("CreateNote() error = %v", err)
	}
	if note.Owner != bob.UserID {
		t.Fatalf("owner = %q, want %q", note.Owner, bob.UserID)
	}
	if note.IsPublic {
		t.Fatal("new notes must default to private")
	}
	if note.ID == "" {
		t.Fatal("expected an assigned id")
	}
}

// The service must re-apply the visibility predicate even if the store query
// misbehaves; a leaking store must not leak through the API.
func TestListNotesRefiltersStoreRows(t *testing.T) {
	fs := &fakeStore{memStore: *newMemStore()}
	fs.listNotesVisibleToFn = func(context.Context, string) ([]store.Note, error) {
		return []store.Note{
			{ID: "ok", OwnerID: bob.UserID},
			{ID: "leak", OwnerID: alice.UserID, IsPublic: false},
		}, nil
	}

	svc := newTestService(fs)
	notes, err := svc.ListNotes(context.Background(), bob)
	if err != nil {
		t.Fatalf("ListNotes() error = %v", err)
	}
	if ids := noteIDs(notes); len(ids) != 1 || !ids["ok"] {
		t.Fatalf("leaked rows must be filtered out, got %v", ids)
	}
}

func TestSearchNotesRefiltersStoreRows(t *testing.T) {
	fs := &fakeStore{memStore: *newMemStore()}
	fs.searchNotesFn = func(context.Context, string, string) ([]store.Note, error) {
		return []store.Note{
			{ID: "ok", Content: "has sit inside", OwnerID: bob.UserID},
			{ID: "nomatch", Content: "unrelated", OwnerID: bob.UserID},
			{ID: "leak", Content: "has sit inside", OwnerID: alice.UserID},
		}, nil
	}

	svc := newTestService(fs)
	notes, err := svc.SearchNotes(context.Background(), bob, "sit")
	if err != nil {
		t.Fatalf("SearchNotes() error = %v", err)
	}
	if ids := noteIDs(notes); len(ids) != 1 || !ids["ok"] {
		t.Fatalf("search must apply visibility AND keyword, got %v", ids)
	}
}

func TestListNotesPropagatesStoreError(t *testing.T) {
	fs := &fakeStore{memStore: *newMemStore()}
	fs.listNotesVisibleToFn = func(context.Context, string) ([]store.Note, error) {
		return nil, errors.New("boom")
	}

	svc := newTestService(fs)
	if _, err := svc.ListNotes(context.Background(), bob); err == nil {
		t.Fatal("expected store error to propagate")
	}
}
