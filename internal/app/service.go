package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"jotter/api/internal/auth"
	"jotter/api/internal/authpw"
	"jotter/api/internal/config"
	"jotter/api/internal/policy"
	"jotter/api/internal/store"
)

// Identity is the authenticated requester, resolved from a verified bearer
// token.
type Identity struct {
	UserID   string
	Username string
}

// Store is the persistence the service depends on. The visibility-filtered
// queries must return the same result set as applying
// policy.VisibilityFilter (and policy.MatchesKeyword for search) over all
// notes; the service re-applies the predicates over the returned rows.
type Store interface {
	CreateUser(ctx context.Context, user store.User) error
	GetUserByUsername(ctx context.Context, username string) (store.User, error)
	CreateNote(ctx context.Context, note store.Note) error
	GetNote(ctx context.Context, id string) (store.Note, error)
	ListNotesVisibleTo(ctx context.Context, userID string) ([]store.Note, error)
	SearchNotes(ctx context.Context, userID, keyword string) ([]store.Note, error)
	UpdateNoteContent(ctx context.Context, id, content string) error
	DeleteNote(ctx context.Context, id string) error
	SetNotePublic(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

type Service struct {
	cfg    config.Config
	store  Store
	passwd *authpw.Service
}

func New(cfg config.Config, dataStore Store) *Service {
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		passwd: authpw.NewService(dataStore),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// SignUp registers a new user.
func (s *Service) SignUp(ctx context.Context, username, password string) error {
	_, err := s.passwd.SignUp(ctx, username, password)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, authpw.ErrEmptyPassword):
		return errValidation("Password cannot be empty.")
	case errors.Is(err, authpw.ErrUsernameTaken):
		return errConflict("Failed to add user.")
	default:
		return errValidation("Failed to add user.")
	}
}

// Login verifies credentials and issues a bearer token.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.passwd.SignIn(ctx, username, password)
	switch {
	case err == nil:
	case errors.Is(err, authpw.ErrUserNotFound):
		return "", errValidation("User not found.")
	case errors.Is(err, authpw.ErrIncorrectPassword):
		return "", errValidation("Incorrect Password")
	default:
		return "", fmt.Errorf("sign in: %w", err)
	}

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), user.Username, s.cfg.TokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	return token, nil
}

// IdentityFromToken verifies the bearer token and resolves the user it names.
func (s *Service) IdentityFromToken(ctx context.Context, token string) (Identity, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Identity{}, err
	}
	user, err := s.store.GetUserByUsername(ctx, claims.Username)
	if err != nil {
		return Identity{}, auth.ErrInvalidToken
	}
	return Identity{UserID: user.ID, Username: user.Username}, nil
}

// ListNotes returns every note visible to the identity: owned or public.
func (s *Service) ListNotes(ctx context.Context, identity Identity) ([]NotePayload, error) {
	notes, err := s.store.ListNotesVisibleTo(ctx, identity.UserID)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return filterNotes(notes, policy.VisibilityFilter(identity.UserID)), nil
}

// SearchNotes returns the visible notes whose content contains the keyword
// as a case-sensitive literal substring. Search and list share the
// visibility predicate by construction.
func (s *Service) SearchNotes(ctx context.Context, identity Identity, keyword string) ([]NotePayload, error) {
	notes, err := s.store.SearchNotes(ctx, identity.UserID, keyword)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	visible := policy.VisibilityFilter(identity.UserID)
	return filterNotes(notes, func(note store.Note) bool {
		return visible(note) && policy.MatchesKeyword(note, keyword)
	}), nil
}

func (s *Service) GetNote(ctx context.Context, identity Identity, noteID string) (NotePayload, error) {
	note, err := s.loadNote(ctx, identity, noteID, policy.CapabilityRead)
	if err != nil {
		return NotePayload{}, err
	}
	return notePayload(note), nil
}

func (s *Service) CreateNote(ctx context.Context, identity Identity, content string) (NotePayload, error) {
	if content == "" {
		return NotePayload{}, errValidation("Content cannot be empty.")
	}
	note := store.Note{
		ID:      uuid.NewString(),
		Content: content,
		OwnerID: identity.UserID,
	}
	if err := s.store.CreateNote(ctx, note); err != nil {
		return NotePayload{}, fmt.Errorf("create note: %w", err)
	}
	return notePayload(note), nil
}

func (s *Service) UpdateNote(ctx context.Context, identity Identity, noteID, content string) (NotePayload, error) {
	if content == "" {
		return NotePayload{}, errValidation("Content cannot be empty.")
	}
	note, err := s.loadNote(ctx, identity, noteID, policy.CapabilityModify)
	if err != nil {
		return NotePayload{}, err
	}
	if err := s.store.UpdateNoteContent(ctx, noteID, content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return NotePayload{}, errNoteNotFound()
		}
		return NotePayload{}, fmt.Errorf("update note: %w", err)
	}
	note.Content = content
	return notePayload(note), nil
}

func (s *Service) DeleteNote(ctx context.Context, identity Identity, noteID string) error {
	if _, err := s.loadNote(ctx, identity, noteID, policy.CapabilityModify); err != nil {
		return err
	}
	if err := s.store.DeleteNote(ctx, noteID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNoteNotFound()
		}
		return fmt.Errorf("delete note: %w", err)
	}
	return nil
}

// ShareNote flips the note public. The transition is one-way: there is no
// unshare operation anywhere in the system.
func (s *Service) ShareNote(ctx context.Context, identity Identity, noteID string) error {
	if _, err := s.loadNote(ctx, identity, noteID, policy.CapabilityModify); err != nil {
		return err
	}
	if err := s.store.SetNotePublic(ctx, noteID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNoteNotFound()
		}
		return fmt.Errorf("share note: %w", err)
	}
	return nil
}

// loadNote fetches a note and authorizes the capability. A missing note, a
// note the caller cannot read, and a note the caller cannot modify all come
// back as the same not-found error.
func (s *Service) loadNote(ctx context.Context, identity Identity, noteID string, capability policy.Capability) (store.Note, error) {
	note, err := s.store.GetNote(ctx, noteID)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Note{}, errNoteNotFound()
	}
	if err != nil {
		return store.Note{}, fmt.Errorf("get note: %w", err)
	}
	if err := policy.Authorize(identity.UserID, note, capability); err != nil {
		return store.Note{}, errNoteNotFound()
	}
	return note, nil
}

// NotePayload is the JSON shape notes are served as.
type NotePayload struct {
	ID       string `json:"id"`
	Content  string `json:"content"`
	Owner    string `json:"owner"`
	IsPublic bool   `json:"isPublic"`
}

func notePayload(note store.Note) NotePayload {
	return NotePayload{
		ID:       note.ID,
		Content:  note.Content,
		Owner:    note.OwnerID,
		IsPublic: note.IsPublic,
	}
}

func filterNotes(notes []store.Note, keep func(store.Note) bool) []NotePayload {
	payloads := []NotePayload{}
	for _, note := range notes {
		if keep(note) {
			payloads = append(payloads, notePayload(note))
		}
	}
	return payloads
}
