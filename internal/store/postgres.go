package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) CreateUser(ctx context.Context, user User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, password_salt)
		VALUES ($1, $2, $3, $4)
	`, user.ID, user.Username, user.PasswordHash, user.PasswordSalt)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (User, error) {
	const query = `
		SELECT id, username, password_hash, password_salt, created_at
		FROM users WHERE username = $1
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.PasswordSalt, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateNote(ctx context.Context, note Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, content, owner_id, is_public)
		VALUES ($1, $2, $3, $4)
	`, note.ID, note.Content, note.OwnerID, note.IsPublic)
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetNote(ctx context.Context, id string) (Note, error) {
	const query = `
		SELECT id, content, owner_id, is_public, created_at, updated_at
		FROM notes WHERE id = $1
	`
	var note Note
	err := s.db.QueryRowContext(ctx, query, id).
		Scan(&note.ID, &note.Content, &note.OwnerID, &note.IsPublic, &note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return Note{}, err
	}
	return note, nil
}

// ListNotesVisibleTo pushes the visibility predicate (owned OR public) into
// SQL. The WHERE clause must stay logically identical to
// policy.VisibilityFilter; the service re-applies the predicate over the
// returned rows so the two can never silently diverge.
func (s *PostgresStore) ListNotesVisibleTo(ctx context.Context, userID string) ([]Note, error) {
	const query = `
		SELECT id, content, owner_id, is_public, created_at, updated_at
		FROM notes
		WHERE owner_id = $1 OR is_public
		ORDER BY created_at
	`
	return s.queryNotes(ctx, query, userID)
}

// SearchNotes applies the same visibility predicate as ListNotesVisibleTo
// combined with a case-sensitive literal substring match on content. The
// keyword is LIKE-escaped so it is never interpreted as a pattern.
func (s *PostgresStore) SearchNotes(ctx context.Context, userID, keyword string) ([]Note, error) {
	const query = `
		SELECT id, content, owner_id, is_public, created_at, updated_at
		FROM notes
		WHERE (owner_id = $1 OR is_public)
			AND content LIKE '%' || $2 || '%' ESCAPE '\'
		ORDER BY created_at
	`
	return s.queryNotes(ctx, query, userID, escapeLike(keyword))
}

func (s *PostgresStore) queryNotes(ctx context.Context, query string, args ...any) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notes: %w", err)
	}
	defer rows.Close()

	notes := []Note{}
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.Content, &note.OwnerID, &note.IsPublic, &note.CreatedAt, &note.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		notes = append(notes, note)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notes: %w", err)
	}
	return notes, nil
}

func (s *PostgresStore) UpdateNoteContent(ctx context.Context, id, content string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes SET content = $2, updated_at = NOW() WHERE id = $1
	`, id, content)
	if err != nil {
		return fmt.Errorf("update note: %w", err)
	}
	return requireRow(result)
}

func (s *PostgresStore) DeleteNote(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	return requireRow(result)
}

// SetNotePublic only ever writes true; there is no reverse operation.
func (s *PostgresStore) SetNotePublic(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE notes SET is_public = TRUE, updated_at = NOW() WHERE id = $1
	`, id)
	if err != nil {
		return fmt.Errorf("share note: %w", err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// escapeLike makes a keyword safe to embed in a LIKE pattern so it matches
// as a literal substring.
func escapeLike(keyword string) string {
	replacer := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return replacer.Replace(keyword)
}
