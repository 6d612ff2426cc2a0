// Package policy centralizes every note visibility and mutation decision.
// The rest of the system consults it rather than re-deriving the rules; any
// divergence between list, get, update, delete, share, and search is a
// security bug. All functions are pure and perform no I/O.
package policy

import (
	"errors"
	"strings"

	"jotter/api/internal/store"
)

// Capability is what a caller wants to do with a note.
type Capability string

const (
	CapabilityRead   Capability = "read"
	CapabilityModify Capability = "modify"
)

var (
	// ErrNotVisible means the note is neither owned by the caller nor public.
	ErrNotVisible = errors.New("note not visible to caller")
	// ErrNotOwner means the caller may read the note but does not own it.
	// Mutation, deletion, and sharing require ownership regardless of the
	// public flag.
	ErrNotOwner = errors.New("note not owned by caller")
)

func CanRead(userID string, note store.Note) bool {
	return note.OwnerID == userID || note.IsPublic
}

func CanModify(userID string, note store.Note) bool {
	return note.OwnerID == userID
}

// VisibilityFilter returns the predicate selecting notes readable by userID:
// owned OR public. List and search must both apply exactly this predicate;
// search intersects it with MatchesKeyword.
func VisibilityFilter(userID string) func(store.Note) bool {
	return func(note store.Note) bool {
		return CanRead(userID, note)
	}
}

// MatchesKeyword reports whether keyword occurs in the note content as a
// case-sensitive literal substring. The keyword is never a pattern language.
func MatchesKeyword(note store.Note, keyword string) bool {
	return strings.Contains(note.Content, keyword)
}

// Authorize checks the requested capability against the note. Callers at the
// HTTP boundary report both failures as a generic not-found so existence is
// never confirmed to unauthorized callers.
func Authorize(userID string, note store.Note, capability Capability) error {
	if capability == CapabilityModify {
		if !CanModify(userID, note) {
			return ErrNotOwner
		}
		return nil
	}
	if !CanRead(userID, note) {
		return ErrNotVisible
	}
	return nil
}
