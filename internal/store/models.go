package store

import "time"

type User struct {
	ID           string
	Username     string
	PasswordHash string
	PasswordSalt string
	CreatedAt    time.Time
}

type Note struct {
	ID        string
	Content   string
	OwnerID   string
	IsPublic  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}
