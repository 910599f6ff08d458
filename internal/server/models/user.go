// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account. PasswordHash is never serialised to clients; the HTTP
// layer renders its own view of a user.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Bio          *string
	// AvatarRef is the blob storage reference of the profile picture, nil when none was uploaded.
	AvatarRef *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// HasAvatar reports whether the user currently references a stored blob.
func (u *User) HasAvatar() bool {
	return u.AvatarRef != nil && *u.AvatarRef != ""
}
