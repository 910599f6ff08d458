package models

import "time"

// AccessToken is the server-side record of an issued bearer token. Only a
// hash of the token id is kept, so a database leak does not leak usable
// credentials.
type AccessToken struct {
	ID         string
	UserID     string
	Name       string
	TokenHash  string
	CreatedAt  time.Time
	LastUsedAt *time.Time
}
