// Package models holds the persistent data shapes shared by repositories
// and services.
package models

import "time"

// Roles known to the surrounding platform. The chat core only reads them.
const (
	RoleAdmin = "admin"
	RoleTutor = "tutor"
	RoleTutee = "tutee"
)

// User is the slice of the platform user record the chat core consumes:
// an opaque identity with a display name plus the optional chat PIN
// credential. PinHash and PinSalt are nil when no PIN is set.
type User struct {
	ID        string
	FullName  string
	Role      string
	PinHash   []byte
	PinSalt   []byte
	CreatedAt time.Time
}

// HasPin reports whether a PIN credential is stored for the user.
func (u *User) HasPin() bool {
	return len(u.PinHash) > 0
}
