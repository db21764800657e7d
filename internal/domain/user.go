package domain

import "time"

// Role is the closed set of principal roles.
type Role string

const (
	RoleTeacher Role = "TEACHER"
	RoleStudent Role = "STUDENT"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleTeacher || r == RoleStudent
}

// Principal is the authenticated identity a token or connection represents.
type Principal struct {
	ID   string
	Role Role
}

// User is the persisted account behind a principal.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         Role
	FirstName    string
	LastName     string
	LastActive   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Principal returns the identity carried in issued tokens.
func (u *User) Principal() Principal {
	return Principal{ID: u.ID, Role: u.Role}
}

// Peer is a principal this user may message, joined with presence.
type Peer struct {
	ID       string
	Name     string
	Role     Role
	IsOnline bool
	LastSeen *time.Time
}
