package identity

import "strings"

// Identity is the authenticated user a chat operation runs as.
// It is passed explicitly into every store call instead of living in a
// process-wide variable.
type Identity struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName,omitempty"`
}

// New builds an Identity, trimming surrounding whitespace from the id
func New(userID, displayName string) Identity {
	return Identity{
		UserID:      strings.TrimSpace(userID),
		DisplayName: strings.TrimSpace(displayName),
	}
}

// Valid reports whether the identity carries a user id
func (i Identity) Valid() bool {
	return i.UserID != ""
}
