package types

import (
	"time"

	"github.com/google/uuid"
)

// SpecID identifies one stored version of a form document (UUIDv7).
type SpecID string

// SessionID identifies a server-hosted form session (UUIDv7).
type SessionID string

// NewSpecID generates a UUIDv7 spec identifier.
// Time-ordered IDs keep catalog inserts clustered.
// Panics on clock regression (uuid.Must); acceptable for ID generation.
func NewSpecID() SpecID {
	return SpecID(uuid.Must(uuid.NewV7()).String())
}

// NewSessionID generates a UUIDv7 session identifier.
func NewSessionID() SessionID {
	return SessionID(uuid.Must(uuid.NewV7()).String())
}

// ParseSessionID validates and converts a string to SessionID.
func ParseSessionID(s string) (SessionID, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", err
	}
	return SessionID(s), nil
}

// SessionIDTime extracts the open time embedded in a session ID.
// Returns zero time for invalid UUIDs; caller should check IsZero().
func SessionIDTime(id SessionID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
