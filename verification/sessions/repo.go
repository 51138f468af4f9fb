package sessions

// Repo is the registry of live verification sessions.
// Every method is safe for concurrent use. Mutation of a single session goes
// through Update, which runs under that session's lock only.
type Repo interface {
	// Put stores a new session. Returns ErrAlreadyExists when the id is taken
	// and ErrResourceExhausted when the store is full.
	Put(session Session) error

	// Get returns a copy of a live session. Unknown and expired ids both
	// return ErrNotFound.
	Get(sessionID string) (Session, error)

	// Snapshot returns a copy of any session still held, including expired
	// ones awaiting the sweep. Only owner-authenticated reads use it.
	Snapshot(sessionID string) (Session, error)

	// Update applies fn to a live session atomically with respect to other
	// updates of the same session. If fn returns an error nothing is written.
	// Identity fields (ID, TokenDigest, OwnerUserID, CreatedAt, ExpiresAt) are
	// immutable and any change fn makes to them is discarded.
	Update(sessionID string, fn func(*Session) error) (Session, error)

	// Delete removes a session, reporting whether it was present.
	Delete(sessionID string) bool

	// SweepExpired marks sessions past ExpiresAt as expired and removes those
	// past the grace window. Returns the number removed.
	SweepExpired() int

	// Len is the number of sessions currently held.
	Len() int
}
