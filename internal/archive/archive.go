// Package archive provides an optional durable log of completed interview
// turns. The archive is advisory: the conversation store's JSON snapshot
// remains the authoritative history, and archive failures are logged rather
// than failing the turn.
package archive

import (
	"context"
	"time"
)

// Turn is one archived conversation message.
type Turn struct {
	SessionID string
	Role      string
	Content   string
	Timestamp time.Time
}

// TurnArchive records completed interview turns for later analysis.
//
// Implementations must be safe for concurrent use.
type TurnArchive interface {
	// Record appends one turn to the archive.
	Record(ctx context.Context, turn Turn) error

	// Recent returns up to limit most recent turns of a session, ordered
	// chronologically (oldest first).
	Recent(ctx context.Context, sessionID string, limit int) ([]Turn, error)

	// Close releases the archive's resources.
	Close()
}
