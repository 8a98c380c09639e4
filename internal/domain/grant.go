package domain

import "time"

// Grant represents one settled payment that authorizes a single door-open.
// A grant is pending until the door controller consumes it.
type Grant struct {
	ID        string
	InvoiceID string
	CreatedAt time.Time
	// ConsumedAt is nil while the grant is pending. It is set exactly once
	// and never cleared; grants are kept as an audit trail.
	ConsumedAt *time.Time
}

// Pending reports whether the grant has not been consumed yet.
func (g Grant) Pending() bool {
	return g.ConsumedAt == nil
}
