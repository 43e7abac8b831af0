package audit

import "context"

// Store is a destination for audit events.
type Store interface {
	Append(ctx context.Context, event Event) error
}

// MultiStore appends to every store and returns the first error.
type MultiStore []Store

// Append writes to every store even after a failure.
func (m MultiStore) Append(ctx context.Context, event Event) error {
	var first error
	for _, s := range m {
		if err := s.Append(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
