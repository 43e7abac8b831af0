// Package ledger holds append-only anchor ledgers. A ledger is the
// independent witness of what a credential's fingerprint was at issuance, so
// entries are written once and never changed.
package ledger

import (
	"github.com/google/uuid"
)

const referencePrefix = "ledger:"

func newReference() string {
	return referencePrefix + uuid.NewString()
}
