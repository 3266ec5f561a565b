package lease

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Human-readable references: a timestamp operators can eyeball plus a short
// random chunk for uniqueness.

func newChunk() string {
	return strings.ToUpper(uuid.NewString()[:5])
}

// NewPaymentReference builds a lease payment reference, PL-YYYYMMDD-HHMMSS-XXXXX.
func NewPaymentReference(now time.Time) string {
	return fmt.Sprintf("PL-%s-%s", now.Format("20060102-150405"), newChunk())
}

// NewPenaltyPaymentReference builds a penalty payment reference.
func NewPenaltyPaymentReference(now time.Time) string {
	return fmt.Sprintf("PP-%s-%s", now.Format("20060102-150405"), newChunk())
}

// NewContractReference builds a contract reference, CC-YYYYMM-XXXXX.
func NewContractReference(now time.Time) string {
	return fmt.Sprintf("CC-%s-%s", now.Format("200601"), newChunk())
}

// NewID returns a fresh opaque identifier.
func NewID() string { return uuid.NewString() }
