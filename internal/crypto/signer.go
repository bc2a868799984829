// Package crypto implements the deterministic hash chaining behind the
// approval record and the audit ledger. Signatures are keyless SHA-256
// digests over a fixed-order canonical serialization: they make retroactive
// edits to the append-only store detectable, nothing more.
package crypto

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/AamirKnight/Streamline/internal/domain/entity"
)

// timestampLayout canonicalizes signed timestamps to UTC with millisecond
// precision. Signed timestamps must be created via CanonicalTime so the
// stored value re-verifies after a database round trip.
const timestampLayout = "2006-01-02T15:04:05.000Z"

// CanonicalTime truncates t to the precision covered by the signature input
func CanonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FormatTimestamp renders t in the canonical signature form
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// SignApproval computes the chained signature for one approver decision.
// Field order in the payload is fixed; previousHash is the signature of the
// prior approval on the same workflow, or the chain sentinel.
func SignApproval(userID int64, documentID string, action entity.ApprovalAction, timestamp time.Time, previousHash string) string {
	payload := fmt.Sprintf(
		`{"userId":%d,"documentId":%q,"action":%q,"timestamp":%q,"previousHash":%q}`,
		userID, documentID, action, FormatTimestamp(timestamp), previousHash)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// SignAuditEntry computes the chained signature for one audit entry. The
// previousHash is hashed twice (inside the payload and appended after it),
// which keeps the audit namespace disjoint from approval signatures: the
// two schemes never cross-verify.
func SignAuditEntry(documentID string, userID int64, action entity.AuditAction, timestamp time.Time, previousHash string) string {
	payload := fmt.Sprintf(
		`{"documentId":%q,"userId":%d,"action":%q,"timestamp":%q,"previousHash":%q}`,
		documentID, userID, action, FormatTimestamp(timestamp), previousHash)
	sum := sha256.Sum256([]byte(payload + previousHash))
	return hex.EncodeToString(sum[:])
}

// VerifyChain replays a per-document ledger ordered ascending by timestamp.
// It recomputes every signature from the entry's own fields, checks that
// each entry links to its predecessor, and that the chain starts at the
// sentinel. Returns false at the first mismatch.
func VerifyChain(entries []*entity.AuditEntry) bool {
	for i, e := range entries {
		if i == 0 {
			if e.PreviousHash != entity.ChainSentinel {
				return false
			}
		} else if e.PreviousHash != entries[i-1].Signature {
			return false
		}

		expected := SignAuditEntry(e.DocumentID, e.UserID, e.Action, e.Metadata.Timestamp, e.PreviousHash)
		if expected != e.Signature {
			return false
		}
	}
	return true
}
