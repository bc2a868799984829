package crypto

import (
	"testing"
	"time"

	"github.com/AamirKnight/Streamline/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chainedEntry(docID string, userID int64, action entity.AuditAction, ts time.Time, prev string) *entity.AuditEntry {
	ts = CanonicalTime(ts)
	return &entity.AuditEntry{
		DocumentID:   docID,
		UserID:       userID,
		Action:       action,
		Metadata:     entity.AuditMetadata{Timestamp: ts},
		Signature:    SignAuditEntry(docID, userID, action, ts, prev),
		PreviousHash: prev,
	}
}

func buildChain(docID string, n int) []*entity.AuditEntry {
	base := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	entries := make([]*entity.AuditEntry, 0, n)
	prev := entity.ChainSentinel
	for i := 0; i < n; i++ {
		e := chainedEntry(docID, int64(i+1), entity.AuditWorkflowStateChanged, base.Add(time.Duration(i)*time.Second), prev)
		entries = append(entries, e)
		prev = e.Signature
	}
	return entries
}

func TestCanonicalTimeTruncatesToMillis(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	ts := time.Date(2026, 1, 2, 8, 4, 5, 123_456_789, loc)

	canonical := CanonicalTime(ts)
	assert.Equal(t, time.UTC, canonical.Location())
	assert.Equal(t, 123_000_000, canonical.Nanosecond())
	assert.Equal(t, "2026-01-02T03:04:05.123Z", FormatTimestamp(canonical))

	// Formatting is stable across the truncation
	assert.Equal(t, FormatTimestamp(ts), FormatTimestamp(canonical))
}

func TestSignApprovalDeterministic(t *testing.T) {
	ts := CanonicalTime(time.Now())

	sig1 := SignApproval(7, "D1", entity.ActionApproved, ts, entity.ChainSentinel)
	sig2 := SignApproval(7, "D1", entity.ActionApproved, ts, entity.ChainSentinel)
	assert.Equal(t, sig1, sig2)
	assert.Len(t, sig1, 64)

	// Every field participates in the digest
	assert.NotEqual(t, sig1, SignApproval(9, "D1", entity.ActionApproved, ts, entity.ChainSentinel))
	assert.NotEqual(t, sig1, SignApproval(7, "D2", entity.ActionApproved, ts, entity.ChainSentinel))
	assert.NotEqual(t, sig1, SignApproval(7, "D1", entity.ActionRejected, ts, entity.ChainSentinel))
	assert.NotEqual(t, sig1, SignApproval(7, "D1", entity.ActionApproved, ts.Add(time.Millisecond), entity.ChainSentinel))
	assert.NotEqual(t, sig1, SignApproval(7, "D1", entity.ActionApproved, ts, sig2))
}

func TestApprovalAndAuditSchemesAreDisjoint(t *testing.T) {
	ts := CanonicalTime(time.Now())

	approvalSig := SignApproval(7, "D1", entity.ApprovalAction("approved"), ts, entity.ChainSentinel)
	auditSig := SignAuditEntry("D1", 7, entity.AuditAction("approved"), ts, entity.ChainSentinel)
	assert.NotEqual(t, approvalSig, auditSig)
}

func TestVerifyChainValid(t *testing.T) {
	assert.True(t, VerifyChain(nil), "empty chain is trivially valid")
	assert.True(t, VerifyChain(buildChain("D1", 1)))
	assert.True(t, VerifyChain(buildChain("D1", 5)))
}

func TestVerifyChainDetectsTampering(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(entries []*entity.AuditEntry)
	}{
		{
			name: "modified user id",
			mutate: func(entries []*entity.AuditEntry) {
				entries[2].UserID = 999
			},
		},
		{
			name: "modified action",
			mutate: func(entries []*entity.AuditEntry) {
				entries[2].Action = entity.AuditWorkflowApproved
			},
		},
		{
			name: "modified timestamp",
			mutate: func(entries []*entity.AuditEntry) {
				entries[2].Metadata.Timestamp = entries[2].Metadata.Timestamp.Add(time.Millisecond)
			},
		},
		{
			name: "modified document id",
			mutate: func(entries []*entity.AuditEntry) {
				entries[2].DocumentID = "D2"
			},
		},
		{
			name: "broken link",
			mutate: func(entries []*entity.AuditEntry) {
				entries[3].PreviousHash = entries[1].Signature
			},
		},
		{
			name: "missing sentinel",
			mutate: func(entries []*entity.AuditEntry) {
				entries[0].PreviousHash = "deadbeef"
			},
		},
		{
			name: "deleted entry",
			mutate: func(entries []*entity.AuditEntry) {
				copy(entries[2:], entries[3:])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries := buildChain("D1", 5)
			require.True(t, VerifyChain(entries))
			tt.mutate(entries)
			assert.False(t, VerifyChain(entries))
		})
	}
}

func TestVerifyChainLinksEveryEntry(t *testing.T) {
	entries := buildChain("D1", 4)
	assert.Equal(t, entity.ChainSentinel, entries[0].PreviousHash)
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].Signature, entries[i].PreviousHash)
	}
}
