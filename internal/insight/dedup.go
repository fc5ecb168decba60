package insight

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/dvloznov/insight-engine/internal/domain"
)

// CandidateHash digests title+body to the truncated content hash used for
// deduplication: the first 8 bytes of SHA-256, hex encoded. Truncation trades
// collision resistance for brevity; fine for soft dedup, not for anything
// cryptographic.
func CandidateHash(title, body string) string {
	sum := sha256.Sum256([]byte(title + body))
	return hex.EncodeToString(sum[:8])
}

// Deduplicator filters generation candidates against the hashes already
// delivered to the user. The model is non-deterministic and will regenerate
// near-identical text across runs; dropped duplicates are expected, not
// errors.
type Deduplicator struct {
	seen map[string]struct{}
}

// NewDeduplicator seeds the filter with previously delivered hashes,
// typically loaded from the insight store for the dedup retention window.
func NewDeduplicator(priorHashes []string) *Deduplicator {
	seen := make(map[string]struct{}, len(priorHashes))
	for _, h := range priorHashes {
		if h != "" {
			seen[h] = struct{}{}
		}
	}
	return &Deduplicator{seen: seen}
}

// Filter fills in each candidate's hash and silently drops those already
// seen, including duplicates within the batch itself. The returned slice may
// be empty.
func (d *Deduplicator) Filter(cands []domain.InsightCandidate) []domain.InsightCandidate {
	accepted := make([]domain.InsightCandidate, 0, len(cands))
	for _, cand := range cands {
		cand.Hash = CandidateHash(cand.Title, cand.Body)
		if _, dup := d.seen[cand.Hash]; dup {
			continue
		}
		d.seen[cand.Hash] = struct{}{}
		accepted = append(accepted, cand)
	}
	return accepted
}
