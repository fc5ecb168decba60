package insight

import (
	"testing"

	"github.com/dvloznov/insight-engine/internal/domain"
)

func TestCandidateHash_StableAndTruncated(t *testing.T) {
	h1 := CandidateHash("High Spending", "You spent $95.00 on Food.")
	h2 := CandidateHash("High Spending", "You spent $95.00 on Food.")

	if h1 != h2 {
		t.Errorf("hash must be deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != 16 {
		t.Errorf("hash length = %d, want 16 hex chars", len(h1))
	}
	if CandidateHash("High Spending", "Different body.") == h1 {
		t.Error("different content must not collide on these inputs")
	}
}

func TestDeduplicator_DropsPriorHashes(t *testing.T) {
	dup := domain.InsightCandidate{Title: "t1", Body: "b1"}
	fresh := domain.InsightCandidate{Title: "t2", Body: "b2"}

	d := NewDeduplicator([]string{CandidateHash(dup.Title, dup.Body)})
	accepted := d.Filter([]domain.InsightCandidate{dup, fresh})

	if len(accepted) != 1 {
		t.Fatalf("accepted = %d, want 1", len(accepted))
	}
	if accepted[0].Title != "t2" {
		t.Errorf("wrong candidate survived: %+v", accepted[0])
	}
	if accepted[0].Hash != CandidateHash("t2", "b2") {
		t.Errorf("Filter must fill the candidate hash, got %q", accepted[0].Hash)
	}
}

func TestDeduplicator_DropsInBatchDuplicates(t *testing.T) {
	cand := domain.InsightCandidate{Title: "t", Body: "b"}

	d := NewDeduplicator(nil)
	accepted := d.Filter([]domain.InsightCandidate{cand, cand, cand})

	if len(accepted) != 1 {
		t.Errorf("accepted = %d, want 1", len(accepted))
	}
}

func TestDeduplicator_FilterTwiceIsIdempotent(t *testing.T) {
	cand := domain.InsightCandidate{Title: "t", Body: "b"}

	d := NewDeduplicator(nil)
	first := d.Filter([]domain.InsightCandidate{cand})
	second := d.Filter([]domain.InsightCandidate{cand})

	if len(first) != 1 {
		t.Fatalf("first pass accepted = %d, want 1", len(first))
	}
	if len(second) != 0 {
		t.Errorf("second pass accepted = %d, want 0", len(second))
	}
}
