package store

import (
	"testing"

	"github.com/google/uuid"

	"offerboard_backend/internal/offers/domain"
)

func seeded(articles ...string) *Store {
	s := New()
	s.SeedOffers(articles)
	return s
}

func assignment(article, operatorID string, sources ...string) domain.OperatorAssignment {
	return domain.OperatorAssignment{
		ID:         uuid.New(),
		OperatorID: operatorID,
		Article:    article,
		SourceIDs:  sources,
		Status:     domain.AssignmentReady,
	}
}

func TestSeedOffersKeepsEnrichedRows(t *testing.T) {
	s := seeded("A100")
	qty := 5
	s.Merge(1, "stock", "A100", func(m *domain.OfferMetric) { m.StockQuantity = &qty })

	s.SeedOffers([]string{"A100", "B200"})

	m, ok := s.Offer("A100")
	if !ok || m.StockQuantity == nil || *m.StockQuantity != 5 {
		t.Fatalf("expected enriched row to survive reseeding, got %+v", m)
	}
	if _, ok := s.Offer("B200"); !ok {
		t.Fatal("expected new row seeded")
	}
}

func TestMergeDisjointFieldSetsIsOrderIndependent(t *testing.T) {
	qty := 7
	roi := 42.0

	apply := func(s *Store, stockFirst bool) domain.OfferMetric {
		stock := func() {
			s.Merge(1, "stock", "A100", func(m *domain.OfferMetric) { m.StockQuantity = &qty })
		}
		zonesStage := func() {
			s.Merge(1, "zones", "A100", func(m *domain.OfferMetric) { m.ActualROIPercent = &roi })
		}
		if stockFirst {
			stock()
			zonesStage()
		} else {
			zonesStage()
			stock()
		}
		m, _ := s.Offer("A100")
		return m
	}

	a := apply(seeded("A100"), true)
	b := apply(seeded("A100"), false)

	for _, m := range []domain.OfferMetric{a, b} {
		if m.StockQuantity == nil || *m.StockQuantity != 7 {
			t.Fatalf("expected stock field merged, got %+v", m)
		}
		if m.ActualROIPercent == nil || *m.ActualROIPercent != 42 {
			t.Fatalf("expected zone field merged, got %+v", m)
		}
	}
}

func TestMergeDiscardsStaleGeneration(t *testing.T) {
	s := seeded("A100")
	newQty, oldQty := 10, 3

	if !s.Merge(2, "stock", "A100", func(m *domain.OfferMetric) { m.StockQuantity = &newQty }) {
		t.Fatal("expected newer generation merge to apply")
	}
	if s.Merge(1, "stock", "A100", func(m *domain.OfferMetric) { m.StockQuantity = &oldQty }) {
		t.Fatal("expected stale generation merge to be discarded")
	}

	m, _ := s.Offer("A100")
	if *m.StockQuantity != 10 {
		t.Fatalf("expected newer value to survive, got %d", *m.StockQuantity)
	}
}

func TestMergeGenerationIsPerStage(t *testing.T) {
	s := seeded("A100")
	qty := 4
	roi := 9.0

	s.Merge(5, "stock", "A100", func(m *domain.OfferMetric) { m.StockQuantity = &qty })

	// A scoped run with an older generation may still own the zones
	// field-set for this article.
	if !s.Merge(3, "zones", "A100", func(m *domain.OfferMetric) { m.ActualROIPercent = &roi }) {
		t.Fatal("expected different stage to merge independently")
	}
}

func TestMergeUnknownArticleIsNoop(t *testing.T) {
	s := seeded("A100")
	if s.Merge(1, "stock", "ZZZ", func(m *domain.OfferMetric) {}) {
		t.Fatal("expected merge for unknown article to be discarded")
	}
}

func TestApplyCreatedIsIdempotentPerID(t *testing.T) {
	s := New()
	a := assignment("A100", "op-1", "s1")

	changed := s.ApplyCreated(a)
	if !changed {
		t.Fatal("expected first assignment to flip topology")
	}
	changed = s.ApplyCreated(a)
	if changed {
		t.Fatal("expected redelivery not to flip topology again")
	}
	if got := s.Assignments("A100"); len(got) != 1 {
		t.Fatalf("expected 1 assignment after redelivery, got %d", len(got))
	}
}

func TestApplyCreatedSupersedesSameOperatorSourcePair(t *testing.T) {
	s := New()
	old := assignment("A100", "op-1", "s1", "s2")
	s.ApplyCreated(old)

	replacement := assignment("A100", "op-1", "s2", "s3")
	s.ApplyCreated(replacement)

	got := s.Assignments("A100")
	if len(got) != 1 {
		t.Fatalf("expected replacement to supersede, got %d assignments", len(got))
	}
	if got[0].ID != replacement.ID {
		t.Fatalf("expected the new id to survive, got %s", got[0].ID)
	}
}

func TestApplyCreatedKeepsDistinctPairs(t *testing.T) {
	s := New()
	s.ApplyCreated(assignment("A100", "op-1", "s1"))
	s.ApplyCreated(assignment("A100", "op-2", "s2"))
	s.ApplyCreated(assignment("A100", "op-1", "s9"))

	if got := s.Assignments("A100"); len(got) != 3 {
		t.Fatalf("expected 3 distinct assignments, got %d", len(got))
	}
}

func TestApplyUpdatedUnknownIDIsNoop(t *testing.T) {
	s := New()
	if s.ApplyUpdated(assignment("A100", "op-1", "s1")) {
		t.Fatal("expected update for unknown id to be a no-op")
	}
	if got := s.Assignments("A100"); len(got) != 0 {
		t.Fatalf("expected no assignments created by update, got %d", len(got))
	}
}

func TestApplyDeletedIsIdempotent(t *testing.T) {
	s := New()
	a := assignment("A100", "op-1", "s1")
	s.ApplyCreated(a)

	removed, topologyChanged := s.ApplyDeleted(a.ID)
	if !removed || !topologyChanged {
		t.Fatalf("expected first delete to remove and flip topology, got %v %v", removed, topologyChanged)
	}

	removed, topologyChanged = s.ApplyDeleted(a.ID)
	if removed || topologyChanged {
		t.Fatal("expected second delete to be a no-op")
	}
}

func TestApplyDeletedClearsPerOperatorMetrics(t *testing.T) {
	s := New()
	a := assignment("A100", "op-1", "s1")
	s.ApplyCreated(a)
	s.SetPerOperator(domain.PerOperatorMetric{Article: "A100", OperatorID: "op-1"})

	s.ApplyDeleted(a.ID)

	if got := s.PerOperator("A100"); len(got) != 0 {
		t.Fatalf("expected per-operator metrics cleared, got %d", len(got))
	}
}

func TestTopologyOnlyFlipsAtZeroBoundary(t *testing.T) {
	s := New()
	first := assignment("A100", "op-1", "s1")
	second := assignment("A100", "op-2", "s2")

	if !s.ApplyCreated(first) {
		t.Fatal("expected 0 -> 1 to flip topology")
	}
	if s.ApplyCreated(second) {
		t.Fatal("expected 1 -> 2 not to flip topology")
	}
	if _, changed := s.ApplyDeleted(second.ID); changed {
		t.Fatal("expected 2 -> 1 not to flip topology")
	}
	if _, changed := s.ApplyDeleted(first.ID); !changed {
		t.Fatal("expected 1 -> 0 to flip topology")
	}
}

func TestHeightHintIsConsumedOnRead(t *testing.T) {
	s := New()
	s.MarkHeightHint("A100")

	if !s.RowNeedsMoreHeight("A100") {
		t.Fatal("expected hint on first read")
	}
	if s.RowNeedsMoreHeight("A100") {
		t.Fatal("expected hint consumed by first read")
	}
}

func TestOffersSnapshotDoesNotAliasTable(t *testing.T) {
	s := seeded("A100")
	qty := 1
	s.Merge(1, "stock", "A100", func(m *domain.OfferMetric) { m.StockQuantity = &qty })

	snap := s.Offers()
	*snap[0].StockQuantity = 99

	m, _ := s.Offer("A100")
	if *m.StockQuantity != 1 {
		t.Fatalf("expected snapshot mutation not to leak into the table, got %d", *m.StockQuantity)
	}
}

func TestSetAssignmentStatus(t *testing.T) {
	s := New()
	a := assignment("A100", "op-1", "s1")
	a.Status = domain.AssignmentPending
	s.ApplyCreated(a)

	if !s.SetAssignmentStatus(a.ID, domain.AssignmentReady) {
		t.Fatal("expected status update to apply")
	}
	got, _ := s.AssignmentByID(a.ID)
	if got.Status != domain.AssignmentReady {
		t.Fatalf("expected ready status, got %q", got.Status)
	}

	if s.SetAssignmentStatus(uuid.New(), domain.AssignmentFailed) {
		t.Fatal("expected status update for unknown id to be a no-op")
	}
}
