package domain

import (
	"testing"
	"time"
)

func checklistWith(items ...ChecklistItem) *Checklist {
	return &Checklist{
		ID:        "cl-1",
		OwnerKind: OwnerCompany,
		OwnerID:   "co-1",
		Status:    ChecklistPending,
		Items:     items,
	}
}

func TestRecomputeOptionalOnlyChecklistCanComplete(t *testing.T) {
	now := time.Now().UTC()
	cl := checklistWith(
		ChecklistItem{ID: "i-1", Required: false, Status: ItemPending},
		ChecklistItem{ID: "i-2", Required: false, Status: ItemPending},
	)

	cl.Recompute(now)
	if cl.Status != ChecklistPending {
		t.Fatalf("untouched: got %s, want %s", cl.Status, ChecklistPending)
	}

	cl.Items[0].Status = ItemCompleted
	cl.Recompute(now)
	if cl.Status != ChecklistInProgress {
		t.Fatalf("partial: got %s, want %s", cl.Status, ChecklistInProgress)
	}

	cl.Items[1].Status = ItemCompleted
	cl.Recompute(now)
	if cl.Status != ChecklistCompleted {
		t.Fatalf("all optional done: got %s, want %s", cl.Status, ChecklistCompleted)
	}
	if cl.CompletedAt == nil {
		t.Fatal("completed checklist has no completion time")
	}

	cl.Items[1].Status = ItemInProgress
	cl.Recompute(now)
	if cl.Status != ChecklistInProgress {
		t.Fatalf("reverted: got %s, want %s", cl.Status, ChecklistInProgress)
	}
	if cl.CompletedAt != nil {
		t.Fatal("reverted checklist kept its completion time")
	}
}

func TestRecomputeOptionalItemsDoNotGateRequired(t *testing.T) {
	now := time.Now().UTC()
	cl := checklistWith(
		ChecklistItem{ID: "i-1", Required: true, Status: ItemCompleted},
		ChecklistItem{ID: "i-2", Required: false, Status: ItemPending},
	)

	cl.Recompute(now)
	if cl.Status != ChecklistCompleted {
		t.Fatalf("got %s, want %s: optional items must not block completion", cl.Status, ChecklistCompleted)
	}
}
