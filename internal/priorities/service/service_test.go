package service

import (
	"testing"

	"github.com/google/uuid"

	"salesdesk_backend/internal/priorities/repository"
	"salesdesk_backend/internal/records/domain"
)

func intPtr(v int) *int { return &v }

func band(name string, min, max *int, sortOrder int) repository.Priority {
	return repository.Priority{
		ID:        uuid.New(),
		Module:    domain.ModuleLeads,
		Name:      name,
		MinScore:  min,
		MaxScore:  max,
		SortOrder: sortOrder,
		IsActive:  true,
	}
}

func TestResolveFrom_Bands(t *testing.T) {
	priorities := []repository.Priority{
		band("Hot", intPtr(70), nil, 0),
		band("Warm", intPtr(40), intPtr(69), 1),
		band("Cold", nil, intPtr(39), 2),
	}

	cases := []struct {
		score int
		want  string
	}{
		{score: 0, want: "Cold"},
		{score: 39, want: "Cold"},
		{score: 40, want: "Warm"},
		{score: 69, want: "Warm"},
		{score: 70, want: "Hot"},
		{score: 100, want: "Hot"},
	}
	for _, tc := range cases {
		got := ResolveFrom(priorities, tc.score)
		if got == nil || got.Name != tc.want {
			t.Fatalf("score %d: expected %s, got %+v", tc.score, tc.want, got)
		}
	}
}

func TestResolveFrom_NarrowestRangeWins(t *testing.T) {
	priorities := []repository.Priority{
		band("Broad", intPtr(0), intPtr(100), 0),
		band("Narrow", intPtr(45), intPtr(55), 5),
	}

	got := ResolveFrom(priorities, 50)
	if got == nil || got.Name != "Narrow" {
		t.Fatalf("expected the narrower overlapping band, got %+v", got)
	}

	got = ResolveFrom(priorities, 20)
	if got == nil || got.Name != "Broad" {
		t.Fatalf("expected the broad band outside the overlap, got %+v", got)
	}
}

func TestResolveFrom_NilBoundsAreWidest(t *testing.T) {
	priorities := []repository.Priority{
		band("Open", nil, nil, 0),
		band("Bounded", intPtr(0), intPtr(100), 1),
	}

	got := ResolveFrom(priorities, 50)
	if got == nil || got.Name != "Bounded" {
		t.Fatalf("a fully open range must lose to any bounded one, got %+v", got)
	}
}

func TestResolveFrom_TieBreaksBySortOrder(t *testing.T) {
	priorities := []repository.Priority{
		band("Second", intPtr(40), intPtr(60), 2),
		band("First", intPtr(30), intPtr(50), 1),
	}
	// Same width, the lower sort order wins.
	priorities[0].MinScore = intPtr(40)
	priorities[0].MaxScore = intPtr(60)
	priorities[1].MinScore = intPtr(25)
	priorities[1].MaxScore = intPtr(45)

	// List order mirrors repository ordering (sort_order ASC).
	ordered := []repository.Priority{priorities[1], priorities[0]}
	got := ResolveFrom(ordered, 42)
	if got == nil || got.Name != "First" {
		t.Fatalf("equal widths must fall to the lower sort order, got %+v", got)
	}
}

func TestResolveFrom_FallbackAndInactive(t *testing.T) {
	fallback := band("Unscored", intPtr(90), intPtr(100), 3)
	fallback.IsDefault = true
	inactive := band("Retired", intPtr(0), intPtr(100), 0)
	inactive.IsActive = false

	priorities := []repository.Priority{inactive, fallback}

	got := ResolveFrom(priorities, 10)
	if got == nil || got.Name != "Unscored" {
		t.Fatalf("expected default fallback when nothing matches, got %+v", got)
	}

	if got := ResolveFrom([]repository.Priority{inactive}, 10); got != nil {
		t.Fatalf("expected nil without a match or default, got %+v", got)
	}
}
