package filter

import (
	"testing"
	"time"

	"github.com/trafficlens/metricsync/internal/domain"
)

func sampleProperties() []domain.Property {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	return []domain.Property{
		{ID: "p1", Name: "Alpha Store", Priority: domain.PriorityHigh, Tags: []string{"retail"}, Active: true, LastAccessedAt: base.Add(1 * time.Hour)},
		{ID: "p2", Name: "Beta Blog", Priority: domain.PriorityLow, Tags: []string{"content"}, Active: true, LastAccessedAt: base.Add(5 * time.Hour)},
		{ID: "p3", Name: "Gamma App", Priority: domain.PriorityHigh, Tags: []string{"mobile"}, Active: false, LastAccessedAt: base.Add(3 * time.Hour)},
		{ID: "p4", Name: "Delta Shop", Priority: domain.PriorityNormal, Tags: []string{"retail"}, Active: true, LastAccessedAt: base.Add(4 * time.Hour)},
		{ID: "p5", Name: "Epsilon Docs", Priority: domain.PriorityHigh, Tags: []string{"content"}, Active: true, LastAccessedAt: base.Add(2 * time.Hour)},
	}
}

func ids(ps []domain.Property) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.ID
	}
	return out
}

func TestApply_Filters(t *testing.T) {
	props := sampleProperties()

	tests := []struct {
		name     string
		criteria domain.FilterCriteria
		want     []string
	}{
		{
			name:     "active only",
			criteria: domain.FilterCriteria{ActiveOnly: true},
			want:     []string{"p1", "p2", "p4", "p5"},
		},
		{
			name:     "by priority",
			criteria: domain.FilterCriteria{Priorities: []domain.Priority{domain.PriorityHigh}},
			want:     []string{"p1", "p3", "p5"},
		},
		{
			name:     "by tag",
			criteria: domain.FilterCriteria{Tags: []string{"retail"}},
			want:     []string{"p1", "p4"},
		},
		{
			name:     "search matches name case-insensitively",
			criteria: domain.FilterCriteria{SearchQuery: "alpha"},
			want:     []string{"p1"},
		},
		{
			name:     "search matches id",
			criteria: domain.FilterCriteria{SearchQuery: "p4"},
			want:     []string{"p4"},
		},
		{
			name:     "limit applies after filtering",
			criteria: domain.FilterCriteria{ActiveOnly: true, Limit: 2},
			want:     []string{"p1", "p2"},
		},
		{
			name:     "sort by name",
			criteria: domain.FilterCriteria{Tags: []string{"content"}, SortBy: "name"},
			want:     []string{"p2", "p5"},
		},
		{
			name:     "sort by recency",
			criteria: domain.FilterCriteria{ActiveOnly: true, SortBy: "recent"},
			want:     []string{"p2", "p4", "p5", "p1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Apply(props, &tt.criteria))
			if len(got) != len(tt.want) {
				t.Fatalf("got %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestSelect_UnderMaxCountPassesThrough(t *testing.T) {
	props := sampleProperties()
	got := Select(props, nil, 10)
	if len(got) != len(props) {
		t.Errorf("got %d properties, want %d", len(got), len(props))
	}
}

func TestSelect_HighPriorityTier(t *testing.T) {
	props := sampleProperties()

	got := Select(props, nil, 2)
	if len(got) != 2 {
		t.Fatalf("got %d properties, want 2", len(got))
	}
	// High-priority active sorted by priority, ties broken by name:
	// Alpha Store then Epsilon Docs. Gamma App is inactive.
	if got[0].ID != "p1" || got[1].ID != "p5" {
		t.Errorf("got %v, want [p1 p5]", ids(got))
	}
}

func TestSelect_RecencyFallbackWhenNoHighPriority(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	props := []domain.Property{
		{ID: "a", Name: "A", Priority: domain.PriorityLow, Active: true, LastAccessedAt: base.Add(1 * time.Hour)},
		{ID: "b", Name: "B", Priority: domain.PriorityNormal, Active: true, LastAccessedAt: base.Add(3 * time.Hour)},
		{ID: "c", Name: "C", Priority: domain.PriorityLow, Active: true, LastAccessedAt: base.Add(2 * time.Hour)},
	}

	got := Select(props, nil, 2)
	if len(got) != 2 {
		t.Fatalf("got %d properties, want 2", len(got))
	}
	if got[0].ID != "b" || got[1].ID != "c" {
		t.Errorf("got %v, want [b c] (most recently accessed)", ids(got))
	}
}

func TestSelect_CriteriaAppliedBeforeTiers(t *testing.T) {
	props := sampleProperties()
	criteria := &domain.FilterCriteria{Tags: []string{"content"}}

	got := Select(props, criteria, 1)
	if len(got) != 1 {
		t.Fatalf("got %d properties, want 1", len(got))
	}
	// Only content-tagged candidates remain; the high-priority tier
	// keeps Epsilon Docs.
	if got[0].ID != "p5" {
		t.Errorf("got %v, want p5", got[0].ID)
	}
}

func TestSelect_DeterministicTieBreak(t *testing.T) {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	props := []domain.Property{
		{ID: "z", Name: "Zeta", Priority: domain.PriorityHigh, Active: true, LastAccessedAt: base},
		{ID: "a", Name: "Atlas", Priority: domain.PriorityHigh, Active: true, LastAccessedAt: base},
		{ID: "m", Name: "Mira", Priority: domain.PriorityHigh, Active: true, LastAccessedAt: base},
	}

	for i := 0; i < 5; i++ {
		got := Select(props, nil, 2)
		if got[0].Name != "Atlas" || got[1].Name != "Mira" {
			t.Fatalf("run %d: got %v, want [Atlas Mira]", i, ids(got))
		}
	}
}
