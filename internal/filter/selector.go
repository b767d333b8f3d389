package filter

import (
	"sort"
	"strings"

	"github.com/trafficlens/metricsync/internal/domain"
)

// Select narrows candidates to a bounded working set.
//
// Explicit criteria are applied first (including the criteria's own
// limit). If the result still exceeds maxCount, two fallback tiers are
// tried in order: high-priority active properties sorted by priority,
// then active properties sorted by most recent access. Each tier is
// truncated to maxCount. Sorting is deterministic, ties broken by name.
//
// maxCount <= 0 means unbounded.
func Select(candidates []domain.Property, criteria *domain.FilterCriteria, maxCount int) []domain.Property {
	selected := candidates
	if criteria != nil {
		selected = Apply(selected, criteria)
	}

	if maxCount <= 0 || len(selected) <= maxCount {
		return selected
	}

	tier := highPriorityActive(selected)
	if len(tier) == 0 {
		tier = recentlyAccessedActive(selected)
	}
	if len(tier) == 0 {
		return selected[:maxCount]
	}
	if len(tier) > maxCount {
		tier = tier[:maxCount]
	}
	return tier
}

// Apply filters candidates by explicit criteria and applies the criteria's
// own sort and limit.
func Apply(candidates []domain.Property, c *domain.FilterCriteria) []domain.Property {
	out := make([]domain.Property, 0, len(candidates))
	for _, p := range candidates {
		if !matches(p, c) {
			continue
		}
		out = append(out, p)
	}

	switch c.SortBy {
	case "priority":
		sortByPriority(out)
	case "recent":
		sortByRecency(out)
	case "name":
		sortByName(out)
	}

	if c.Limit > 0 && len(out) > c.Limit {
		out = out[:c.Limit]
	}
	return out
}

func matches(p domain.Property, c *domain.FilterCriteria) bool {
	if c.ActiveOnly && !p.Active {
		return false
	}
	if len(c.Priorities) > 0 && !containsPriority(c.Priorities, p.Priority) {
		return false
	}
	if len(c.Tags) > 0 && !hasAnyTag(p, c.Tags) {
		return false
	}
	if c.SearchQuery != "" {
		q := strings.ToLower(c.SearchQuery)
		if !strings.Contains(strings.ToLower(p.Name), q) &&
			!strings.Contains(strings.ToLower(p.ID), q) {
			return false
		}
	}
	return true
}

func containsPriority(priorities []domain.Priority, p domain.Priority) bool {
	for _, pr := range priorities {
		if pr == p {
			return true
		}
	}
	return false
}

func hasAnyTag(p domain.Property, tags []string) bool {
	for _, tag := range tags {
		if p.HasTag(tag) {
			return true
		}
	}
	return false
}

func highPriorityActive(candidates []domain.Property) []domain.Property {
	var out []domain.Property
	for _, p := range candidates {
		if p.Active && p.Priority == domain.PriorityHigh {
			out = append(out, p)
		}
	}
	sortByPriority(out)
	return out
}

func recentlyAccessedActive(candidates []domain.Property) []domain.Property {
	var out []domain.Property
	for _, p := range candidates {
		if p.Active {
			out = append(out, p)
		}
	}
	sortByRecency(out)
	return out
}

func sortByPriority(ps []domain.Property) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].Priority != ps[j].Priority {
			return ps[i].Priority > ps[j].Priority
		}
		return ps[i].Name < ps[j].Name
	})
}

func sortByRecency(ps []domain.Property) {
	sort.SliceStable(ps, func(i, j int) bool {
		if !ps[i].LastAccessedAt.Equal(ps[j].LastAccessedAt) {
			return ps[i].LastAccessedAt.After(ps[j].LastAccessedAt)
		}
		return ps[i].Name < ps[j].Name
	})
}

func sortByName(ps []domain.Property) {
	sort.SliceStable(ps, func(i, j int) bool {
		return ps[i].Name < ps[j].Name
	})
}
