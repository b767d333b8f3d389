package port

import (
	"context"

	"github.com/trafficlens/metricsync/internal/domain"
)

// ReportFetcher fetches one report from the upstream reporting API. It is
// expected to honor ctx cancellation and to apply its own rate limiting,
// timeout and retry policy; the engine treats any returned error as opaque.
type ReportFetcher interface {
	FetchReport(ctx context.Context, propertyID string, r domain.DateRange) (*domain.Report, error)
}

// PropertyCatalog lists the analytics properties available upstream.
type PropertyCatalog interface {
	ListProperties(ctx context.Context) ([]domain.Property, error)
}

// PreferenceStore persists named filter criteria per user.
type PreferenceStore interface {
	SaveCriteria(userID, name string, c domain.FilterCriteria) error
	GetCriteria(userID, name string) (*domain.FilterCriteria, error)
	ListCriteria(userID string) (map[string]domain.FilterCriteria, error)
	DeleteCriteria(userID, name string) error
}
