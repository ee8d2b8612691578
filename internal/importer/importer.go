package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"breakcal/internal/ics"
	appLog "breakcal/internal/log"
	"breakcal/internal/metrics"
	"breakcal/internal/model"
)

// Import origins, also used as metric labels.
const (
	OriginFile         = "file"
	OriginUpload       = "upload"
	OriginSubscription = "subscription"
)

// Store is the persistence the importer writes parsed batches into.
type Store interface {
	Append(ctx context.Context, sourceID string, events []model.CalendarEvent) (int, error)
	ReplaceSource(ctx context.Context, sourceID string, events []model.CalendarEvent) (int, error)
}

// Importer parses payloads and hands complete batches to the store. A
// payload that fails to parse never reaches the store.
type Importer struct {
	store   Store
	loc     *time.Location
	metrics *metrics.Metrics
}

// New creates an Importer. m may be nil.
func New(store Store, loc *time.Location, m *metrics.Metrics) *Importer {
	if loc == nil {
		loc = time.Local
	}
	return &Importer{store: store, loc: loc, metrics: m}
}

// ImportFile reads and appends a calendar export from disk. The source ID
// is "file:<base name>".
func (i *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	body, err := ics.ReadFile(path)
	if err != nil {
		i.metrics.ObserveImport(OriginFile, 0, err)
		return 0, err
	}
	return i.Import(ctx, OriginFile, "file:"+filepath.Base(path), body)
}

// Import parses body and appends the events under sourceID.
func (i *Importer) Import(ctx context.Context, origin, sourceID string, body []byte) (int, error) {
	n, err := i.run(ctx, sourceID, body, i.store.Append)
	i.metrics.ObserveImport(origin, n, err)
	if err != nil {
		return 0, err
	}
	appLog.Info("import completed", "origin", origin, "source", sourceID, "events", n)
	return n, nil
}

// Sync parses a subscription payload and replaces that subscription's
// previously stored events. On any error the stored events are kept.
func (i *Importer) Sync(ctx context.Context, sub ics.Subscription, body []byte) (int, error) {
	n, err := i.run(ctx, SubscriptionSource(sub), body, i.store.ReplaceSource)
	i.metrics.ObserveImport(OriginSubscription, n, err)
	if err != nil {
		return 0, err
	}
	appLog.Info("subscription synced", "id", sub.ID, "events", n)
	return n, nil
}

type writeFunc func(ctx context.Context, sourceID string, events []model.CalendarEvent) (int, error)

func (i *Importer) run(ctx context.Context, sourceID string, body []byte, write writeFunc) (int, error) {
	events, err := ics.Parse(body, i.loc)
	if err != nil {
		return 0, fmt.Errorf("import %s: %w", sourceID, err)
	}
	n, err := write(ctx, sourceID, events)
	if err != nil {
		return 0, fmt.Errorf("store %s: %w", sourceID, err)
	}
	return n, nil
}

// SubscriptionSource is the store source ID used for a subscription.
func SubscriptionSource(sub ics.Subscription) string {
	return "sub:" + sub.ID
}
