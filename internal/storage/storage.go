package storage

import (
	"context"

	"vaultwatch/internal/model"
)

// AlertSink is a write-only mirror for confirmed alerts. Sinks are never
// read back by the process; the on-chain registry stays the source of
// truth.
type AlertSink interface {
	SaveAlert(ctx context.Context, alert model.Alert) error
}

// MultiSink fans one alert out to several sinks, collecting the first
// error without skipping the remaining sinks.
type MultiSink []AlertSink

// SaveAlert writes the alert to every sink.
func (m MultiSink) SaveAlert(ctx context.Context, alert model.Alert) error {
	var first error
	for _, sink := range m {
		if err := sink.SaveAlert(ctx, alert); err != nil && first == nil {
			first = err
		}
	}
	return first
}
