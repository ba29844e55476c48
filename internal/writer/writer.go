// internal/writer/writer.go
package writer

import (
	"errors"
	"fmt"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/poller"
)

// SnapshotStore keeps the latest snapshot; history.Store satisfies it.
type SnapshotStore interface {
	SetSnapshot(s poller.Snapshot) error
}

type historyWriter struct {
	store SnapshotStore
}

// NewHistoryWriter stores every snapshot as the latest one.
// Snapshots where every group failed are not stored, so the file keeps the
// last good reading.
func NewHistoryWriter(store SnapshotStore) Writer {
	return &historyWriter{store: store}
}

func (w *historyWriter) Write(s poller.Snapshot) error {
	if s.Status == nil && s.UploadAvailable == nil && s.Telemetry == nil && s.LoRa == nil {
		return fmt.Errorf("writer: nothing read: %w", s.Err())
	}
	return w.store.SetSnapshot(s)
}

type multi []Writer

// Multi fans a snapshot out to every non-nil writer. All writers run; their
// errors are joined.
func Multi(ws ...Writer) Writer {
	var m multi
	for _, w := range ws {
		if w != nil {
			m = append(m, w)
		}
	}
	return m
}

func (m multi) Write(s poller.Snapshot) error {
	var errs []error
	for _, w := range m {
		if err := w.Write(s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
