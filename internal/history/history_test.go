// internal/history/history_test.go
package history

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/fault"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/poller"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/status"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "hestia_info.yaml"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	s.now = func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }
	return s
}

func TestUplinkRingKeepsNewestThree(t *testing.T) {
	s := openStore(t)
	for i := 1; i <= 5; i++ {
		err := s.AddUplink(UplinkRecord{Success: i%2 == 0, Type: "Location data", Payload: fmt.Sprintf(`{"n":%d}`, i)})
		if err != nil {
			t.Fatalf("AddUplink: %v", err)
		}
	}

	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Uplinks) != RingSize {
		t.Fatalf("%d uplinks kept", len(doc.Uplinks))
	}
	if doc.Uplinks[0].Payload != `{"n":5}` || doc.Uplinks[2].Payload != `{"n":3}` {
		t.Fatalf("ring order %+v", doc.Uplinks)
	}
	if doc.Uplinks[0].Time != "2025-03-01 08:00:00" {
		t.Fatalf("time %q", doc.Uplinks[0].Time)
	}
	if doc.Uplinks[1].Success != true {
		t.Fatalf("success flag lost")
	}
}

func TestDownlinkRingAndClear(t *testing.T) {
	s := openStore(t)
	for _, d := range []string{"a", "b", "c", "d"} {
		if err := s.AddDownlink([]byte(d)); err != nil {
			t.Fatalf("AddDownlink: %v", err)
		}
	}
	if err := s.AddDownlink([]byte{0xff, 0x00}); err != nil {
		t.Fatalf("AddDownlink: %v", err)
	}

	doc, _ := s.Load()
	if len(doc.Downlinks) != RingSize {
		t.Fatalf("%d downlinks kept", len(doc.Downlinks))
	}
	first := doc.Downlinks[0]
	if !first.Hex || first.Data != "ff00" || first.Length != 2 {
		t.Fatalf("binary downlink %+v", first)
	}
	if doc.Downlinks[1].Data != "d" || doc.Downlinks[1].Hex {
		t.Fatalf("text downlink %+v", doc.Downlinks[1])
	}

	if err := s.ClearDownlinks(); err != nil {
		t.Fatalf("ClearDownlinks: %v", err)
	}
	doc, _ = s.Load()
	if len(doc.Downlinks) != 0 {
		t.Fatalf("downlinks not cleared")
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	s := openStore(t)
	st := status.Decode(0x1F, status.ModeUDP)
	avail := true
	snap := poller.Snapshot{
		At:              time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		Status:          &st,
		UploadAvailable: &avail,
	}
	if err := s.SetSnapshot(snap); err != nil {
		t.Fatalf("SetSnapshot: %v", err)
	}

	// A second handle on the same file sees it.
	r, err := Open(s.path)
	if err != nil {
		t.Fatal(err)
	}
	doc, err := r.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Snapshot == nil || doc.Snapshot.Status == nil || !doc.Snapshot.Status.AllReady {
		t.Fatalf("snapshot %+v", doc.Snapshot)
	}
	if doc.LastUpdate == "" {
		t.Fatalf("last_update not set")
	}
}

func TestLoadMissingFile(t *testing.T) {
	s := openStore(t)
	doc, err := s.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(doc.Uplinks) != 0 || doc.Snapshot != nil {
		t.Fatalf("expected empty document, got %+v", doc)
	}
}

func TestCorruptFileIsPersistenceFailure(t *testing.T) {
	s := openStore(t)
	if err := os.WriteFile(s.path, []byte("uplink_messages: [unterminated"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.AddDownlink([]byte("x")); !errors.Is(err, fault.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
}
