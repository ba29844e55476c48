// internal/history/history.go

// Package history keeps the small key-value file the dashboard reads: the
// three most recent uplink attempts, the three most recent downlinks and the
// latest telemetry snapshot.
package history

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/fault"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/filelock"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/poller"
)

// RingSize is how many uplink and downlink records are kept.
const RingSize = 3

// TimeLayout formats record timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// UplinkRecord is one finished uplink attempt.
type UplinkRecord struct {
	Time     string `json:"time" yaml:"time"`
	Success  bool   `json:"success" yaml:"success"`
	Type     string `json:"type" yaml:"type"`
	Payload  string `json:"payload" yaml:"payload"`
	Response string `json:"response,omitempty" yaml:"response,omitempty"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

// DownlinkRecord is one received downlink.
type DownlinkRecord struct {
	Time   string `json:"time" yaml:"time"`
	Data   string `json:"data" yaml:"data"`
	Hex    bool   `json:"hex,omitempty" yaml:"hex,omitempty"` // Data is hex because the payload was not UTF-8
	Length int    `json:"length" yaml:"length"`
}

// Document is the whole file. Rings are newest first.
type Document struct {
	Uplinks    []UplinkRecord   `yaml:"uplink_messages"`
	Downlinks  []DownlinkRecord `yaml:"downlink_messages"`
	Snapshot   *poller.Snapshot `yaml:"snapshot,omitempty"`
	LastUpdate string           `yaml:"last_update,omitempty"`
}

// Store owns one history file.
type Store struct {
	path string
	now  func() time.Time

	mu sync.Mutex
}

// Open prepares a store at path. The file is created on first write.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("history: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fault.Persistence("history open", err)
	}
	return &Store{path: path, now: time.Now}, nil
}

// AddUplink prepends r, stamping it when Time is empty, and prunes the ring.
func (s *Store) AddUplink(r UplinkRecord) error {
	return s.update("history uplink", func(d *Document) {
		if r.Time == "" {
			r.Time = s.stamp()
		}
		d.Uplinks = prune(append([]UplinkRecord{r}, d.Uplinks...))
	})
}

// NewDownlinkRecord builds the record for data received at t, hex-encoding
// data when it is not valid UTF-8.
func NewDownlinkRecord(t time.Time, data []byte) DownlinkRecord {
	rec := DownlinkRecord{Time: t.Format(TimeLayout), Length: len(data)}
	if utf8.Valid(data) {
		rec.Data = string(data)
	} else {
		rec.Data, rec.Hex = hex.EncodeToString(data), true
	}
	return rec
}

// AddDownlink records data in the downlink ring.
func (s *Store) AddDownlink(data []byte) error {
	rec := NewDownlinkRecord(s.now(), data)
	return s.update("history downlink", func(d *Document) {
		d.Downlinks = prune(append([]DownlinkRecord{rec}, d.Downlinks...))
	})
}

// ClearDownlinks empties the downlink ring.
func (s *Store) ClearDownlinks() error {
	return s.update("history clear", func(d *Document) {
		d.Downlinks = nil
	})
}

// SetSnapshot replaces the latest telemetry snapshot.
func (s *Store) SetSnapshot(snap poller.Snapshot) error {
	return s.update("history snapshot", func(d *Document) {
		d.Snapshot = &snap
	})
}

// Load returns the current document. A missing file is an empty document.
func (s *Store) Load() (Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var doc Document
	err := filelock.With(s.path, func() error {
		var err error
		doc, err = s.read()
		return err
	})
	if err != nil {
		return Document{}, fault.Persistence("history load", err)
	}
	return doc, nil
}

func (s *Store) update(op string, fn func(*Document)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	err := filelock.With(s.path, func() error {
		doc, err := s.read()
		if err != nil {
			return err
		}
		fn(&doc)
		doc.LastUpdate = s.stamp()

		out, err := yaml.Marshal(&doc)
		if err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return filelock.WriteAtomic(s.path, out, 0o644)
	})
	if err != nil {
		return fault.Persistence(op, err)
	}
	return nil
}

func (s *Store) read() (Document, error) {
	var doc Document
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return doc, err
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Document{}, fmt.Errorf("decode: %w", err)
	}
	return doc, nil
}

func (s *Store) stamp() string {
	return s.now().Format(TimeLayout)
}

func prune[T any](ring []T) []T {
	if len(ring) > RingSize {
		return ring[:RingSize]
	}
	return ring
}
