// internal/queue/store.go

// Package queue is the crash-durable outbound message queue.
//
// On disk the queue is plain UTF-8 text made of line pairs:
//
//	// <label> at <timestamp>
//	<JSON payload>
//
// File order is delivery order. Blank lines and payload lines that are not
// valid JSON are skipped when scanning. An entry leaves the file only through
// Remove, which rewrites the file atomically.
package queue

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/codec"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/fault"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/filelock"
	"github.com/CREATIVE5-io/Hestia-IoT-web/internal/logging"
)

// TimeLayout is the timestamp format of the comment line.
const TimeLayout = "2006-01-02 15:04:05"

const commentPrefix = "//"

// Entry is one pending message.
type Entry struct {
	Label     string
	Timestamp string
	Payload   string

	line int // index of the payload line in the file
}

// Store owns one queue file. Every operation holds an in-process mutex and an
// exclusive advisory lock on a sibling ".lock" file, so producers and the
// worker in this or another process never interleave.
type Store struct {
	path string
	now  func() time.Time
	log  *logging.Logger

	mu sync.Mutex
}

// Open prepares a store at path. The file itself is created on first append.
func Open(path string, log *logging.Logger) (*Store, error) {
	if path == "" {
		return nil, errors.New("queue: path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fault.Persistence("queue open", err)
	}
	return &Store{path: path, now: time.Now, log: logging.OrDiscard(log)}, nil
}

// Path returns the queue file path.
func (s *Store) Path() string { return s.path }

// Append adds payload to the tail. payload is a JSON string, raw JSON, or a
// value to marshal; it must encode as single-line valid JSON.
func (s *Store) Append(label string, payload any) (Entry, error) {
	text, err := codec.MarshalPayload(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("queue: %w", err)
	}
	text = strings.TrimSpace(text)
	if strings.ContainsAny(text, "\r\n") {
		return Entry{}, errors.New("queue: payload must be a single line")
	}
	if !json.Valid([]byte(text)) {
		return Entry{}, errors.New("queue: payload is not valid JSON")
	}
	label = strings.Join(strings.Fields(label), " ")

	e := Entry{Label: label, Timestamp: s.now().Format(TimeLayout), Payload: text}
	record := fmt.Sprintf("%s %s at %s\n%s\n", commentPrefix, e.Label, e.Timestamp, e.Payload)

	err = s.locked(func() error {
		f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return err
		}
		if _, err := f.WriteString(record); err != nil {
			f.Close()
			return err
		}
		if err := f.Sync(); err != nil {
			f.Close()
			return err
		}
		return f.Close()
	})
	if err != nil {
		return Entry{}, fault.Persistence("queue append", err)
	}
	s.log.Verbose("queued %q (%d bytes)", e.Label, len(e.Payload))
	return e, nil
}

// Head returns the oldest deliverable entry. ok is false when there is none.
func (s *Store) Head() (e Entry, ok bool, err error) {
	err = s.locked(func() error {
		lines, err := s.readLines()
		if err != nil {
			return err
		}
		entries := scan(lines)
		if len(entries) > 0 {
			e, ok = entries[0], true
		}
		return nil
	})
	if err != nil {
		return Entry{}, false, fault.Persistence("queue head", err)
	}
	return e, ok, nil
}

// Entries returns every deliverable entry in delivery order.
func (s *Store) Entries() ([]Entry, error) {
	var out []Entry
	err := s.locked(func() error {
		lines, err := s.readLines()
		if err != nil {
			return err
		}
		out = scan(lines)
		return nil
	})
	if err != nil {
		return nil, fault.Persistence("queue entries", err)
	}
	return out, nil
}

// Remove deletes e and its comment line, preserving every other line in
// order. The file is replaced atomically. Removing an entry that is no longer
// present is not an error.
func (s *Store) Remove(e Entry) error {
	err := s.locked(func() error {
		lines, err := s.readLines()
		if err != nil {
			return err
		}

		idx := -1
		if e.line < len(lines) && strings.TrimSpace(lines[e.line]) == e.Payload {
			idx = e.line
		} else {
			for _, cand := range scan(lines) {
				if cand.Payload == e.Payload && cand.Timestamp == e.Timestamp {
					idx = cand.line
					break
				}
			}
		}
		if idx < 0 {
			s.log.Verbose("entry %q already gone", e.Label)
			return nil
		}

		drop := map[int]bool{idx: true}
		if idx > 0 && isComment(lines[idx-1]) {
			drop[idx-1] = true
		}

		var buf bytes.Buffer
		for i, l := range lines {
			if drop[i] {
				continue
			}
			buf.WriteString(l)
			buf.WriteByte('\n')
		}
		return s.replace(buf.Bytes())
	})
	if err != nil {
		return fault.Persistence("queue remove", err)
	}
	return nil
}

// Clear empties the queue.
func (s *Store) Clear() error {
	err := s.locked(func() error {
		return s.replace(nil)
	})
	if err != nil {
		return fault.Persistence("queue clear", err)
	}
	return nil
}

// locked runs fn under the mutex and the advisory file lock.
func (s *Store) locked(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filelock.With(s.path, fn)
}

func (s *Store) readLines() ([]string, error) {
	f, err := os.Open(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		lines = append(lines, strings.TrimRight(sc.Text(), "\r"))
	}
	return lines, sc.Err()
}

func (s *Store) replace(data []byte) error {
	return filelock.WriteAtomic(s.path, data, 0o644)
}

func isComment(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), commentPrefix)
}

// scan returns the deliverable entries of a queue file in order.
func scan(lines []string) []Entry {
	var (
		out     []Entry
		pending *Entry
	)
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case line == "":
			continue
		case isComment(line):
			label, ts := parseComment(line)
			pending = &Entry{Label: label, Timestamp: ts}
		case json.Valid([]byte(line)):
			e := Entry{Payload: line, line: i}
			if pending != nil && i > 0 && isComment(lines[i-1]) {
				e.Label, e.Timestamp = pending.Label, pending.Timestamp
			}
			out = append(out, e)
			pending = nil
		default:
			pending = nil
		}
	}
	return out
}

func parseComment(line string) (label, ts string) {
	body := strings.TrimSpace(strings.TrimPrefix(line, commentPrefix))
	if i := strings.LastIndex(body, " at "); i >= 0 {
		return body[:i], body[i+len(" at "):]
	}
	return body, ""
}
