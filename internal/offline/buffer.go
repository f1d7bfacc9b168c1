// Package offline owns the agent's durable local state: the buffered
// request log replayed after reconnection, the last-alive marker used
// for downtime recovery, and the connectivity probe.
package offline

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gdshr/attendance-agent/internal/common/logger"
)

// Entry is one buffered HR request, appended when its retries were
// exhausted and replayed in order once connectivity returns.
type Entry struct {
	Method    string          `json:"method"`
	URL       string          `json:"url"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// sameRequest reports whether two entries carry the same request,
// ignoring when they were buffered.
func (e Entry) sameRequest(o Entry) bool {
	return e.Method == o.Method && e.URL == o.URL && bytes.Equal(e.Payload, o.Payload)
}

// Buffer is an append-only JSONL file of failed requests. Safe for
// concurrent use: the tick loop and the annotate path both append.
type Buffer struct {
	mu   sync.Mutex
	path string
	log  *logger.Logger

	// last mirrors the final line on disk so Append can deduplicate
	// without rereading the file.
	last    *Entry
	hasLast bool
}

// NewBuffer opens (or prepares to create) the buffer at path.
func NewBuffer(path string, log *logger.Logger) *Buffer {
	b := &Buffer{path: path, log: log}
	entries, err := b.entriesLocked()
	if err == nil && len(entries) > 0 {
		b.last = &entries[len(entries)-1]
		b.hasLast = true
	}
	return b
}

// Append adds an entry unless it repeats the immediately preceding one.
// Retry loops that fail the same call repeatedly therefore buffer it
// once.
func (b *Buffer) Append(e Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.hasLast && b.last.sameRequest(e) {
		b.log.Debug("skipping duplicate buffered request",
			zap.String("method", e.Method),
			zap.String("url", e.URL))
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(b.path), 0o755); err != nil {
		return fmt.Errorf("create buffer dir: %w", err)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal buffered request: %w", err)
	}

	f, err := os.OpenFile(b.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open buffer: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("append buffered request: %w", err)
	}

	copied := e
	b.last = &copied
	b.hasLast = true

	b.log.Info("request buffered for replay",
		zap.String("method", e.Method),
		zap.String("url", e.URL))
	return nil
}

// Entries returns all buffered requests in original order. Lines that do
// not parse are dropped with a warning rather than poisoning replay.
func (b *Buffer) Entries() ([]Entry, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.entriesLocked()
}

func (b *Buffer) entriesLocked() ([]Entry, error) {
	f, err := os.Open(b.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open buffer: %w", err)
	}
	defer f.Close()

	var entries []Entry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			b.log.Warn("dropping corrupt buffer line", zap.Error(err))
			continue
		}
		entries = append(entries, e)
	}
	if err := scanner.Err(); err != nil {
		return entries, fmt.Errorf("read buffer: %w", err)
	}
	return entries, nil
}

// Rewrite replaces the buffer contents with the given entries. Replay
// uses it to drop the requests that succeeded while keeping the rest.
func (b *Buffer) Rewrite(entries []Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(entries) == 0 {
		if err := os.Remove(b.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove buffer: %w", err)
		}
		b.last = nil
		b.hasLast = false
		return nil
	}

	tmp := b.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open buffer temp: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, e := range entries {
		line, err := json.Marshal(e)
		if err != nil {
			f.Close()
			return fmt.Errorf("marshal buffered request: %w", err)
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush buffer temp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close buffer temp: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		return fmt.Errorf("replace buffer: %w", err)
	}

	copied := entries[len(entries)-1]
	b.last = &copied
	b.hasLast = true
	return nil
}

// Len returns the number of buffered requests.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	entries, err := b.entriesLocked()
	if err != nil {
		return 0
	}
	return len(entries)
}
