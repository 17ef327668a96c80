// Package recorder journals network traffic as zstd-compressed JSON lines
// so a session's snapshot stream can be replayed through a jitter buffer
// offline.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/automoto/bodysync/jitter"
	"github.com/automoto/bodysync/shared/messages"
	"github.com/automoto/bodysync/shared/netconfig"
	"github.com/klauspost/compress/zstd"
)

type Kind string

const (
	KindSnapshot  Kind = "snapshot"
	KindUpload    Kind = "upload"
	KindOwnership Kind = "ownership"
)

// Entry is one journal line. Exactly one payload is set, matching Kind.
type Entry struct {
	Kind      Kind                            `json:"kind"`
	Received  time.Time                       `json:"received"`
	Source    netconfig.SourceID              `json:"source"`
	Snapshot  *messages.Snapshot              `json:"snapshot,omitempty"`
	Upload    *messages.ServerTransformUpload `json:"upload,omitempty"`
	Ownership *messages.SetOwnership          `json:"ownership,omitempty"`
}

// Writer appends entries to hourly files under a directory. It is safe for
// concurrent use.
type Writer struct {
	baseDir string
	prefix  string
	now     func() time.Time

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, prefix string) *Writer {
	return &Writer{baseDir: baseDir, prefix: prefix, now: time.Now}
}

func (w *Writer) RecordSnapshot(src netconfig.SourceID, s messages.Snapshot) error {
	return w.Write(Entry{Kind: KindSnapshot, Source: src, Snapshot: &s})
}

func (w *Writer) RecordUpload(src netconfig.SourceID, u messages.ServerTransformUpload) error {
	return w.Write(Entry{Kind: KindUpload, Source: src, Upload: &u})
}

func (w *Writer) RecordOwnership(src netconfig.SourceID, o messages.SetOwnership) error {
	return w.Write(Entry{Kind: KindOwnership, Source: src, Ownership: &o})
}

// Write appends e, stamping Received when it is unset.
func (w *Writer) Write(e Entry) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now().UTC()
	if e.Received.IsZero() {
		e.Received = now
	}
	hour := now.Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	if err := os.MkdirAll(w.baseDir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err
}

func (w *Writer) pathForHour(hour string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
}

// Files lists the journal files for prefix in dir, oldest first.
func Files(dir, prefix string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, prefix+"-*.jsonl.zst"))
}

// ReadFile calls fn for every entry in path, in order.
func ReadFile(path string, fn func(Entry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		var e Entry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return fmt.Errorf("%s:%d: %w", path, line, err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return sc.Err()
}

// Replay feeds every recorded snapshot in path into buf and returns how many
// were fed.
func Replay(path string, buf *jitter.Buffer) (int, error) {
	n := 0
	err := ReadFile(path, func(e Entry) error {
		if e.Kind == KindSnapshot && e.Snapshot != nil {
			buf.AddSnapshot(e.Source, *e.Snapshot)
			n++
		}
		return nil
	})
	return n, err
}
