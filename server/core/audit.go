package core

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/automoto/bodysync/shared/netconfig"
	_ "modernc.org/sqlite"
)

// AuditKind names the event that moved a body between sources.
type AuditKind string

const (
	AuditSpawn      AuditKind = "spawn"
	AuditTransfer   AuditKind = "transfer"
	AuditDisconnect AuditKind = "disconnect"
	AuditRemove     AuditKind = "remove"
)

// AuditEntry is one row of the ownership log.
type AuditEntry struct {
	At   time.Time
	Kind AuditKind
	Body netconfig.BodyID
	From netconfig.SourceID
	To   netconfig.SourceID
	By   netconfig.SourceID // Source whose message caused the change
}

// AuditLog appends ownership changes to a SQLite database off the relay's
// hot path. Writes are batched in a transaction by a single goroutine and
// dropped when it falls behind; the recorder journal stays authoritative.
type AuditLog struct {
	db   *sql.DB
	path string

	mu     sync.RWMutex
	closed bool
	ch     chan AuditEntry
	wg     sync.WaitGroup
	once   sync.Once
}

// OpenAudit opens (or creates) the log at path.
func OpenAudit(path string) (*AuditLog, error) {
	if path == "" {
		return nil, fmt.Errorf("empty audit path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initAuditDB(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &AuditLog{db: db, path: path, ch: make(chan AuditEntry, 4096)}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.loop()
	}()
	return a, nil
}

func initAuditDB(db *sql.DB) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		`CREATE TABLE IF NOT EXISTS ownership (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			at_unix_ms INTEGER NOT NULL,
			kind TEXT NOT NULL,
			body TEXT NOT NULL,
			from_source TEXT NOT NULL,
			to_source TEXT NOT NULL,
			by_source TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS ownership_body ON ownership(body, seq);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return fmt.Errorf("audit schema: %w", err)
		}
	}
	return nil
}

// Record enqueues e without blocking. Safe on a nil log.
func (a *AuditLog) Record(e AuditEntry) {
	if a == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return
	}
	select {
	case a.ch <- e:
	default:
		log.Printf("[audit] warning: queue full, dropping %s %s", e.Kind, e.Body)
	}
}

// History returns every change recorded for body, oldest first. Entries still
// queued or in the open batch are not visible until committed.
func (a *AuditLog) History(ctx context.Context, body netconfig.BodyID) ([]AuditEntry, error) {
	rows, err := a.db.QueryContext(ctx,
		`SELECT at_unix_ms, kind, body, from_source, to_source, by_source
		 FROM ownership WHERE body = ? ORDER BY seq`, string(body))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var ms int64
		var kind, b, from, to, by string
		if err := rows.Scan(&ms, &kind, &b, &from, &to, &by); err != nil {
			return nil, err
		}
		out = append(out, AuditEntry{
			At:   time.UnixMilli(ms),
			Kind: AuditKind(kind),
			Body: netconfig.BodyID(b),
			From: netconfig.SourceID(from),
			To:   netconfig.SourceID(to),
			By:   netconfig.SourceID(by),
		})
	}
	return out, rows.Err()
}

// Path is the database file backing the log.
func (a *AuditLog) Path() string { return a.path }

// Close flushes pending entries and closes the database.
func (a *AuditLog) Close() error {
	if a == nil {
		return nil
	}
	var err error
	a.once.Do(func() {
		a.mu.Lock()
		a.closed = true
		close(a.ch)
		a.mu.Unlock()
		a.wg.Wait()
		err = a.db.Close()
	})
	return err
}

func (a *AuditLog) loop() {
	const (
		commitEvery   = 256
		commitMaxWait = time.Second
	)
	var (
		tx      *sql.Tx
		pending int
	)
	commit := func() {
		if tx == nil {
			return
		}
		if err := tx.Commit(); err != nil {
			log.Printf("[audit] warning: commit: %v", err)
		}
		tx = nil
		pending = 0
	}

	ticker := time.NewTicker(commitMaxWait)
	defer ticker.Stop()

	for {
		select {
		case e, ok := <-a.ch:
			if !ok {
				commit()
				return
			}
			if tx == nil {
				var err error
				if tx, err = a.db.Begin(); err != nil {
					log.Printf("[audit] warning: begin: %v", err)
					continue
				}
			}
			_, err := tx.Exec(
				`INSERT INTO ownership(at_unix_ms, kind, body, from_source, to_source, by_source) VALUES(?,?,?,?,?,?)`,
				e.At.UnixMilli(), string(e.Kind), string(e.Body), string(e.From), string(e.To), string(e.By))
			if err != nil {
				log.Printf("[audit] warning: insert %s: %v", e.Body, err)
				continue
			}
			pending++
			if pending >= commitEvery {
				commit()
			}
		case <-ticker.C:
			commit()
		}
	}
}
