// Package journal keeps a local history of request cycles in sqlite so a
// long-running client can be inspected after the fact ("what did it hear
// at 3am, and what failed").
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is an append-only cycle log.
type Journal struct {
	db *sql.DB
}

// Cycle is one wake-to-reply round trip. FailStage is empty for successful
// cycles, otherwise the stage that broke ("stt", "ask", "audio", "wake").
type Cycle struct {
	ID         int64
	WakeWord   string
	Persona    string
	Transcript string
	Reply      string
	FailStage  string
	CreatedAt  time.Time
}

// Open opens (or creates) the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS cycles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			wake_word TEXT NOT NULL,
			persona TEXT NOT NULL,
			transcript TEXT,
			reply TEXT,
			fail_stage TEXT DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT (unixepoch())
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create journal schema: %w", err)
	}
	return &Journal{db: db}, nil
}

// Append records one finished cycle.
func (j *Journal) Append(wakeWord, persona, transcript, reply, failStage string) error {
	_, err := j.db.Exec(`
		INSERT INTO cycles (wake_word, persona, transcript, reply, fail_stage, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		wakeWord, persona, transcript, reply, failStage, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("append cycle: %w", err)
	}
	return nil
}

// Recent returns the newest cycles, most recent first.
func (j *Journal) Recent(limit int) ([]Cycle, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := j.db.Query(`
		SELECT id, wake_word, persona, COALESCE(transcript, ''), COALESCE(reply, ''), fail_stage, created_at
		FROM cycles ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []Cycle
	for rows.Next() {
		var c Cycle
		var unix int64
		if err := rows.Scan(&c.ID, &c.WakeWord, &c.Persona, &c.Transcript, &c.Reply, &c.FailStage, &unix); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		c.CreatedAt = time.Unix(unix, 0)
		out = append(out, c)
	}
	return out, rows.Err()
}

// Close releases the database handle.
func (j *Journal) Close() error {
	return j.db.Close()
}
