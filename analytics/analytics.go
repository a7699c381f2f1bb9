package analytics

import (
	"database/sql"
	"log"
	"sync"
	"time"
)

// Event types for lifecycle tracking
const (
	EvtGalaxyCreated   = "galaxy_created"
	EvtGalaxyDestroyed = "galaxy_destroyed"
	EvtSessionJoined   = "session_joined"
	EvtSessionLeft     = "session_left"
	EvtHyperspace      = "hyperspace"
	EvtCraftDestroyed  = "craft_destroyed"
)

const (
	eventBuffer = 1024
	flushBatch  = 50
)

// FlushInterval is how often a partial batch is written
var FlushInterval = 5 * time.Second

// Event represents a single trackable event
type Event struct {
	Type      string
	GalaxyID  string
	EntityID  uint32
	Data      string
	Timestamp time.Time
}

// Analytics records events with batched background writes
type Analytics struct {
	db     *DB
	events chan Event
	stop   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// NewAnalytics creates and starts the background writer
func NewAnalytics(db *DB) *Analytics {
	a := &Analytics{
		db:     db,
		events: make(chan Event, eventBuffer),
		stop:   make(chan struct{}),
	}
	a.wg.Add(1)
	go a.writer()
	return a
}

// Track enqueues an event for async persistence (non-blocking)
func (a *Analytics) Track(evtType, galaxyID string, entityID uint32, data string) {
	if a == nil {
		return
	}
	select {
	case <-a.stop:
		return
	default:
	}
	select {
	case a.events <- Event{
		Type:      evtType,
		GalaxyID:  galaxyID,
		EntityID:  entityID,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}:
	default:
		// Channel full, drop the event rather than stall a tick
	}
}

// Stop flushes queued events and shuts the writer down
func (a *Analytics) Stop() {
	a.once.Do(func() {
		close(a.stop)
		a.wg.Wait()
	})
}

// writer is the background goroutine that batches and writes events
func (a *Analytics) writer() {
	defer a.wg.Done()

	batch := make([]Event, 0, flushBatch)
	ticker := time.NewTicker(FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case evt := <-a.events:
			batch = append(batch, evt)
			if len(batch) >= flushBatch {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-ticker.C:
			if len(batch) > 0 {
				a.flush(batch)
				batch = batch[:0]
			}
		case <-a.stop:
			for {
				select {
				case evt := <-a.events:
					batch = append(batch, evt)
				default:
					a.flush(batch)
					return
				}
			}
		}
	}
}

// flush writes a batch of events in one transaction
func (a *Analytics) flush(events []Event) {
	if a.db == nil || len(events) == 0 {
		return
	}
	tx, err := a.db.conn.Begin()
	if err != nil {
		log.Printf("analytics: begin tx error: %v", err)
		return
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO events (event_type, galaxy_id, entity_id, data, created_at) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		log.Printf("analytics: prepare error: %v", err)
		return
	}
	defer stmt.Close()

	for _, evt := range events {
		gid := sql.NullString{String: evt.GalaxyID, Valid: evt.GalaxyID != ""}
		eid := sql.NullInt64{Int64: int64(evt.EntityID), Valid: evt.EntityID != 0}
		data := sql.NullString{String: evt.Data, Valid: evt.Data != ""}
		if _, err := stmt.Exec(evt.Type, gid, eid, data, evt.Timestamp.Format(time.RFC3339)); err != nil {
			log.Printf("analytics: insert error: %v", err)
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("analytics: commit error: %v", err)
	}
}

// Counts returns the number of stored events per type
func (a *Analytics) Counts() (map[string]int, error) {
	counts := make(map[string]int)
	if a.db == nil {
		return counts, nil
	}
	rows, err := a.db.conn.Query(`SELECT event_type, COUNT(*) FROM events GROUP BY event_type`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		counts[typ] = n
	}
	return counts, rows.Err()
}

// GalaxyEvents returns the event types recorded for one galaxy, oldest first
func (a *Analytics) GalaxyEvents(galaxyID string) ([]string, error) {
	if a.db == nil {
		return nil, nil
	}
	rows, err := a.db.conn.Query(`SELECT event_type FROM events WHERE galaxy_id = ? ORDER BY id`, galaxyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var typ string
		if err := rows.Scan(&typ); err != nil {
			return nil, err
		}
		out = append(out, typ)
	}
	return out, rows.Err()
}
