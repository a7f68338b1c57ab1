package audit

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/blockbridge/internal/bridge"
)

const (
	defaultRecent = 50
	maxRecent     = 1000
)

// Store persists dispatch outcomes in the dispatch_log table.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Insert writes e. CreatedAt defaults to now.
func (s *Store) Insert(ctx context.Context, e Entry) error {
	if e.ID == "" {
		return fmt.Errorf("entry id is empty")
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}

	var result any
	if len(e.Result) > 0 {
		result = string(e.Result)
	}
	var errText any
	if e.Error != "" {
		errText = e.Error
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO dispatch_log(
  id, entry, event, wait, status, result, error, payload_digest, created_at, duration_ms
)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`, e.ID, e.Entry, e.Event, e.Wait, e.Status, result, errText, e.PayloadDigest,
		e.CreatedAt.UTC().Format(time.RFC3339Nano), e.DurationMS)
	if err != nil {
		return fmt.Errorf("insert dispatch log: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = defaultRecent
	}
	if limit > maxRecent {
		limit = maxRecent
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, entry, event, wait, status, result, error, payload_digest, created_at, duration_ms
FROM dispatch_log
ORDER BY created_at DESC, rowid DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query dispatch log: %w", err)
	}
	defer rows.Close()

	out := make([]Entry, 0, limit)
	for rows.Next() {
		var (
			e          Entry
			result     sql.NullString
			errText    sql.NullString
			digest     sql.NullString
			createdAtS string
		)
		if err := rows.Scan(&e.ID, &e.Entry, &e.Event, &e.Wait, &e.Status, &result, &errText, &digest, &createdAtS, &e.DurationMS); err != nil {
			return nil, fmt.Errorf("scan dispatch log: %w", err)
		}
		if result.Valid {
			e.Result = json.RawMessage(result.String)
		}
		e.Error = errText.String
		e.PayloadDigest = digest.String
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			e.CreatedAt = t
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dispatch log: %w", err)
	}
	return out, nil
}

// EntryFromOutcome converts a bridge outcome into a log row.
func EntryFromOutcome(o bridge.Outcome) Entry {
	e := Entry{
		ID:            o.RequestID,
		Entry:         string(o.Entry),
		Event:         o.Event,
		Wait:          o.Wait,
		Status:        string(o.Status),
		PayloadDigest: PayloadDigest(o.Payload),
		CreatedAt:     o.StartedAt,
		DurationMS:    o.Duration.Milliseconds(),
	}
	if o.Result != nil {
		if b, err := json.Marshal(o.Result); err == nil {
			e.Result = b
		}
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	return e
}

// PayloadDigest is the hex BLAKE3 of the payload's JSON encoding (map keys sorted).
// Empty or unencodable payloads digest to "".
func PayloadDigest(p bridge.Payload) string {
	if len(p) == 0 {
		return ""
	}
	b, err := json.Marshal(p)
	if err != nil {
		return ""
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
