package repository

import (
    "context"
    "database/sql"
    "encoding/json"
    "fmt"
    "time"
)

// JournalRepo records move-mode events in the move_journal table so that
// operators can later see what happened to a reservation during a session.
type JournalRepo struct {
    db *sql.DB
}

// NewJournalRepo returns a JournalRepo bound to db.
func NewJournalRepo(db *sql.DB) *JournalRepo { return &JournalRepo{db: db} }

// JournalEntry mirrors a move_journal row.  ReservationID is 0 for events
// that are not about a single reservation, such as pool updates.
type JournalEntry struct {
    ID            uint64    `json:"id"`
    EventType     string    `json:"event_type"`
    ReservationID uint64    `json:"reservation_id,omitempty"`
    Date          string    `json:"date,omitempty"`          // session date, YYYY-MM-DD
    ActionKind    string    `json:"action_kind,omitempty"`   // assign | unassign, move and undo events
    FurnitureIDs  []uint64  `json:"furniture_ids,omitempty"` // stored as a JSON array
    ErrorType     string    `json:"error_type,omitempty"`
    Message       string    `json:"message,omitempty"`
    PoolSize      int       `json:"pool_size"`
    OccurredAt    time.Time `json:"occurred_at"`
}

const journalSchema = `CREATE TABLE IF NOT EXISTS move_journal (
    id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
    event_type     VARCHAR(32)     NOT NULL,
    reservation_id BIGINT UNSIGNED NULL,
    session_date   DATE            NULL,
    action_kind    VARCHAR(16)     NULL,
    furniture_ids  JSON            NULL,
    error_type     VARCHAR(32)     NULL,
    message        VARCHAR(512)    NULL,
    pool_size      INT             NOT NULL DEFAULT 0,
    occurred_at    DATETIME(3)     NOT NULL,
    KEY idx_move_journal_reservation (reservation_id, occurred_at)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`

// EnsureSchema creates move_journal when it does not exist yet.
func (r *JournalRepo) EnsureSchema(ctx context.Context) error {
    if _, err := r.db.ExecContext(ctx, journalSchema); err != nil {
        return fmt.Errorf("create move_journal: %w", err)
    }
    return nil
}

// Insert stores e and sets its ID.
func (r *JournalRepo) Insert(ctx context.Context, e *JournalEntry) error {
    if e == nil || e.EventType == "" || e.OccurredAt.IsZero() {
        return ErrInvalidEntry
    }
    ids, err := encodeIDs(e.FurnitureIDs)
    if err != nil {
        return err
    }
    const q = `INSERT INTO move_journal
        (event_type, reservation_id, session_date, action_kind, furniture_ids, error_type, message, pool_size, occurred_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
    res, err := r.db.ExecContext(ctx, q,
        e.EventType, nullID(e.ReservationID), nullStr(e.Date), nullStr(e.ActionKind),
        ids, nullStr(e.ErrorType), nullStr(truncate(e.Message, 512)), e.PoolSize, e.OccurredAt.UTC(),
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    e.ID = uint64(id)
    return nil
}

// ListByReservation returns the newest entries for a reservation, newest
// first.  limit values below 1 default to 50.
func (r *JournalRepo) ListByReservation(ctx context.Context, reservationID uint64, limit int) ([]JournalEntry, error) {
    if limit < 1 {
        limit = 50
    }
    const q = `SELECT id, event_type, reservation_id, DATE_FORMAT(session_date, '%Y-%m-%d'),
        action_kind, furniture_ids, error_type, message, pool_size, occurred_at
        FROM move_journal WHERE reservation_id = ? ORDER BY occurred_at DESC, id DESC LIMIT ?`
    rows, err := r.db.QueryContext(ctx, q, reservationID, limit)
    if err != nil {
        return nil, err
    }
    defer rows.Close()

    var out []JournalEntry
    for rows.Next() {
        var (
            e                                 JournalEntry
            resID                             sql.NullInt64
            date, kind, ids, errType, message sql.NullString
        )
        if err := rows.Scan(&e.ID, &e.EventType, &resID, &date, &kind, &ids, &errType, &message, &e.PoolSize, &e.OccurredAt); err != nil {
            return nil, err
        }
        e.ReservationID = uint64(resID.Int64)
        e.Date, e.ActionKind = date.String, kind.String
        e.ErrorType, e.Message = errType.String, message.String
        if e.FurnitureIDs, err = decodeIDs(ids); err != nil {
            return nil, err
        }
        out = append(out, e)
    }
    return out, rows.Err()
}

func encodeIDs(ids []uint64) (sql.NullString, error) {
    if len(ids) == 0 {
        return sql.NullString{}, nil
    }
    b, err := json.Marshal(ids)
    if err != nil {
        return sql.NullString{}, err
    }
    return sql.NullString{String: string(b), Valid: true}, nil
}

func decodeIDs(s sql.NullString) ([]uint64, error) {
    if !s.Valid || s.String == "" {
        return nil, nil
    }
    var ids []uint64
    if err := json.Unmarshal([]byte(s.String), &ids); err != nil {
        return nil, fmt.Errorf("decode furniture_ids: %w", err)
    }
    return ids, nil
}

func nullID(id uint64) sql.NullInt64 {
    if id == 0 {
        return sql.NullInt64{}
    }
    return sql.NullInt64{Int64: int64(id), Valid: true}
}

func nullStr(s string) sql.NullString {
    if s == "" {
        return sql.NullString{}
    }
    return sql.NullString{String: s, Valid: true}
}

func truncate(s string, n int) string {
    r := []rune(s)
    if len(r) <= n {
        return s
    }
    return string(r[:n])
}
