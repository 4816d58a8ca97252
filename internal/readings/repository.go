package readings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/plantpot-core/internal/telemetry"
)

const (
	// DefaultHistoryLimit is used when a history query gives no limit.
	DefaultHistoryLimit = 50

	// MaxHistoryLimit caps a single history query.
	MaxHistoryLimit = 500
)

// timestampLayout sorts lexically in chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000000Z"

// Repository stores and retrieves readings.
//
// Implementations must be thread-safe and use UTC timestamps. An empty
// deviceID matches every device.
type Repository interface {
	// Create inserts rec.
	Create(ctx context.Context, rec *Record) error

	// Latest returns the most recently stored record, or ErrNotFound.
	Latest(ctx context.Context, deviceID string) (*Record, error)

	// History returns up to limit records, newest first. Limits outside
	// 1..MaxHistoryLimit are clamped; 0 means DefaultHistoryLimit.
	History(ctx context.Context, deviceID string, limit int) ([]Record, error)

	// Prune deletes records created before cutoff and returns how many.
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed readings repository.
//
// Parameters:
//   - db: Open SQLite connection with the readings migration applied
//
// Returns:
//   - *SQLiteRepository: Repository instance ready for use
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts a new record.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - rec: Record to insert; ID, DeviceID and Emotion must be set
//
// Returns:
//   - error: ErrInvalidReading for missing identity fields, otherwise the
//     underlying database error
func (r *SQLiteRepository) Create(ctx context.Context, rec *Record) error {
	if rec.ID == "" || rec.DeviceID == "" || rec.Emotion == "" {
		return fmt.Errorf("%w: id, device id and emotion are required", ErrInvalidReading)
	}
	if rec.Source == "" {
		rec.Source = SourceAPI
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = rec.CreatedAt
	}

	const query = `INSERT INTO readings (id, device_id, moisture, temperature, light,
		emotion, source, recorded_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query,
		rec.ID, rec.DeviceID, rec.Moisture, rec.Temperature, rec.Light,
		string(rec.Emotion), string(rec.Source),
		formatTimestamp(rec.RecordedAt), formatTimestamp(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("inserting reading %s: %w", rec.ID, err)
	}
	return nil
}

// Latest returns the newest record.
func (r *SQLiteRepository) Latest(ctx context.Context, deviceID string) (*Record, error) {
	records, err := r.History(ctx, deviceID, 1)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return &records[0], nil
}

// History returns recent records ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - deviceID: Device to filter on, or "" for all devices
//   - limit: Maximum records to return (default 50, max 500)
//
// Returns:
//   - []Record: Records ordered by created_at DESC (may be empty)
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteRepository) History(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	limit = clampLimit(limit)

	query := `SELECT id, device_id, moisture, temperature, light, emotion, source,
		recorded_at, created_at FROM readings`
	args := []any{}
	if deviceID != "" {
		query += ` WHERE device_id = ?`
		args = append(args, deviceID)
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying readings: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, limit)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating readings: %w", err)
	}
	return records, nil
}

// Prune deletes records created before cutoff.
func (r *SQLiteRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM readings WHERE created_at < ?", formatTimestamp(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting readings: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}
	return n, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		return MaxHistoryLimit
	}
	return limit
}

func scanRecord(rows *sql.Rows) (*Record, error) {
	var (
		rec                   Record
		emotion, source       string
		recordedAt, createdAt string
	)
	if err := rows.Scan(&rec.ID, &rec.DeviceID, &rec.Moisture, &rec.Temperature, &rec.Light,
		&emotion, &source, &recordedAt, &createdAt); err != nil {
		return nil, fmt.Errorf("scanning reading: %w", err)
	}
	rec.Emotion = telemetry.Emotion(emotion)
	rec.Source = Source(source)

	var err error
	if rec.RecordedAt, err = parseTimestamp(recordedAt); err != nil {
		return nil, fmt.Errorf("parsing recorded_at: %w", err)
	}
	if rec.CreatedAt, err = parseTimestamp(createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &rec, nil
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// parseTimestamp accepts the stored layout and plain RFC 3339.
func parseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if t, err := time.Parse(timestampLayout, value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339Nano, value)
}
