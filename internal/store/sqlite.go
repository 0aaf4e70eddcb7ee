package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/enph353/labeller/internal/labels"
)

// SQLiteStore keeps labels and scan history in the agent database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) Load(ctx context.Context, video string) (*labels.Document, error) {
	var videoID int64
	err := s.db.QueryRowContext(ctx, "SELECT id FROM videos WHERE path = ?", video).Scan(&videoID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc := labels.NewDocument()

	rows, err := s.db.QueryContext(ctx, "SELECT slot, text FROM plates WHERE video_id = ?", videoID)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var slot int
		var text string
		if err := rows.Scan(&slot, &text); err != nil {
			rows.Close()
			return nil, err
		}
		doc.Plates[slot] = text
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx, "SELECT frame, label FROM frame_labels WHERE video_id = ?", videoID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var frame int
		var label string
		if err := rows.Scan(&frame, &label); err != nil {
			return nil, err
		}
		if !json.Valid([]byte(label)) {
			return nil, fmt.Errorf("%w: frame %d of %s", labels.ErrMalformedDocument, frame, video)
		}
		doc.Frames[frame] = json.RawMessage(label)
	}
	return doc, rows.Err()
}

// Save replaces everything stored for video with doc in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, video string, doc *labels.Document) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO videos (path, created_at, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET updated_at = excluded.updated_at
	`, video, now, now); err != nil {
		return fmt.Errorf("upsert video: %w", err)
	}

	var videoID int64
	if err := tx.QueryRowContext(ctx, "SELECT id FROM videos WHERE path = ?", video).Scan(&videoID); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM plates WHERE video_id = ?", videoID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM frame_labels WHERE video_id = ?", videoID); err != nil {
		return err
	}

	for slot, text := range doc.Plates {
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO plates (video_id, slot, text) VALUES (?, ?, ?)", videoID, slot, text); err != nil {
			return fmt.Errorf("insert plate %d: %w", slot, err)
		}
	}
	for frame, raw := range doc.Frames {
		label := string(raw)
		if len(raw) == 0 {
			label = "null"
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO frame_labels (video_id, frame, label) VALUES (?, ?, ?)", videoID, frame, label); err != nil {
			return fmt.Errorf("insert label of frame %d: %w", frame, err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteStore) CreateScan(ctx context.Context, sc *Scan) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scans (id, video_path, threshold, status, frames, total, keyframes, error, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sc.ID, sc.VideoPath, sc.Threshold, sc.Status, sc.Frames, sc.Total,
		nullString(encodeKeyframes(sc.Keyframes)), nullString(sc.Error),
		sc.CreatedAt.Format(time.RFC3339), sc.UpdatedAt.Format(time.RFC3339))
	return err
}

// FinishScan stores the final status, counters and keyframes of a scan.
func (s *SQLiteStore) FinishScan(ctx context.Context, sc *Scan) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scans SET status = ?, frames = ?, total = ?, keyframes = ?, error = ?, updated_at = ?
		WHERE id = ?
	`, sc.Status, sc.Frames, sc.Total, nullString(encodeKeyframes(sc.Keyframes)), nullString(sc.Error),
		sc.UpdatedAt.Format(time.RFC3339), sc.ID)
	return err
}

func (s *SQLiteStore) GetScan(ctx context.Context, id string) (*Scan, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, video_path, threshold, status, frames, total, keyframes, error, created_at, updated_at
		FROM scans WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	scans, err := scanScans(rows)
	if err != nil || len(scans) == 0 {
		return nil, err
	}
	return scans[0], nil
}

func (s *SQLiteStore) ListScans(ctx context.Context, limit int) ([]*Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, video_path, threshold, status, frames, total, keyframes, error, created_at, updated_at
		FROM scans ORDER BY created_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanScans(rows)
}

func scanScans(rows *sql.Rows) ([]*Scan, error) {
	var scans []*Scan
	for rows.Next() {
		var sc Scan
		var keyframes, errMsg sql.NullString
		var createdAt, updatedAt string

		if err := rows.Scan(&sc.ID, &sc.VideoPath, &sc.Threshold, &sc.Status, &sc.Frames, &sc.Total,
			&keyframes, &errMsg, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if keyframes.Valid {
			if err := json.Unmarshal([]byte(keyframes.String), &sc.Keyframes); err != nil {
				return nil, fmt.Errorf("decode keyframes of scan %s: %w", sc.ID, err)
			}
		}
		sc.Error = errMsg.String
		sc.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		sc.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		scans = append(scans, &sc)
	}
	return scans, rows.Err()
}

// FailInterruptedScans marks scans a previous process left running as
// failed and reports how many there were.
func (s *SQLiteStore) FailInterruptedScans(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE scans SET status = ?, error = ?, updated_at = ? WHERE status = ?`,
		ScanFailed, "interrupted by restart", time.Now().UTC().Format(time.RFC3339), ScanRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// GetConfig returns the stored value for key, or "" when unset.
func (s *SQLiteStore) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (s *SQLiteStore) SetConfig(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func encodeKeyframes(keyframes []int) string {
	if keyframes == nil {
		return ""
	}
	data, _ := json.Marshal(keyframes)
	return string(data)
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
