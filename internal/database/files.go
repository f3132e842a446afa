package database

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"sejf-plikow/internal/models"
)

type CreateFileParams struct {
	UserID     int64
	Filename   string
	Locator    string
	SizeBytes  int64
	ExpiryTime time.Time
}

func (s *PostgresStore) CreateFile(ctx context.Context, arg CreateFileParams) (*models.File, error) {
	query := `
		INSERT INTO files (user_id, filename, locator, size_bytes, upload_time, expiry_time, notification_sent)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
		RETURNING id, user_id, filename, locator, size_bytes, upload_time, expiry_time, notification_sent
	`
	now := time.Now().UTC()

	var file models.File
	err := s.pool.QueryRow(ctx, query,
		arg.UserID,
		arg.Filename,
		arg.Locator,
		arg.SizeBytes,
		now,
		arg.ExpiryTime,
	).Scan(
		&file.ID,
		&file.UserID,
		&file.Filename,
		&file.Locator,
		&file.SizeBytes,
		&file.UploadTime,
		&file.ExpiryTime,
		&file.NotificationSent,
	)
	if err != nil {
		return nil, err
	}

	return &file, nil
}

func (s *PostgresStore) GetFileByID(ctx context.Context, id int64, ownerID int64) (*models.File, error) {
	query := `
		SELECT id, user_id, filename, locator, size_bytes, upload_time, expiry_time, notification_sent
		FROM files
		WHERE id = $1 AND user_id = $2
	`
	var file models.File
	err := s.pool.QueryRow(ctx, query, id, ownerID).Scan(
		&file.ID,
		&file.UserID,
		&file.Filename,
		&file.Locator,
		&file.SizeBytes,
		&file.UploadTime,
		&file.ExpiryTime,
		&file.NotificationSent,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &file, nil
}

func (s *PostgresStore) ListFilesByOwner(ctx context.Context, ownerID int64) ([]models.File, error) {
	query := `
		SELECT id, user_id, filename, locator, size_bytes, upload_time, expiry_time, notification_sent
		FROM files
		WHERE user_id = $1
		ORDER BY upload_time DESC
	`
	rows, err := s.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []models.File
	for rows.Next() {
		var file models.File
		err := rows.Scan(
			&file.ID,
			&file.UserID,
			&file.Filename,
			&file.Locator,
			&file.SizeBytes,
			&file.UploadTime,
			&file.ExpiryTime,
			&file.NotificationSent,
		)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	if files == nil {
		return []models.File{}, nil
	}

	return files, nil
}

func (s *PostgresStore) DeleteFileByOwner(ctx context.Context, id int64, ownerID int64) (bool, error) {
	query := `DELETE FROM files WHERE id = $1 AND user_id = $2`
	res, err := s.pool.Exec(ctx, query, id, ownerID)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// ExpiryCandidate is one row of the sweep window. The owner's email is joined
// in so the sweep does not need a second query per record.
type ExpiryCandidate struct {
	FileID           int64
	UserID           int64
	Filename         string
	Locator          string
	ExpiryTime       time.Time
	NotificationSent bool
	UserEmail        string
}

// FindExpiryCandidates returns every file whose expiry falls after
// now-lookback, soonest expiry first. The look-back bound keeps the sweep from
// rescanning records that were handled long ago; it must be at least the
// notification lead time plus a margin so no actionable record is skipped.
func (s *PostgresStore) FindExpiryCandidates(ctx context.Context, now time.Time, lookback time.Duration) ([]ExpiryCandidate, error) {
	query := `
		SELECT f.id, f.user_id, f.filename, f.locator, f.expiry_time, f.notification_sent, u.email
		FROM files f
		JOIN users u ON f.user_id = u.id
		WHERE f.expiry_time > $1
		ORDER BY f.expiry_time ASC
	`
	rows, err := s.pool.Query(ctx, query, now.Add(-lookback))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []ExpiryCandidate
	for rows.Next() {
		var c ExpiryCandidate
		err := rows.Scan(
			&c.FileID,
			&c.UserID,
			&c.Filename,
			&c.Locator,
			&c.ExpiryTime,
			&c.NotificationSent,
			&c.UserEmail,
		)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return candidates, nil
}

// DeleteFileByID removes a file row without an ownership check (sweep path).
// Returns false when the row was already gone, which a concurrent sweep
// treats as success.
func (s *PostgresStore) DeleteFileByID(ctx context.Context, id int64) (bool, error) {
	query := `DELETE FROM files WHERE id = $1`
	res, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}

// MarkNotificationSent flips notification_sent to TRUE exactly once. The
// conditional WHERE makes the update a no-op for a racing sweep, so the flag
// can never produce a second warning for the same record.
func (s *PostgresStore) MarkNotificationSent(ctx context.Context, id int64) (bool, error) {
	query := `UPDATE files SET notification_sent = TRUE WHERE id = $1 AND notification_sent = FALSE`
	res, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return false, err
	}
	return res.RowsAffected() > 0, nil
}
