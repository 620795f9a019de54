package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media-variants/internal/mediatypes"
)

// UpsertAsset registers a file in the asset registry, returning the stored
// row. Re-registering a path refreshes its mime type and dimensions.
func (d *Database) UpsertAsset(ctx context.Context, a mediatypes.Asset) (mediatypes.Asset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("upsert_asset", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	err = d.db.QueryRowContext(ctx, `
		INSERT INTO assets (path, mime_type, width, height)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			mime_type = excluded.mime_type,
			width = excluded.width,
			height = excluded.height,
			updated_at = strftime('%s', 'now')
		RETURNING id
	`, a.Path, a.MimeType, a.Width, a.Height).Scan(&a.ID)
	if err != nil {
		return a, fmt.Errorf("failed to upsert asset %s: %w", a.Path, err)
	}
	return a, nil
}

// GetAsset returns the asset with the given id or ErrNotFound.
func (d *Database) GetAsset(ctx context.Context, id int64) (mediatypes.Asset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_asset", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var a mediatypes.Asset
	err = d.db.QueryRowContext(ctx, `
		SELECT id, path, mime_type, width, height FROM assets WHERE id = ?
	`, id).Scan(&a.ID, &a.Path, &a.MimeType, &a.Width, &a.Height)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	return a, err
}

// GetAssetByPath looks an asset up by its absolute file path.
func (d *Database) GetAssetByPath(ctx context.Context, path string) (mediatypes.Asset, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_asset_by_path", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var a mediatypes.Asset
	err = d.db.QueryRowContext(ctx, `
		SELECT id, path, mime_type, width, height FROM assets WHERE path = ?
	`, path).Scan(&a.ID, &a.Path, &a.MimeType, &a.Width, &a.Height)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("asset %s: %w", path, ErrNotFound)
	}
	return a, err
}

// ListAssetIDs returns every asset id in ascending order.
func (d *Database) ListAssetIDs(ctx context.Context) ([]int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_asset_ids", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `SELECT id FROM assets ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err = rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	err = rows.Err()
	return ids, err
}

// UpdateAssetFile repoints an asset at a new canonical file.
func (d *Database) UpdateAssetFile(ctx context.Context, id int64, path, mimeType string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("update_asset_file", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		UPDATE assets SET path = ?, mime_type = ?, updated_at = strftime('%s', 'now')
		WHERE id = ?
	`, path, mimeType, id)
	if err != nil {
		return fmt.Errorf("failed to update asset %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("asset %d: %w", id, ErrNotFound)
	}
	return err
}
