package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"media-variants/internal/variant"

	"github.com/goccy/go-json"
)

// GetState loads the transcode state of an asset. An asset that has never
// been processed yields an empty state.
func (d *Database) GetState(ctx context.Context, assetID int64) (variant.State, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_state", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var raw string
	err = d.db.QueryRowContext(ctx, `
		SELECT state_json FROM transcode_state WHERE asset_id = ?
	`, assetID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		err = nil
		return variant.NewState(), nil
	}
	if err != nil {
		return variant.State{}, fmt.Errorf("failed to load state for asset %d: %w", assetID, err)
	}

	state := variant.NewState()
	if err = json.Unmarshal([]byte(raw), &state); err != nil {
		return variant.State{}, fmt.Errorf("corrupt state for asset %d: %w", assetID, err)
	}
	// decoding a JSON null resets the maps
	if state.Variants == nil {
		state.Variants = make(map[variant.FormatKey]string)
	}
	if state.LastError == nil {
		state.LastError = make(map[variant.FormatKey]variant.ErrorRecord)
	}
	return state, nil
}

// SaveState replaces the whole state record of an asset.
func (d *Database) SaveState(ctx context.Context, assetID int64, state variant.State) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("save_state", start, err) }()

	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode state for asset %d: %w", assetID, err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = d.db.ExecContext(ctx, `
		INSERT INTO transcode_state (asset_id, state_json, pending_retry)
		VALUES (?, ?, ?)
		ON CONFLICT(asset_id) DO UPDATE SET
			state_json = excluded.state_json,
			pending_retry = excluded.pending_retry,
			updated_at = strftime('%s', 'now')
	`, assetID, string(raw), state.PendingRetry)
	if err != nil {
		return fmt.Errorf("failed to save state for asset %d: %w", assetID, err)
	}
	return nil
}

// ListPendingAssetIDs returns assets whose last run left formats unsatisfied.
func (d *Database) ListPendingAssetIDs(ctx context.Context) ([]int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_pending_assets", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	rows, err := d.db.QueryContext(ctx, `
		SELECT asset_id FROM transcode_state WHERE pending_retry = 1 ORDER BY asset_id
	`)
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
