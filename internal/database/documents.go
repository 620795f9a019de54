package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateDocument stores a new draft document and returns its id.
func (d *Database) CreateDocument(ctx context.Context, title, body string) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("create_document", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	res, err := d.db.ExecContext(ctx, `
		INSERT INTO documents (title, body, status) VALUES (?, ?, ?)
	`, title, body, StatusDraft)
	if err != nil {
		return 0, fmt.Errorf("failed to create document: %w", err)
	}
	return res.LastInsertId()
}

// GetDocument returns a document by id or ErrNotFound.
func (d *Database) GetDocument(ctx context.Context, id int64) (Document, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get_document", start, err) }()

	d.mu.RLock()
	defer d.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var doc Document
	var updated, published int64
	err = d.db.QueryRowContext(ctx, `
		SELECT id, title, body, status, updated_at, published_at FROM documents WHERE id = ?
	`, id).Scan(&doc.ID, &doc.Title, &doc.Body, &doc.Status, &updated, &published)
	if errors.Is(err, sql.ErrNoRows) {
		err = fmt.Errorf("document %d: %w", id, ErrNotFound)
		return doc, err
	}
	if err != nil {
		return doc, err
	}
	doc.UpdatedAt = time.Unix(updated, 0)
	if published > 0 {
		doc.PublishedAt = time.Unix(published, 0)
	}
	return doc, nil
}

// PublishDocument marks a document published. A non-nil body replaces the
// stored one in the same write.
func (d *Database) PublishDocument(ctx context.Context, id int64, body *string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("publish_document", start, err) }()

	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var res sql.Result
	if body != nil {
		res, err = d.db.ExecContext(ctx, `
			UPDATE documents SET body = ?, status = ?,
				updated_at = strftime('%s', 'now'), published_at = strftime('%s', 'now')
			WHERE id = ?
		`, *body, StatusPublished, id)
	} else {
		res, err = d.db.ExecContext(ctx, `
			UPDATE documents SET status = ?, published_at = strftime('%s', 'now')
			WHERE id = ?
		`, StatusPublished, id)
	}
	if err != nil {
		return fmt.Errorf("failed to publish document %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		err = fmt.Errorf("document %d: %w", id, ErrNotFound)
	}
	return err
}
