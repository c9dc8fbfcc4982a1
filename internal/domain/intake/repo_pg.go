package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/riwasa/ocr-poc-gentest/pkg/pagination"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// =========== Form Record Repository (PostgreSQL) ===========

// The document column is json, not jsonb: jsonb reorders object keys and the
// report depends on the stored field order.
const formRecordCols = `id, blob_url, document`

type formRecordRepoPG struct {
	db       queryable
	pageSize int
}

// NewFormRecordRepoPG returns a record source and writer over the form_record
// table. The pool stays owned by the caller.
func NewFormRecordRepoPG(pool *pgxpool.Pool, pageSize int) RecordStore {
	return &formRecordRepoPG{db: pool, pageSize: pageSize}
}

func (r *formRecordRepoPG) Pager(_ context.Context) (RecordPager, error) {
	return &pgPager{db: r.db, params: pagination.New(r.pageSize), more: true}, nil
}

func (r *formRecordRepoPG) Close() error { return nil }

func (r *formRecordRepoPG) Put(ctx context.Context, id, blobURL string, document []byte) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO form_record (id, blob_url, document)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET blob_url = EXCLUDED.blob_url, document = EXCLUDED.document`,
		id, blobURL, string(document))
	return err
}

type pgPager struct {
	db     queryable
	params pagination.Params
	more   bool
}

func (p *pgPager) More() bool { return p.more }

func (p *pgPager) NextPage(ctx context.Context) ([]*FormRecord, error) {
	rows, err := p.db.Query(ctx, `SELECT `+formRecordCols+` FROM form_record ORDER BY created_at, id `+p.params.SQL())
	if err != nil {
		return nil, fmt.Errorf("query form_record: %w", err)
	}
	defer rows.Close()

	var items []*FormRecord
	for rows.Next() {
		var id, blobURL, doc string
		if err := rows.Scan(&id, &blobURL, &doc); err != nil {
			return nil, fmt.Errorf("scan form_record: %w", err)
		}
		rec, err := decodeStored(id, blobURL, []byte(doc))
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate form_record: %w", err)
	}

	p.more = !p.params.Last(len(items))
	p.params = p.params.Next()
	return items, nil
}

// decodeStored decodes a stored document, falling back to the row's columns
// for the id and blob reference.
func decodeStored(id, blobURL string, doc []byte) (*FormRecord, error) {
	var rec FormRecord
	if err := json.Unmarshal(doc, &rec); err != nil {
		return nil, fmt.Errorf("decode form record %s: %w", id, err)
	}
	if rec.ID == "" {
		rec.ID = id
	}
	if rec.BlobURL == "" {
		rec.BlobURL = blobURL
	}
	return &rec, nil
}
