package intake

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/riwasa/ocr-poc-gentest/pkg/pagination"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS form_record (
    seq      INTEGER PRIMARY KEY AUTOINCREMENT,
    id       TEXT NOT NULL UNIQUE,
    blob_url TEXT NOT NULL DEFAULT '',
    document TEXT NOT NULL
)`

// SQLiteStore keeps form documents in a local SQLite file. It serves offline
// exports of a container dump loaded with Import.
type SQLiteStore struct {
	db       *sql.DB
	pageSize int
}

// OpenSQLiteStore opens (creating if needed) the database at path.
func OpenSQLiteStore(ctx context.Context, path string, pageSize int) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path cannot be empty")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// Single writer; also keeps ":memory:" databases on one connection.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create form_record table: %w", err)
	}

	return &SQLiteStore{db: db, pageSize: pageSize}, nil
}

func (s *SQLiteStore) Put(ctx context.Context, id, blobURL string, document []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO form_record (id, blob_url, document) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET blob_url = excluded.blob_url, document = excluded.document`,
		id, blobURL, string(document))
	return err
}

func (s *SQLiteStore) Pager(_ context.Context) (RecordPager, error) {
	return &sqlitePager{db: s.db, params: pagination.New(s.pageSize), more: true}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type sqlitePager struct {
	db     *sql.DB
	params pagination.Params
	more   bool
}

func (p *sqlitePager) More() bool { return p.more }

func (p *sqlitePager) NextPage(ctx context.Context) ([]*FormRecord, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+formRecordCols+` FROM form_record ORDER BY seq `+p.params.SQL())
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
