package intake

import (
	"context"
)

// RecordSource yields every stored form record through a single full-scan
// query.
type RecordSource interface {
	Pager(ctx context.Context) (RecordPager, error)
	Close() error
}

// RecordPager is a forward-only, single-pass sequence of record pages.
type RecordPager interface {
	More() bool
	NextPage(ctx context.Context) ([]*FormRecord, error)
}

// RecordWriter stores raw form documents.
type RecordWriter interface {
	Put(ctx context.Context, id, blobURL string, document []byte) error
}

// RecordStore is a record source that can also be loaded.
type RecordStore interface {
	RecordSource
	RecordWriter
}

// SliceSource serves in-memory records in fixed-size pages.
type SliceSource struct {
	records  []*FormRecord
	pageSize int
}

func NewSliceSource(pageSize int, records ...*FormRecord) *SliceSource {
	if pageSize <= 0 {
		pageSize = len(records)
	}
	return &SliceSource{records: records, pageSize: pageSize}
}

func (s *SliceSource) Pager(_ context.Context) (RecordPager, error) {
	return &slicePager{records: s.records, pageSize: s.pageSize}, nil
}

func (s *SliceSource) Close() error { return nil }

type slicePager struct {
	records  []*FormRecord
	pageSize int
	offset   int
}

func (p *slicePager) More() bool {
	return p.offset < len(p.records)
}

func (p *slicePager) NextPage(_ context.Context) ([]*FormRecord, error) {
	end := p.offset + p.pageSize
	if end > len(p.records) {
		end = len(p.records)
	}
	page := p.records[p.offset:end]
	p.offset = end
	return page, nil
}
