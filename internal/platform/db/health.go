package db

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PoolStats is a snapshot of pgxpool usage, logged when a run releases its
// pool.
type PoolStats struct {
	Total         int32
	Idle          int32
	Acquired      int32
	Max           int32
	Acquires      int64
	EmptyAcquires int64
	AcquireWait   time.Duration
}

// GetPoolStats snapshots pool.
func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	s := pool.Stat()
	return &PoolStats{
		Total:         s.TotalConns(),
		Idle:          s.IdleConns(),
		Acquired:      s.AcquiredConns(),
		Max:           s.MaxConns(),
		Acquires:      s.AcquireCount(),
		EmptyAcquires: s.EmptyAcquireCount(),
		AcquireWait:   s.AcquireDuration(),
	}
}

// MarshalZerologObject attaches the snapshot with Object("pool", stats).
func (s *PoolStats) MarshalZerologObject(e *zerolog.Event) {
	e.Int32("total_conns", s.Total).
		Int32("idle_conns", s.Idle).
		Int32("acquired_conns", s.Acquired).
		Int32("max_conns", s.Max).
		Int64("acquires", s.Acquires).
		Int64("empty_acquires", s.EmptyAcquires).
		Dur("acquire_wait", s.AcquireWait)
}
