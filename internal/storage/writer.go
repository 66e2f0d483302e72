package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/albapepper/scoracle-lake/internal/model"
	"github.com/albapepper/scoracle-lake/internal/schema"
)

// DefaultWriteTimeout bounds a single partition put.
const DefaultWriteTimeout = 60 * time.Second

// WriteError reports a partition that could not be encoded or stored.
// The previous partition object, if any, is left untouched.
type WriteError struct {
	Partition model.PartitionKey
	Op        string // encode, put
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write %s: %s: %v", e.Partition, e.Op, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// WriteResult describes a committed partition.
type WriteResult struct {
	Key      string
	Rows     int
	Bytes    int
	Duration time.Duration
}

// PartitionedWriter encodes a whole partition in memory and replaces the
// partition object in a single put.
type PartitionedWriter struct {
	store   ObjectStore
	timeout time.Duration
	logger  *slog.Logger
}

// NewPartitionedWriter wraps store. A zero timeout uses DefaultWriteTimeout.
func NewPartitionedWriter(store ObjectStore, timeout time.Duration, logger *slog.Logger) *PartitionedWriter {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &PartitionedWriter{
		store:   store,
		timeout: timeout,
		logger:  logger.With("component", "writer"),
	}
}

// Store returns the underlying object store.
func (w *PartitionedWriter) Store() ObjectStore { return w.store }

// Write replaces the partition at key with rows, which must be a slice of
// one of the schema row types. Zero rows produce a valid empty partition.
//
// Once the put has started it runs to completion on a context detached
// from ctx, bounded by the writer's own timeout.
func (w *PartitionedWriter) Write(ctx context.Context, key model.PartitionKey, rows any) (WriteResult, error) {
	start := time.Now()

	data, n, err := Encode(rows)
	if err != nil {
		return WriteResult{}, &WriteError{Partition: key, Op: "encode", Err: err}
	}
	if err := ctx.Err(); err != nil {
		return WriteResult{}, &WriteError{Partition: key, Op: "put", Err: err}
	}

	putCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.timeout)
	defer cancel()
	objectKey := key.ObjectKey()
	if err := w.store.Put(putCtx, objectKey, data); err != nil {
		return WriteResult{}, &WriteError{Partition: key, Op: "put", Err: err}
	}

	res := WriteResult{Key: objectKey, Rows: n, Bytes: len(data), Duration: time.Since(start)}
	w.logger.Debug("partition written",
		"key", objectKey,
		"rows", res.Rows,
		"bytes", res.Bytes,
		"duration", res.Duration.Round(time.Millisecond),
	)
	return res, nil
}

// Encode serializes a row slice to Parquet and returns the row count.
func Encode(rows any) ([]byte, int, error) {
	switch r := rows.(type) {
	case []schema.GameRow:
		return encode(r)
	case []schema.PlayerStatRow:
		return encode(r)
	case []schema.TeamStatRow:
		return encode(r)
	case []schema.StandingRow:
		return encode(r)
	case []schema.ShotZoneRow:
		return encode(r)
	case []schema.TeamRow:
		return encode(r)
	case []schema.PlayerRow:
		return encode(r)
	case []schema.PlayerTeamHistoryRow:
		return encode(r)
	case nil:
		return nil, 0, errors.New("nil rows")
	default:
		return nil, 0, fmt.Errorf("unsupported row type %T", rows)
	}
}

func encode[T any](rows []T) ([]byte, int, error) {
	var buf bytes.Buffer
	pw := parquet.NewGenericWriter[T](&buf, parquet.Compression(&parquet.Snappy))
	if len(rows) > 0 {
		if _, err := pw.Write(rows); err != nil {
			return nil, 0, fmt.Errorf("encode rows: %w", err)
		}
	}
	if err := pw.Close(); err != nil {
		return nil, 0, fmt.Errorf("close parquet writer: %w", err)
	}
	return buf.Bytes(), len(rows), nil
}

// ReadPartition reads a stored partition back into typed rows. A missing
// partition yields an error matching os.ErrNotExist.
func ReadPartition[T any](ctx context.Context, store ObjectStore, key model.PartitionKey) ([]T, error) {
	data, err := store.Get(ctx, key.ObjectKey())
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	rows, err := parquet.Read[T](bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	return rows, nil
}
