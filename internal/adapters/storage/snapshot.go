package storage

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/google/uuid"

	"leadsync_backend/platform/clock"
)

const (
	snapshotPrefix      = "snapshots/"
	snapshotContentType = "text/csv"
)

// SnapshotArchiver stores each spreadsheet range as a CSV object before the
// tracker overwrites it.
type SnapshotArchiver struct {
	store  ObjectStore
	bucket string
	clock  clock.Clock
}

// NewSnapshotArchiver builds an archiver writing to bucket.
func NewSnapshotArchiver(store ObjectStore, bucket string, clk clock.Clock) *SnapshotArchiver {
	return &SnapshotArchiver{store: store, bucket: bucket, clock: clk}
}

// Init creates the snapshot bucket.
func (a *SnapshotArchiver) Init(ctx context.Context) error {
	return a.store.EnsureBucketExists(ctx, a.bucket)
}

// Archive uploads rows and returns the object key.
func (a *SnapshotArchiver) Archive(ctx context.Context, rows [][]string) (string, error) {
	data, err := EncodeRows(rows)
	if err != nil {
		return "", err
	}
	key := a.snapshotKey()
	if err := a.store.UploadFile(ctx, a.bucket, key, snapshotContentType, bytes.NewReader(data), int64(len(data))); err != nil {
		return "", err
	}
	return key, nil
}

// Fetch downloads a snapshot. An empty key selects the most recent one.
func (a *SnapshotArchiver) Fetch(ctx context.Context, key string) (string, [][]string, error) {
	if key == "" {
		keys, err := a.store.ListKeys(ctx, a.bucket, snapshotPrefix)
		if err != nil {
			return "", nil, err
		}
		if len(keys) == 0 {
			return "", nil, fmt.Errorf("no snapshots in bucket %s", a.bucket)
		}
		key = keys[len(keys)-1]
	}

	body, err := a.store.DownloadFile(ctx, a.bucket, key)
	if err != nil {
		return "", nil, err
	}
	defer body.Close()

	rows, err := DecodeRows(body)
	if err != nil {
		return "", nil, fmt.Errorf("decode snapshot %s: %w", key, err)
	}
	return key, rows, nil
}

// snapshotKey sorts chronologically; the uuid suffix keeps same-second keys apart.
func (a *SnapshotArchiver) snapshotKey() string {
	now := a.clock.Now().UTC()
	return fmt.Sprintf("%s%s/%s_%s.csv", snapshotPrefix, now.Format("2006/01/02"), now.Format("150405"), uuid.New().String()[:8])
}

// EncodeRows renders ragged rows as CSV.
func EncodeRows(rows [][]string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.WriteAll(rows); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeRows parses CSV written by EncodeRows.
func DecodeRows(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return cr.ReadAll()
}
