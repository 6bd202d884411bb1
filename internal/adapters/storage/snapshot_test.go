package storage

import (
	"bytes"
	"context"
	"io"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"leadsync_backend/platform/clock"
)

type memoryStore struct {
	buckets map[string]map[string][]byte
}

func newMemoryStore() *memoryStore {
	return &memoryStore{buckets: map[string]map[string][]byte{}}
}

func (m *memoryStore) EnsureBucketExists(_ context.Context, bucket string) error {
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = map[string][]byte{}
	}
	return nil
}

func (m *memoryStore) UploadFile(_ context.Context, bucket, key, _ string, reader io.Reader, _ int64) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.buckets[bucket][key] = data
	return nil
}

func (m *memoryStore) DownloadFile(_ context.Context, bucket, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(m.buckets[bucket][key])), nil
}

func (m *memoryStore) ListKeys(_ context.Context, bucket, prefix string) ([]string, error) {
	keys := make([]string, 0)
	for k := range m.buckets[bucket] {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func TestEncodeRowsRoundTripsRaggedRows(t *testing.T) {
	rows := [][]string{
		{"Name", "Email", "Status"},
		{"Ann, Jr.", "ann@example.com", "meeting_booked", "", "2024-05-01T12:00:00Z"},
		{"Bob \"B\""},
	}

	data, err := EncodeRows(rows)
	require.NoError(t, err)

	got, err := DecodeRows(bytes.NewReader(data))
	require.NoError(t, err)
	require.Equal(t, rows, got)
}

func TestArchiveAndFetchLatest(t *testing.T) {
	store := newMemoryStore()
	clk := clock.NewFixed(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	archiver := NewSnapshotArchiver(store, "sheet-snapshots", clk)
	require.NoError(t, archiver.Init(context.Background()))

	first, err := archiver.Archive(context.Background(), [][]string{{"a"}})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(first, "snapshots/2024/05/01/120000_"))

	clk.Advance(time.Minute)
	second, err := archiver.Archive(context.Background(), [][]string{{"b", "c"}})
	require.NoError(t, err)

	key, rows, err := archiver.Fetch(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, second, key)
	require.Equal(t, [][]string{{"b", "c"}}, rows)

	_, rows, err = archiver.Fetch(context.Background(), first)
	require.NoError(t, err)
	require.Equal(t, [][]string{{"a"}}, rows)
}

func TestFetchWithoutSnapshots(t *testing.T) {
	store := newMemoryStore()
	archiver := NewSnapshotArchiver(store, "empty", clock.NewFixed(time.Now()))
	require.NoError(t, archiver.Init(context.Background()))

	_, _, err := archiver.Fetch(context.Background(), "")
	require.Error(t, err)
}
