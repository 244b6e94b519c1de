package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"reflect"
	"slices"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CTAG07/bytemarkov/pkg/markov"
)

// setupTestStore creates a new SQLite database in a temporary directory and a
// Store for testing. It uses t.Cleanup to ensure resources are released.
func setupTestStore(t *testing.T) (*sql.DB, *Store) {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err, "failed to open database")
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, SetupSchema(db), "failed to set up schema")
	require.NoError(t, SetupSchema(db), "SetupSchema should be idempotent")

	s, err := New(db)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return db, s
}

// walDSN is the connection string the binary uses by default.
func walDSN(path string) string {
	return path + "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
}

func buildModel(t *testing.T, corpus string, order int) *markov.Model {
	t.Helper()
	m, err := markov.Build([]byte(corpus), order)
	require.NoError(t, err)
	return m
}

func TestSaveAndLoadModel(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	// Bytes outside printable ASCII must survive the round trip.
	corpus := "one fish two fish.\x00\xff\x00\xfe red fish blue fish."
	m := buildModel(t, corpus, 3)

	info, err := s.SaveModel(ctx, "fish", m)
	require.NoError(t, err)
	require.Equal(t, "fish", info.Name)
	require.Equal(t, 3, info.Order)
	require.Equal(t, int64(len(corpus)), info.CorpusSize)
	require.Len(t, info.Revision, 26, "revision should be a ULID")

	got, err := s.GetModelInfo(ctx, "fish")
	require.NoError(t, err)
	require.Equal(t, info, got)

	loaded, err := s.LoadModel(ctx, got)
	require.NoError(t, err)
	require.Equal(t, m.Export(), loaded.Export())

	start, ok := loaded.Start()
	require.True(t, ok)
	require.Equal(t, markov.Window("one"), start)
}

func TestLoadModelDuringConcurrentSaves(t *testing.T) {
	db, err := Open(walDSN(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, SetupSchema(db))
	s, err := New(db)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	ctx := context.Background()

	var journalMode string
	require.NoError(t, db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode))
	require.Equal(t, "wal", journalMode)

	forward := []byte("abcdefghijklmnopqrstuvwxyz")
	backward := slices.Clone(forward)
	slices.Reverse(backward)
	models := []*markov.Model{buildModel(t, string(forward), 1), buildModel(t, string(backward), 1)}

	_, err = s.SaveModel(ctx, "m", models[0])
	require.NoError(t, err)

	done := make(chan struct{})
	saveErr := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 1; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			if _, err := s.SaveModel(ctx, "m", models[i%2]); err != nil {
				saveErr <- err
				return
			}
		}
	}()

	for i := 0; i < 300; i++ {
		info, err := s.GetModelInfo(ctx, "m")
		require.NoError(t, err)
		loaded, err := s.LoadModel(ctx, info)
		require.NoError(t, err, "load %d failed", i)

		// Every load must see exactly one saved revision, never a mix.
		got := loaded.Export()
		require.True(t, reflect.DeepEqual(got, models[0].Export()) || reflect.DeepEqual(got, models[1].Export()),
			"load %d mixed two revisions: %+v", i, got)
	}
	close(done)
	wg.Wait()
	select {
	case err = <-saveErr:
		require.NoError(t, err)
	default:
	}
}

func TestSaveModelReplaces(t *testing.T) {
	db, s := setupTestStore(t)
	ctx := context.Background()

	first, err := s.SaveModel(ctx, "m", buildModel(t, "abcabc", 2))
	require.NoError(t, err)
	second, err := s.SaveModel(ctx, "m", buildModel(t, "xyz", 1))
	require.NoError(t, err)

	require.Equal(t, first.Id, second.Id, "replacing a model should keep its id")
	require.NotEqual(t, first.Revision, second.Revision)
	require.Equal(t, 1, second.Order)

	var windows int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_windows WHERE model_id = ?", second.Id).Scan(&windows))
	require.Equal(t, 2, windows, "old windows should be gone")

	loaded, err := s.LoadModel(ctx, second)
	require.NoError(t, err)
	require.Equal(t, []markov.Window{"x", "y"}, loaded.Windows())
}

func TestSaveModelRejectsEmptyName(t *testing.T) {
	_, s := setupTestStore(t)
	_, err := s.SaveModel(context.Background(), "", buildModel(t, "abc", 1))
	require.Error(t, err)
}

func TestGetModelInfoNotFound(t *testing.T) {
	_, s := setupTestStore(t)

	_, err := s.GetModelInfo(context.Background(), "nonexistent_model")
	require.ErrorIs(t, err, ErrModelNotFound)
	require.True(t, errors.Is(err, sql.ErrNoRows))
}

func TestGetModelInfos(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.SaveModel(ctx, "test_model", buildModel(t, "abcbab", 2))
	require.NoError(t, err)
	_, err = s.SaveModel(ctx, "another_model", buildModel(t, "abcbab", 1))
	require.NoError(t, err)

	models, err := s.GetModelInfos(ctx)
	require.NoError(t, err)
	require.Len(t, models, 2)
	require.Contains(t, models, "test_model")
	require.Contains(t, models, "another_model")
	require.Equal(t, 1, models["another_model"].Order)
}

func TestRemoveModel(t *testing.T) {
	db, s := setupTestStore(t)
	ctx := context.Background()

	m1, err := s.SaveModel(ctx, "to_delete", buildModel(t, "delete this data.", 1))
	require.NoError(t, err)
	m2, err := s.SaveModel(ctx, "to_keep", buildModel(t, "keep this data.", 1))
	require.NoError(t, err)

	require.NoError(t, s.RemoveModel(ctx, m1))

	_, err = s.GetModelInfo(ctx, m1.Name)
	require.ErrorIs(t, err, ErrModelNotFound)

	var count int
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_chains WHERE model_id = ?", m1.Id).Scan(&count))
	require.Zero(t, count, "chains for deleted model should be gone")
	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_windows WHERE model_id = ?", m1.Id).Scan(&count))
	require.Zero(t, count, "windows for deleted model should be gone")

	require.NoError(t, db.QueryRowContext(ctx, "SELECT COUNT(*) FROM markov_chains WHERE model_id = ?", m2.Id).Scan(&count))
	require.NotZero(t, count, "chains for kept model should still exist")
}

func TestGetStats(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	m := buildModel(t, "abababac", 1)
	info, err := s.SaveModel(ctx, "stats", m)
	require.NoError(t, err)

	stats, err := s.GetStats(ctx)
	require.NoError(t, err)
	require.Len(t, stats.Models, 1)

	want := m.Stats()
	require.Equal(t, ModelStats{
		Windows:        want.Windows,
		Transitions:    want.Transitions,
		TotalFrequency: want.TotalFrequency,
	}, stats.Stats[info.Id])
}

func TestExportImportRoundTrip(t *testing.T) {
	for _, format := range []Format{FormatJSON, FormatMsgpack} {
		t.Run(string(format), func(t *testing.T) {
			_, s := setupTestStore(t)
			ctx := context.Background()

			m := buildModel(t, "one fish two fish. red fish blue fish.\x00\x01", 2)
			info, err := s.SaveModel(ctx, "fish", m)
			require.NoError(t, err)

			// 1. Export the model to an in-memory buffer
			var buf bytes.Buffer
			require.NoError(t, s.ExportModel(ctx, info, &buf, format))

			// 2. Import it into a completely new, empty database
			_, s2 := setupTestStore(t)
			imported, err := s2.ImportModel(ctx, &buf, format, "")
			require.NoError(t, err)
			require.Equal(t, "fish", imported.Name)
			require.NotEqual(t, info.Revision, imported.Revision)

			// 3. Verify the imported data by generating
			loaded, err := s2.LoadModel(ctx, imported)
			require.NoError(t, err)
			require.Equal(t, m.Export(), loaded.Export())

			start, _ := m.Start()
			require.Equal(t,
				markov.Generate(m, start, fixedRand(0), markov.WithMaxLength(50)),
				markov.Generate(loaded, start, fixedRand(0), markov.WithMaxLength(50)))
		})
	}
}

func TestImportMergesIntoExisting(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	info, err := s.SaveModel(ctx, "src", buildModel(t, "abab", 1))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, s.ExportModel(ctx, info, &buf, FormatJSON))

	merged, err := s.ImportModel(ctx, bytes.NewReader(buf.Bytes()), FormatJSON, "src")
	require.NoError(t, err)

	loaded, err := s.LoadModel(ctx, merged)
	require.NoError(t, err)
	require.Equal(t, []markov.Successor{{Byte: 'b', Freq: 4}}, loaded.Successors("a"), "frequencies should be added")
	require.Equal(t, int64(8), loaded.CorpusSize())

	_, err = s.SaveModel(ctx, "order2", buildModel(t, "abab", 2))
	require.NoError(t, err)
	_, err = s.ImportModel(ctx, bytes.NewReader(buf.Bytes()), FormatJSON, "order2")
	require.Error(t, err, "importing into a model of a different order should fail")
}

func TestImportRejectsGarbage(t *testing.T) {
	_, s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.ImportModel(ctx, bytes.NewReader([]byte("not json")), FormatJSON, "")
	require.Error(t, err)

	_, err = s.ImportModel(ctx, bytes.NewReader([]byte(`{"name":"x"}`)), FormatJSON, "")
	require.ErrorIs(t, err, markov.ErrInvalidSnapshot)

	_, err = s.ImportModel(ctx, bytes.NewReader([]byte(`{"name":"x","model":{"order":2,"chains":[{"window":"YQ==","successors":[{"byte":98,"freq":1}]}]}}`)), FormatJSON, "")
	require.ErrorIs(t, err, markov.ErrInvalidSnapshot, "a one-byte window in an order-2 model is invalid")
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("MSGPACK")
	require.NoError(t, err)
	require.Equal(t, FormatMsgpack, f)

	_, err = ParseFormat("xml")
	require.Error(t, err)
}

type fixedRand int

func (f fixedRand) IntN(n int) int {
	return int(f) % n
}
