package backup

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/slonigiraf/slonledger/internal/record"
	"github.com/slonigiraf/slonledger/internal/store"
	"github.com/slonigiraf/slonledger/internal/testutil"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "backup.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)

	referee := testutil.Keypair(t, 1)
	worker := testutil.Keypair(t, 2)
	letter := testutil.Letter(t, referee, worker, 1)
	_, err := src.InsertLetter(ctx, letter)
	require.NoError(t, err)
	require.NoError(t, src.InsertSigner(ctx, referee.Signer(time.Now())))
	require.NoError(t, src.SetSetting(ctx, "active_signer", string(referee.Public)))

	var buf bytes.Buffer
	require.NoError(t, Export(ctx, src, &buf, zap.NewNop()))

	dst := newTestStore(t)
	require.NoError(t, Import(ctx, dst, &buf, zap.NewNop()))

	got, err := dst.GetLetter(ctx, letter.SignOverReceipt)
	require.NoError(t, err)
	require.Equal(t, letter.KnowledgeID, got.KnowledgeID)
	require.True(t, got.Valid)

	// Key material rides in its own archive entry and still restores.
	sg, err := dst.GetSigner(ctx, referee.Public)
	require.NoError(t, err)
	restored, err := record.KeypairFromSeed(sg.SecretKey)
	require.NoError(t, err)
	require.Equal(t, referee.Public, restored.Public)

	val, ok, err := dst.GetSetting(ctx, "active_signer")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, string(referee.Public), val)
}

func TestImport_KeepsExistingRows(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)

	referee := testutil.Keypair(t, 1)
	worker := testutil.Keypair(t, 2)
	letter := testutil.Letter(t, referee, worker, 1)
	_, err := src.InsertLetter(ctx, letter)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(ctx, src, &buf, nil))

	// The destination already canceled this letter; the archive's
	// valid copy must not resurrect it.
	dst := newTestStore(t)
	_, err = dst.InsertLetter(ctx, letter)
	require.NoError(t, err)
	require.NoError(t, dst.CancelLetter(ctx, letter.SignOverReceipt, time.Now()))

	require.NoError(t, Import(ctx, dst, &buf, nil))

	got, err := dst.GetLetter(ctx, letter.SignOverReceipt)
	require.NoError(t, err)
	require.False(t, got.Valid)
}

func TestImport_RejectsInvalidArchives(t *testing.T) {
	ctx := context.Background()

	cases := []struct {
		name string
		body func(t *testing.T) []byte
	}{
		{
			name: "not gzip",
			body: func(t *testing.T) []byte { return []byte("plain text, not an archive") },
		},
		{
			name: "gzip but not tar",
			body: func(t *testing.T) []byte {
				var buf bytes.Buffer
				gz := gzip.NewWriter(&buf)
				_, err := gz.Write([]byte("still not a tarball"))
				require.NoError(t, err)
				require.NoError(t, gz.Close())
				return buf.Bytes()
			},
		},
		{
			name: "missing manifest",
			body: func(t *testing.T) []byte {
				return makeArchive(t, map[string][]byte{
					keysEntry:   mustJSON(t, []record.Signer{}),
					ledgerEntry: mustJSON(t, &store.Snapshot{}),
				})
			},
		},
		{
			name: "missing keys",
			body: func(t *testing.T) []byte {
				return makeArchive(t, map[string][]byte{
					manifestEntry: mustJSON(t, manifest{Version: formatVersion}),
					ledgerEntry:   mustJSON(t, &store.Snapshot{}),
				})
			},
		},
		{
			name: "missing snapshot",
			body: func(t *testing.T) []byte {
				return makeArchive(t, map[string][]byte{
					manifestEntry: mustJSON(t, manifest{Version: formatVersion}),
					keysEntry:     mustJSON(t, []record.Signer{}),
				})
			},
		},
		{
			name: "unsupported version",
			body: func(t *testing.T) []byte {
				return makeArchive(t, map[string][]byte{
					manifestEntry: mustJSON(t, manifest{Version: formatVersion + 1}),
					keysEntry:     mustJSON(t, []record.Signer{}),
					ledgerEntry:   mustJSON(t, &store.Snapshot{}),
				})
			},
		},
		{
			name: "unreadable manifest",
			body: func(t *testing.T) []byte {
				return makeArchive(t, map[string][]byte{
					manifestEntry: []byte("{broken"),
					keysEntry:     mustJSON(t, []record.Signer{}),
					ledgerEntry:   mustJSON(t, &store.Snapshot{}),
				})
			},
		},
		{
			name: "unreadable keys",
			body: func(t *testing.T) []byte {
				return makeArchive(t, map[string][]byte{
					manifestEntry: mustJSON(t, manifest{Version: formatVersion}),
					keysEntry:     []byte("{not a list"),
					ledgerEntry:   mustJSON(t, &store.Snapshot{}),
				})
			},
		},
		{
			name: "unreadable snapshot",
			body: func(t *testing.T) []byte {
				return makeArchive(t, map[string][]byte{
					manifestEntry: mustJSON(t, manifest{Version: formatVersion}),
					keysEntry:     mustJSON(t, []record.Signer{}),
					ledgerEntry:   []byte("[not a snapshot"),
				})
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			st := newTestStore(t)
			err := Import(ctx, st, bytes.NewReader(tc.body(t)), nil)
			require.Error(t, err)
			require.True(t, IsInvalidBackupFile(err), "got %v", err)

			// Nothing was written.
			snap, err := st.Export(ctx)
			require.NoError(t, err)
			require.Empty(t, snap.Letters)
			require.Empty(t, snap.Insurances)
		})
	}
}

func TestImport_IgnoresUnknownEntries(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	body := makeArchive(t, map[string][]byte{
		manifestEntry: mustJSON(t, manifest{Version: formatVersion}),
		keysEntry:     mustJSON(t, []record.Signer{}),
		ledgerEntry:   mustJSON(t, &store.Snapshot{}),
		"extras.json": []byte(`{"future":"data"}`),
	})
	require.NoError(t, Import(ctx, st, bytes.NewReader(body), nil))
}

func TestImport_Twice(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)

	referee := testutil.Keypair(t, 1)
	worker := testutil.Keypair(t, 2)
	_, err := src.InsertLetter(ctx, testutil.Letter(t, referee, worker, 1))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(ctx, src, &buf, nil))
	raw := buf.Bytes()

	dst := newTestStore(t)
	require.NoError(t, Import(ctx, dst, bytes.NewReader(raw), nil))
	require.NoError(t, Import(ctx, dst, bytes.NewReader(raw), nil))

	snap, err := dst.Export(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Letters, 1)
}

func makeArchive(t *testing.T, entries map[string][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	// Manifest first when present, matching the writer.
	order := []string{manifestEntry, keysEntry, ledgerEntry, "extras.json"}
	for _, name := range order {
		body, ok := entries[name]
		if !ok {
			continue
		}
		require.NoError(t, tw.WriteHeader(&tar.Header{Name: name, Mode: 0o600, Size: int64(len(body))}))
		_, err := tw.Write(body)
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	body, err := json.Marshal(v)
	require.NoError(t, err)
	return body
}
