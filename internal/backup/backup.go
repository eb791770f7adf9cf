// Package backup writes and restores portable ledger archives. An
// archive is a gzip tarball holding a manifest, the signing key
// material, and a full store snapshot, so a user can move their
// ledger between devices or keep an offline copy.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/slonigiraf/slonledger/internal/record"
	"github.com/slonigiraf/slonledger/internal/store"
)

// formatVersion is bumped when the archive layout changes.
const formatVersion = 1

const (
	manifestEntry = "manifest.json"
	keysEntry     = "keys.json"
	ledgerEntry   = "ledger.json"
)

// InvalidBackupFileError means the input is not a readable archive of
// a supported version. The store is untouched when it is returned.
type InvalidBackupFileError struct {
	Detail string
}

func (e *InvalidBackupFileError) Error() string {
	return fmt.Sprintf("invalid backup file: %s", e.Detail)
}

// IsInvalidBackupFile reports whether err rejects the archive itself
// rather than signaling an I/O or store failure.
func IsInvalidBackupFile(err error) bool {
	var ie *InvalidBackupFileError
	return errors.As(err, &ie)
}

type manifest struct {
	Version int       `json:"version"`
	Created time.Time `json:"created"`
}

// Export writes a complete archive of the store to w.
func Export(ctx context.Context, st *store.Store, w io.Writer, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	snap, err := st.Export(ctx)
	if err != nil {
		return fmt.Errorf("export snapshot: %w", err)
	}

	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	mf, err := json.Marshal(manifest{Version: formatVersion, Created: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeEntry(tw, manifestEntry, mf); err != nil {
		return err
	}

	// Key material travels as its own entry; an archive without one is
	// not restorable and Import rejects it.
	keys, err := json.Marshal(snap.Signers)
	if err != nil {
		return fmt.Errorf("marshal key material: %w", err)
	}
	if err := writeEntry(tw, keysEntry, keys); err != nil {
		return err
	}

	ledgerSnap := *snap
	ledgerSnap.Signers = nil
	body, err := json.Marshal(&ledgerSnap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := writeEntry(tw, ledgerEntry, body); err != nil {
		return err
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("close archive: %w", err)
	}
	log.Info("backup exported", zap.Int("bytes", len(body)))
	return nil
}

func writeEntry(tw *tar.Writer, name string, body []byte) error {
	hdr := &tar.Header{
		Name: name,
		Mode: 0o600,
		Size: int64(len(body)),
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write %s header: %w", name, err)
	}
	if _, err := tw.Write(body); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

// Import restores an archive into the store. The whole archive is
// parsed and validated before anything is written, and the store write
// is a single transaction, so a bad archive leaves the ledger exactly
// as it was. Existing rows win over archive rows.
func Import(ctx context.Context, st *store.Store, r io.Reader, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	snap, err := parseArchive(r)
	if err != nil {
		return err
	}
	if err := st.Import(ctx, snap); err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}
	log.Info("backup imported",
		zap.Int("letters", len(snap.Letters)),
		zap.Int("insurances", len(snap.Insurances)))
	return nil
}

func parseArchive(r io.Reader) (*store.Snapshot, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, &InvalidBackupFileError{Detail: "not a gzip stream"}
	}
	defer gz.Close()

	var (
		mf   *manifest
		keys *[]record.Signer
		snap *store.Snapshot
	)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &InvalidBackupFileError{Detail: "corrupt tar stream"}
		}
		body, err := io.ReadAll(tr)
		if err != nil {
			return nil, &InvalidBackupFileError{Detail: fmt.Sprintf("truncated entry %s", hdr.Name)}
		}
		switch hdr.Name {
		case manifestEntry:
			mf = &manifest{}
			if err := json.Unmarshal(body, mf); err != nil {
				return nil, &InvalidBackupFileError{Detail: "unreadable manifest"}
			}
		case keysEntry:
			keys = &[]record.Signer{}
			if err := json.Unmarshal(body, keys); err != nil {
				return nil, &InvalidBackupFileError{Detail: "unreadable key material"}
			}
		case ledgerEntry:
			snap = &store.Snapshot{}
			if err := json.Unmarshal(body, snap); err != nil {
				return nil, &InvalidBackupFileError{Detail: "unreadable ledger snapshot"}
			}
		default:
			// Entries from newer versions are ignored, not fatal.
		}
	}

	if mf == nil {
		return nil, &InvalidBackupFileError{Detail: "missing manifest"}
	}
	if mf.Version != formatVersion {
		return nil, &InvalidBackupFileError{Detail: fmt.Sprintf("unsupported version %d", mf.Version)}
	}
	if keys == nil {
		return nil, &InvalidBackupFileError{Detail: "missing key material"}
	}
	if snap == nil {
		return nil, &InvalidBackupFileError{Detail: "missing ledger snapshot"}
	}
	snap.Signers = *keys
	return snap, nil
}
