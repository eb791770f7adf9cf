package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slonigiraf/slonledger/internal/record"
)

// UpsertPseudonym caches a display name for an identity. Every decoded
// transfer envelope refreshes the sender's entry.
func (s *Store) UpsertPseudonym(ctx context.Context, p record.Pseudonym) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pseudonyms (public_key, name, updated)
		VALUES (?, ?, ?)
		ON CONFLICT(public_key) DO UPDATE SET
			name = excluded.name,
			updated = excluded.updated
	`, string(p.PublicKey), p.Name, timeCol(p.Updated))
	if err != nil {
		return fmt.Errorf("upsert pseudonym: %w", err)
	}
	return nil
}

// GetPseudonym looks up a cached display name.
func (s *Store) GetPseudonym(ctx context.Context, key record.PublicKey) (record.Pseudonym, error) {
	var (
		pk      string
		p       record.Pseudonym
		updated int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT public_key, name, updated FROM pseudonyms WHERE public_key = ?
	`, string(key)).Scan(&pk, &p.Name, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Pseudonym{}, ErrNotFound
	}
	if err != nil {
		return record.Pseudonym{}, fmt.Errorf("get pseudonym: %w", err)
	}
	p.PublicKey = record.PublicKey(pk)
	p.Updated = colTime(updated)
	return p, nil
}

// AllPseudonyms returns the full name cache.
func (s *Store) AllPseudonyms(ctx context.Context) ([]record.Pseudonym, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT public_key, name, updated FROM pseudonyms ORDER BY public_key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query pseudonyms: %w", err)
	}
	defer rows.Close()

	out := []record.Pseudonym{}
	for rows.Next() {
		var (
			pk      string
			p       record.Pseudonym
			updated int64
		)
		if err := rows.Scan(&pk, &p.Name, &updated); err != nil {
			return nil, fmt.Errorf("scan pseudonym: %w", err)
		}
		p.PublicKey = record.PublicKey(pk)
		p.Updated = colTime(updated)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pseudonyms: %w", err)
	}
	return out, nil
}

// InsertSigner persists local key material. Idempotent per public key.
func (s *Store) InsertSigner(ctx context.Context, sg record.Signer) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO signers (public_key, secret_key, created)
		VALUES (?, ?, ?)
		ON CONFLICT(public_key) DO NOTHING
	`, string(sg.PublicKey), sg.SecretKey, timeCol(sg.Created))
	if err != nil {
		return fmt.Errorf("insert signer: %w", err)
	}
	return nil
}

// GetSigner retrieves key material by public key.
func (s *Store) GetSigner(ctx context.Context, key record.PublicKey) (record.Signer, error) {
	var (
		pk, sk  string
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT public_key, secret_key, created FROM signers WHERE public_key = ?
	`, string(key)).Scan(&pk, &sk, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Signer{}, ErrNotFound
	}
	if err != nil {
		return record.Signer{}, fmt.Errorf("get signer: %w", err)
	}
	return record.Signer{
		PublicKey: record.PublicKey(pk),
		SecretKey: sk,
		Created:   colTime(created),
	}, nil
}

// AllSigners returns all local key material (exported in backups).
func (s *Store) AllSigners(ctx context.Context) ([]record.Signer, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT public_key, secret_key, created FROM signers ORDER BY public_key ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query signers: %w", err)
	}
	defer rows.Close()

	out := []record.Signer{}
	for rows.Next() {
		var (
			pk, sk  string
			created int64
		)
		if err := rows.Scan(&pk, &sk, &created); err != nil {
			return nil, fmt.Errorf("scan signer: %w", err)
		}
		out = append(out, record.Signer{
			PublicKey: record.PublicKey(pk),
			SecretKey: sk,
			Created:   colTime(created),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate signers: %w", err)
	}
	return out, nil
}

// SetSetting stores a string setting. Last write wins; the single
// connection serializes racing writers.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// GetSetting returns a setting value, or "" with ok=false if unset.
func (s *Store) GetSetting(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `
		SELECT value FROM settings WHERE key = ?
	`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get setting: %w", err)
	}
	return value, true, nil
}

// AllSettings returns every setting.
func (s *Store) AllSettings(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return nil, fmt.Errorf("query settings: %w", err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan setting: %w", err)
		}
		out[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settings: %w", err)
	}
	return out, nil
}

// PutAgreement caches content-addressed lesson/skill JSON.
func (s *Store) PutAgreement(ctx context.Context, a record.Agreement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agreements (cid, data) VALUES (?, ?)
		ON CONFLICT(cid) DO NOTHING
	`, a.CID, a.Data)
	if err != nil {
		return fmt.Errorf("put agreement: %w", err)
	}
	return nil
}

// GetAgreement retrieves cached content by cid.
func (s *Store) GetAgreement(ctx context.Context, cid string) (record.Agreement, error) {
	var a record.Agreement
	err := s.db.QueryRowContext(ctx, `
		SELECT cid, data FROM agreements WHERE cid = ?
	`, cid).Scan(&a.CID, &a.Data)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Agreement{}, ErrNotFound
	}
	if err != nil {
		return record.Agreement{}, fmt.Errorf("get agreement: %w", err)
	}
	return a, nil
}

// AllAgreements returns the full content cache.
func (s *Store) AllAgreements(ctx context.Context) ([]record.Agreement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cid, data FROM agreements ORDER BY cid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query agreements: %w", err)
	}
	defer rows.Close()

	out := []record.Agreement{}
	for rows.Next() {
		var a record.Agreement
		if err := rows.Scan(&a.CID, &a.Data); err != nil {
			return nil, fmt.Errorf("scan agreement: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate agreements: %w", err)
	}
	return out, nil
}
