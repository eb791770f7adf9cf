package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slonigiraf/slonledger/internal/record"
)

const usageRightColumns = `pub_sign, used, created, employer, worker_sign, referee, letter_number`

// InsertUsageRight grants an employer permission to redeem a worker's
// insurance. Idempotent per (employer, worker_sign); re-granting
// reports inserted=false.
func (s *Store) InsertUsageRight(ctx context.Context, r record.UsageRight) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_rights
		(`+usageRightColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		string(r.PubSign),
		boolCol(r.Used),
		timeCol(r.Created),
		string(r.Employer),
		string(r.WorkerSign),
		string(r.Referee),
		r.LetterNumber,
	)
	if err != nil {
		return false, fmt.Errorf("insert usage right: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert usage right: rows affected: %w", err)
	}
	return n > 0, nil
}

func scanUsageRight(row rowScanner) (record.UsageRight, error) {
	var (
		r                    record.UsageRight
		used                 int
		created              int64
		pubSign, employer    string
		workerSign, referee  string
	)
	err := row.Scan(&pubSign, &used, &created, &employer, &workerSign, &referee, &r.LetterNumber)
	if err != nil {
		return record.UsageRight{}, err
	}
	r.PubSign = record.Signature(pubSign)
	r.Used = colBool(used)
	r.Created = colTime(created)
	r.Employer = record.PublicKey(employer)
	r.WorkerSign = record.Signature(workerSign)
	r.Referee = record.PublicKey(referee)
	return r, nil
}

// GetUsageRight retrieves a grant by its signature.
func (s *Store) GetUsageRight(ctx context.Context, pubSign record.Signature) (record.UsageRight, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+usageRightColumns+` FROM usage_rights WHERE pub_sign = ?
	`, string(pubSign))
	r, err := scanUsageRight(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.UsageRight{}, ErrNotFound
	}
	if err != nil {
		return record.UsageRight{}, fmt.Errorf("get usage right: %w", err)
	}
	return r, nil
}

// UsageRightsByEmployer lists the grants an employer holds.
func (s *Store) UsageRightsByEmployer(ctx context.Context, employer record.PublicKey) ([]record.UsageRight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+usageRightColumns+` FROM usage_rights
		WHERE employer = ?
		ORDER BY pub_sign ASC
	`, string(employer))
	if err != nil {
		return nil, fmt.Errorf("query usage rights: %w", err)
	}
	defer rows.Close()
	return collectUsageRights(rows)
}

// AllUsageRights returns every grant, deterministically ordered.
func (s *Store) AllUsageRights(ctx context.Context) ([]record.UsageRight, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+usageRightColumns+` FROM usage_rights ORDER BY pub_sign ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query usage rights: %w", err)
	}
	defer rows.Close()
	return collectUsageRights(rows)
}

func collectUsageRights(rows *sql.Rows) ([]record.UsageRight, error) {
	out := []record.UsageRight{}
	for rows.Next() {
		r, err := scanUsageRight(rows)
		if err != nil {
			return nil, fmt.Errorf("scan usage right: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate usage rights: %w", err)
	}
	return out, nil
}

// ConsumeUsageRight flips a grant's used flag. It flips at most once:
// the update is conditional on used = 0 and reports whether this call
// consumed it.
func (s *Store) ConsumeUsageRight(ctx context.Context, pubSign record.Signature) (consumed bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE usage_rights SET used = 1 WHERE pub_sign = ? AND used = 0
	`, string(pubSign))
	if err != nil {
		return false, fmt.Errorf("consume usage right: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume usage right: rows affected: %w", err)
	}
	return n > 0, nil
}
