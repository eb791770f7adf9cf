package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slonigiraf/slonledger/internal/record"
)

const reimbursementColumns = `referee, letter_number, genesis, block, block_allowed,
	worker, amount, sign_over_receipt, employer, worker_sign`

// InsertReimbursement persists a payout request. Unique per
// (referee, letter_number); a duplicate request is reported as
// inserted=false, never overwritten.
func (s *Store) InsertReimbursement(ctx context.Context, r record.Reimbursement) (inserted bool, err error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reimbursements
		(`+reimbursementColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(referee, letter_number) DO NOTHING
	`,
		string(r.Referee),
		r.LetterNumber,
		r.Genesis,
		r.Block,
		r.BlockAllowed,
		string(r.Worker),
		amountCol(r.Amount),
		string(r.SignOverReceipt),
		string(r.Employer),
		string(r.WorkerSign),
	)
	if err != nil {
		return false, fmt.Errorf("insert reimbursement: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert reimbursement: rows affected: %w", err)
	}
	return n > 0, nil
}

func scanReimbursement(row rowScanner) (record.Reimbursement, error) {
	var (
		r                  record.Reimbursement
		referee, worker    string
		employer           string
		amount, receipt    string
		workerSign         string
	)
	err := row.Scan(
		&referee, &r.LetterNumber, &r.Genesis, &r.Block, &r.BlockAllowed,
		&worker, &amount, &receipt, &employer, &workerSign,
	)
	if err != nil {
		return record.Reimbursement{}, err
	}
	r.Referee = record.PublicKey(referee)
	r.Worker = record.PublicKey(worker)
	r.Employer = record.PublicKey(employer)
	r.SignOverReceipt = record.Signature(receipt)
	r.WorkerSign = record.Signature(workerSign)
	r.Amount, err = colAmount(amount)
	if err != nil {
		return record.Reimbursement{}, fmt.Errorf("scan reimbursement: %w", err)
	}
	return r, nil
}

// GetReimbursement retrieves a payout request by its compound key.
func (s *Store) GetReimbursement(ctx context.Context, referee record.PublicKey, letterNumber uint32) (record.Reimbursement, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+reimbursementColumns+` FROM reimbursements
		WHERE referee = ? AND letter_number = ?
	`, string(referee), letterNumber)
	r, err := scanReimbursement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Reimbursement{}, ErrNotFound
	}
	if err != nil {
		return record.Reimbursement{}, fmt.Errorf("get reimbursement: %w", err)
	}
	return r, nil
}

// AllReimbursements returns every pending payout request,
// deterministically ordered.
func (s *Store) AllReimbursements(ctx context.Context) ([]record.Reimbursement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+reimbursementColumns+` FROM reimbursements
		ORDER BY referee ASC, letter_number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query reimbursements: %w", err)
	}
	defer rows.Close()

	out := []record.Reimbursement{}
	for rows.Next() {
		r, err := scanReimbursement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reimbursement: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reimbursements: %w", err)
	}
	return out, nil
}

// DeleteReimbursement removes a consumed payout request. Deleting a
// missing row is a no-op.
func (s *Store) DeleteReimbursement(ctx context.Context, referee record.PublicKey, letterNumber uint32) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM reimbursements WHERE referee = ? AND letter_number = ?
	`, string(referee), letterNumber)
	if err != nil {
		return fmt.Errorf("delete reimbursement: %w", err)
	}
	return nil
}
