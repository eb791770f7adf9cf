package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/slonigiraf/slonledger/internal/record"
)

// IngestOutcome classifies the result of an ingest-style insert.
type IngestOutcome int

const (
	// OutcomeInserted means the record was new and is now persisted.
	OutcomeInserted IngestOutcome = iota
	// OutcomeDuplicate means the record's identity already exists
	// (live row or, for worker signs, a tombstone).
	OutcomeDuplicate
	// OutcomeRevoked means a tombstone for the credential's
	// (worker, knowledge, cid) exists; the record must not be
	// re-admitted.
	OutcomeRevoked
)

const insuranceColumns = `worker_sign, sign_over_receipt, valid, reexam_count, last_reexamined,
	lesson, worker_id, knowledge_id, cid, genesis, letter_number, block, block_allowed,
	referee, worker, employer, amount, sign_over_private_data, was_used`

// workerSignKnownTx checks workerSign uniqueness across live
// insurances and canceled-insurance tombstones in one statement, so
// there is no window between checking the two tables.
func workerSignKnownTx(ctx context.Context, tx *sql.Tx, workerSign record.Signature) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT worker_sign FROM insurances WHERE worker_sign = ?
			UNION ALL
			SELECT worker_sign FROM canceled_insurances WHERE worker_sign = ?
		)
	`, string(workerSign), string(workerSign)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check worker sign: %w", err)
	}
	return count > 0, nil
}

// WorkerSignKnown reports whether a worker sign exists in either the
// live insurance table or the tombstones.
func (s *Store) WorkerSignKnown(ctx context.Context, workerSign record.Signature) (known bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		known, err = workerSignKnownTx(ctx, tx, workerSign)
		return err
	})
	return known, err
}

func revokedTx(ctx context.Context, tx *sql.Tx, workerID, knowledgeID, cid string) (bool, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT cid FROM canceled_letters
			WHERE worker_id = ? AND knowledge_id = ? AND cid = ?
			UNION ALL
			SELECT cid FROM canceled_insurances
			WHERE worker_id = ? AND knowledge_id = ? AND cid = ?
		)
	`, workerID, knowledgeID, cid, workerID, knowledgeID, cid).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check tombstones: %w", err)
	}
	return count > 0, nil
}

func insertInsuranceTx(ctx context.Context, tx *sql.Tx, ins record.Insurance) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO insurances
		(`+insuranceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING
	`,
		string(ins.WorkerSign),
		string(ins.SignOverReceipt),
		boolCol(ins.Valid),
		ins.ReexamCount,
		timeCol(ins.LastReexamined),
		ins.Lesson,
		ins.WorkerID,
		ins.KnowledgeID,
		ins.CID,
		ins.Genesis,
		ins.LetterNumber,
		ins.Block,
		ins.BlockAllowed,
		string(ins.Referee),
		string(ins.Worker),
		string(ins.Employer),
		amountCol(ins.Amount),
		string(ins.SignOverPrivateData),
		boolCol(ins.WasUsed),
	)
	if err != nil {
		return false, fmt.Errorf("insert insurance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert insurance: rows affected: %w", err)
	}
	return n > 0, nil
}

// IngestInsurance atomically runs the anti-replay checks and inserts
// the insurance. The whole check-then-insert runs in one transaction
// on the store's single connection, so two concurrent ingests of the
// same workerSign serialize and exactly one wins.
func (s *Store) IngestInsurance(ctx context.Context, ins record.Insurance) (outcome IngestOutcome, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		revoked, err := revokedTx(ctx, tx, ins.WorkerID, ins.KnowledgeID, ins.CID)
		if err != nil {
			return err
		}
		if revoked {
			outcome = OutcomeRevoked
			return nil
		}

		known, err := workerSignKnownTx(ctx, tx, ins.WorkerSign)
		if err != nil {
			return err
		}
		if known {
			outcome = OutcomeDuplicate
			return nil
		}

		inserted, err := insertInsuranceTx(ctx, tx, ins)
		if err != nil {
			return err
		}
		if !inserted {
			// Lost to a (lesson, receipt, employer) conflict.
			outcome = OutcomeDuplicate
			return nil
		}
		outcome = OutcomeInserted
		return nil
	})
	return outcome, err
}

// IngestLetter runs the tombstone check and inserts the letter
// atomically.
func (s *Store) IngestLetter(ctx context.Context, l record.Letter) (outcome IngestOutcome, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		revoked, err := revokedTx(ctx, tx, l.WorkerID, l.KnowledgeID, l.CID)
		if err != nil {
			return err
		}
		if revoked {
			outcome = OutcomeRevoked
			return nil
		}

		inserted, err := s.insertLetter(ctx, tx, l)
		if err != nil {
			return err
		}
		if inserted {
			outcome = OutcomeInserted
		} else {
			outcome = OutcomeDuplicate
		}
		return nil
	})
	return outcome, err
}

// InsertInsurance is the plain idempotent insert used by snapshot
// import. It bypasses the revocation check: a snapshot legitimately
// contains both an insurance's history and its tombstone.
func (s *Store) InsertInsurance(ctx context.Context, ins record.Insurance) (inserted bool, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		inserted, err = insertInsuranceTx(ctx, tx, ins)
		return err
	})
	return inserted, err
}

func scanInsurance(row rowScanner) (record.Insurance, error) {
	var (
		ins                         record.Insurance
		valid, wasUsed              int
		lastReexamined              int64
		amount                      string
		workerSign, receipt         string
		referee, worker, employer   string
		sopd                        string
	)
	err := row.Scan(
		&workerSign, &receipt, &valid, &ins.ReexamCount, &lastReexamined,
		&ins.Lesson, &ins.WorkerID, &ins.KnowledgeID, &ins.CID, &ins.Genesis,
		&ins.LetterNumber, &ins.Block, &ins.BlockAllowed,
		&referee, &worker, &employer, &amount, &sopd, &wasUsed,
	)
	if err != nil {
		return record.Insurance{}, err
	}
	ins.WorkerSign = record.Signature(workerSign)
	ins.SignOverReceipt = record.Signature(receipt)
	ins.Valid = colBool(valid)
	ins.WasUsed = colBool(wasUsed)
	ins.LastReexamined = colTime(lastReexamined)
	ins.Referee = record.PublicKey(referee)
	ins.Worker = record.PublicKey(worker)
	ins.Employer = record.PublicKey(employer)
	ins.SignOverPrivateData = record.Signature(sopd)
	ins.Amount, err = colAmount(amount)
	if err != nil {
		return record.Insurance{}, fmt.Errorf("scan insurance: %w", err)
	}
	return ins, nil
}

// GetInsurance retrieves an insurance by its worker sign.
func (s *Store) GetInsurance(ctx context.Context, workerSign record.Signature) (record.Insurance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+insuranceColumns+` FROM insurances WHERE worker_sign = ?
	`, string(workerSign))
	ins, err := scanInsurance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Insurance{}, ErrNotFound
	}
	if err != nil {
		return record.Insurance{}, fmt.Errorf("get insurance: %w", err)
	}
	return ins, nil
}

// InsurancesByEmployerAndWorker is the primary history access path:
// everything a given employer holds against a given worker.
func (s *Store) InsurancesByEmployerAndWorker(ctx context.Context, employer, worker record.PublicKey) ([]record.Insurance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+insuranceColumns+` FROM insurances
		WHERE employer = ? AND worker = ?
		ORDER BY referee ASC, letter_number ASC
	`, string(employer), string(worker))
	if err != nil {
		return nil, fmt.Errorf("query insurances: %w", err)
	}
	defer rows.Close()
	return collectInsurances(rows)
}

// InsuranceByLessonReceipt looks up an insurance by its originating
// lesson and letter receipt, used for duplicate detection during
// tutoring sessions.
func (s *Store) InsuranceByLessonReceipt(ctx context.Context, lesson string, signOverReceipt record.Signature) (record.Insurance, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+insuranceColumns+` FROM insurances
		WHERE lesson = ? AND sign_over_receipt = ?
	`, lesson, string(signOverReceipt))
	ins, err := scanInsurance(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Insurance{}, ErrNotFound
	}
	if err != nil {
		return record.Insurance{}, fmt.Errorf("get insurance by lesson: %w", err)
	}
	return ins, nil
}

// AllInsurances returns every insurance, deterministically ordered.
func (s *Store) AllInsurances(ctx context.Context) ([]record.Insurance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+insuranceColumns+` FROM insurances
		ORDER BY worker_sign ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query insurances: %w", err)
	}
	defer rows.Close()
	return collectInsurances(rows)
}

func collectInsurances(rows *sql.Rows) ([]record.Insurance, error) {
	out := []record.Insurance{}
	for rows.Next() {
		ins, err := scanInsurance(rows)
		if err != nil {
			return nil, fmt.Errorf("scan insurance: %w", err)
		}
		out = append(out, ins)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate insurances: %w", err)
	}
	return out, nil
}

// SettleInsurance marks an insurance as consumed by a successful
// reimbursement: wasUsed=true, valid=false. Terminal.
func (s *Store) SettleInsurance(ctx context.Context, workerSign record.Signature) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE insurances SET was_used = 1, valid = 0 WHERE worker_sign = ?
	`, string(workerSign))
	if err != nil {
		return fmt.Errorf("settle insurance: %w", err)
	}
	return nil
}

// VoidInsurance marks an insurance invalid without consuming it
// (rejected reimbursement or failed reexamination). Terminal.
func (s *Store) VoidInsurance(ctx context.Context, workerSign record.Signature) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE insurances SET valid = 0 WHERE worker_sign = ?
	`, string(workerSign))
	if err != nil {
		return fmt.Errorf("void insurance: %w", err)
	}
	return nil
}

// TouchInsuranceReexam records a passed reexamination: bumps the
// count and stamps the time, leaving validity untouched.
func (s *Store) TouchInsuranceReexam(ctx context.Context, workerSign record.Signature, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE insurances
		SET reexam_count = reexam_count + 1, last_reexamined = ?
		WHERE worker_sign = ?
	`, timeCol(at), string(workerSign))
	if err != nil {
		return fmt.Errorf("touch insurance reexam: %w", err)
	}
	return nil
}

// CancelInsurance atomically invalidates an insurance and writes its
// tombstone. Canceling twice, or canceling a worker sign that only
// exists as a tombstone, is a no-op.
func (s *Store) CancelInsurance(ctx context.Context, workerSign record.Signature, canceledAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+insuranceColumns+` FROM insurances WHERE worker_sign = ?
		`, string(workerSign))
		ins, err := scanInsurance(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil // already canceled or never seen
		}
		if err != nil {
			return fmt.Errorf("cancel insurance: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE insurances SET valid = 0 WHERE worker_sign = ?
		`, string(workerSign)); err != nil {
			return fmt.Errorf("cancel insurance: invalidate: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO canceled_insurances
			(worker_sign, created, canceled, worker_id, knowledge_id, cid, referee, employer)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(worker_sign) DO NOTHING
		`,
			string(ins.WorkerSign),
			timeCol(canceledAt),
			timeCol(canceledAt),
			ins.WorkerID,
			ins.KnowledgeID,
			ins.CID,
			string(ins.Referee),
			string(ins.Employer),
		); err != nil {
			return fmt.Errorf("cancel insurance: tombstone: %w", err)
		}
		return nil
	})
}

// InsertCanceledInsurance writes an insurance tombstone directly
// (snapshot import). Idempotent.
func (s *Store) InsertCanceledInsurance(ctx context.Context, c record.CanceledInsurance) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canceled_insurances
		(worker_sign, created, canceled, worker_id, knowledge_id, cid, referee, employer)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(worker_sign) DO NOTHING
	`,
		string(c.WorkerSign), timeCol(c.Created), timeCol(c.Canceled),
		c.WorkerID, c.KnowledgeID, c.CID, string(c.Referee), string(c.Employer),
	)
	if err != nil {
		return fmt.Errorf("insert canceled insurance: %w", err)
	}
	return nil
}

// AllCanceledInsurances returns every insurance tombstone.
func (s *Store) AllCanceledInsurances(ctx context.Context) ([]record.CanceledInsurance, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT worker_sign, created, canceled, worker_id, knowledge_id, cid, referee, employer
		FROM canceled_insurances ORDER BY worker_sign ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query canceled insurances: %w", err)
	}
	defer rows.Close()

	out := []record.CanceledInsurance{}
	for rows.Next() {
		var (
			c                           record.CanceledInsurance
			ws, referee, employer       string
			created, canceled           int64
		)
		if err := rows.Scan(&ws, &created, &canceled, &c.WorkerID, &c.KnowledgeID, &c.CID, &referee, &employer); err != nil {
			return nil, fmt.Errorf("scan canceled insurance: %w", err)
		}
		c.WorkerSign = record.Signature(ws)
		c.Referee = record.PublicKey(referee)
		c.Employer = record.PublicKey(employer)
		c.Created = colTime(created)
		c.Canceled = colTime(canceled)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canceled insurances: %w", err)
	}
	return out, nil
}
