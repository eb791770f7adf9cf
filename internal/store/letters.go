package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/slonigiraf/slonledger/internal/record"
)

// ErrNotFound is returned by single-row reads when no row matches.
var ErrNotFound = errors.New("record not found")

const letterColumns = `sign_over_receipt, valid, reexam_count, last_reexamined, lesson,
	worker_id, knowledge_id, cid, genesis, letter_number, block,
	referee, worker, amount, sign_over_private_data`

type rowScanner interface {
	Scan(dest ...any) error
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertLetter persists a letter. Returns inserted=false if a letter
// with the same sign_over_receipt already exists; the existing row is
// never overwritten. A (referee, letter_number) collision with a
// different receipt is a constraint error.
func (s *Store) InsertLetter(ctx context.Context, l record.Letter) (inserted bool, err error) {
	return s.insertLetter(ctx, s.db, l)
}

func (s *Store) insertLetter(ctx context.Context, db execer, l record.Letter) (bool, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO letters
		(`+letterColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(sign_over_receipt) DO NOTHING
	`,
		string(l.SignOverReceipt),
		boolCol(l.Valid),
		l.ReexamCount,
		timeCol(l.LastReexamined),
		l.Lesson,
		l.WorkerID,
		l.KnowledgeID,
		l.CID,
		l.Genesis,
		l.LetterNumber,
		l.Block,
		string(l.Referee),
		string(l.Worker),
		amountCol(l.Amount),
		string(l.SignOverPrivateData),
	)
	if err != nil {
		return false, fmt.Errorf("insert letter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert letter: rows affected: %w", err)
	}
	return n > 0, nil
}

func scanLetter(row rowScanner) (record.Letter, error) {
	var (
		l                     record.Letter
		valid                 int
		lastReexamined        int64
		amount                string
		receipt, referee      string
		worker, sopd          string
	)
	err := row.Scan(
		&receipt, &valid, &l.ReexamCount, &lastReexamined, &l.Lesson,
		&l.WorkerID, &l.KnowledgeID, &l.CID, &l.Genesis, &l.LetterNumber, &l.Block,
		&referee, &worker, &amount, &sopd,
	)
	if err != nil {
		return record.Letter{}, err
	}
	l.SignOverReceipt = record.Signature(receipt)
	l.Valid = colBool(valid)
	l.LastReexamined = colTime(lastReexamined)
	l.Referee = record.PublicKey(referee)
	l.Worker = record.PublicKey(worker)
	l.SignOverPrivateData = record.Signature(sopd)
	l.Amount, err = colAmount(amount)
	if err != nil {
		return record.Letter{}, fmt.Errorf("scan letter: %w", err)
	}
	return l, nil
}

// GetLetter retrieves a letter by its receipt signature.
// Returns ErrNotFound if absent.
func (s *Store) GetLetter(ctx context.Context, signOverReceipt record.Signature) (record.Letter, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+letterColumns+` FROM letters WHERE sign_over_receipt = ?
	`, string(signOverReceipt))
	l, err := scanLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Letter{}, ErrNotFound
	}
	if err != nil {
		return record.Letter{}, fmt.Errorf("get letter: %w", err)
	}
	return l, nil
}

// LettersByWorker returns all letters issued to a worker, ordered by
// referee then letter number for deterministic output.
func (s *Store) LettersByWorker(ctx context.Context, worker record.PublicKey) ([]record.Letter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+letterColumns+` FROM letters
		WHERE worker = ?
		ORDER BY referee ASC, letter_number ASC
	`, string(worker))
	if err != nil {
		return nil, fmt.Errorf("query letters: %w", err)
	}
	defer rows.Close()
	return collectLetters(rows)
}

// AllLetters returns every letter, deterministically ordered.
func (s *Store) AllLetters(ctx context.Context) ([]record.Letter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+letterColumns+` FROM letters
		ORDER BY referee ASC, letter_number ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query letters: %w", err)
	}
	defer rows.Close()
	return collectLetters(rows)
}

func collectLetters(rows *sql.Rows) ([]record.Letter, error) {
	letters := []record.Letter{}
	for rows.Next() {
		l, err := scanLetter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan letter: %w", err)
		}
		letters = append(letters, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate letters: %w", err)
	}
	return letters, nil
}

// NextLetterNumber returns the next unused letter number for a
// referee. Numbers are monotonically assigned and never reused, so
// this is max+1 over both live letters and issued reimbursements.
func (s *Store) NextLetterNumber(ctx context.Context, referee record.PublicKey) (uint32, error) {
	var maxNum sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(n) FROM (
			SELECT MAX(letter_number) AS n FROM letters WHERE referee = ?
			UNION ALL
			SELECT MAX(letter_number) AS n FROM reimbursements WHERE referee = ?
		)
	`, string(referee), string(referee)).Scan(&maxNum)
	if err != nil {
		return 0, fmt.Errorf("next letter number: %w", err)
	}
	if !maxNum.Valid {
		return 1, nil
	}
	return uint32(maxNum.Int64) + 1, nil
}

// SetLetterValid flips a letter's validity flag.
func (s *Store) SetLetterValid(ctx context.Context, signOverReceipt record.Signature, valid bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE letters SET valid = ? WHERE sign_over_receipt = ?
	`, boolCol(valid), string(signOverReceipt))
	if err != nil {
		return fmt.Errorf("set letter valid: %w", err)
	}
	return nil
}

// CancelLetter atomically invalidates a letter and writes its
// tombstone. Canceling an already-canceled letter is a no-op.
func (s *Store) CancelLetter(ctx context.Context, signOverReceipt record.Signature, canceledAt time.Time) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `
			SELECT `+letterColumns+` FROM letters WHERE sign_over_receipt = ?
		`, string(signOverReceipt))
		l, err := scanLetter(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("cancel letter: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `
			UPDATE letters SET valid = 0 WHERE sign_over_receipt = ?
		`, string(signOverReceipt)); err != nil {
			return fmt.Errorf("cancel letter: invalidate: %w", err)
		}

		// Tombstone is append-only; a second cancel hits the conflict
		// clause and changes nothing.
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO canceled_letters
			(pub_sign, created, canceled, worker_id, knowledge_id, cid, referee)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(pub_sign) DO NOTHING
		`,
			string(l.SignOverReceipt),
			timeCol(canceledAt),
			timeCol(canceledAt),
			l.WorkerID,
			l.KnowledgeID,
			l.CID,
			string(l.Referee),
		); err != nil {
			return fmt.Errorf("cancel letter: tombstone: %w", err)
		}
		return nil
	})
}

// InsertCanceledLetter writes a letter tombstone directly (used by
// snapshot import). Idempotent.
func (s *Store) InsertCanceledLetter(ctx context.Context, c record.CanceledLetter) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO canceled_letters
		(pub_sign, created, canceled, worker_id, knowledge_id, cid, referee)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(pub_sign) DO NOTHING
	`,
		string(c.PubSign), timeCol(c.Created), timeCol(c.Canceled),
		c.WorkerID, c.KnowledgeID, c.CID, string(c.Referee),
	)
	if err != nil {
		return fmt.Errorf("insert canceled letter: %w", err)
	}
	return nil
}

// AllCanceledLetters returns every letter tombstone.
func (s *Store) AllCanceledLetters(ctx context.Context) ([]record.CanceledLetter, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT pub_sign, created, canceled, worker_id, knowledge_id, cid, referee
		FROM canceled_letters ORDER BY pub_sign ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query canceled letters: %w", err)
	}
	defer rows.Close()

	out := []record.CanceledLetter{}
	for rows.Next() {
		var (
			c                 record.CanceledLetter
			pubSign, referee  string
			created, canceled int64
		)
		if err := rows.Scan(&pubSign, &created, &canceled, &c.WorkerID, &c.KnowledgeID, &c.CID, &referee); err != nil {
			return nil, fmt.Errorf("scan canceled letter: %w", err)
		}
		c.PubSign = record.Signature(pubSign)
		c.Referee = record.PublicKey(referee)
		c.Created = colTime(created)
		c.Canceled = colTime(canceled)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate canceled letters: %w", err)
	}
	return out, nil
}
