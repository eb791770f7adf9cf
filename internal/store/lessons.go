package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/slonigiraf/slonledger/internal/record"
)

const lessonColumns = `id, created, cid, tutor, student, to_learn_count, learn_step,
	to_reexamine_count, reexamine_step, d_price, d_warranty, d_validity,
	was_price_discussed, is_paid, sent, last_action`

// UpsertLesson persists a lesson's state. Lesson ids are derived
// deterministically from the participants and content, so resuming a
// session updates the existing row in place.
func (s *Store) UpsertLesson(ctx context.Context, l record.Lesson) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lessons
		(`+lessonColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			to_learn_count = excluded.to_learn_count,
			learn_step = excluded.learn_step,
			to_reexamine_count = excluded.to_reexamine_count,
			reexamine_step = excluded.reexamine_step,
			d_price = excluded.d_price,
			d_warranty = excluded.d_warranty,
			d_validity = excluded.d_validity,
			was_price_discussed = excluded.was_price_discussed,
			is_paid = excluded.is_paid,
			sent = excluded.sent,
			last_action = excluded.last_action
	`,
		l.ID,
		timeCol(l.Created),
		l.CID,
		string(l.Tutor),
		string(l.Student),
		l.ToLearnCount,
		l.LearnStep,
		l.ToReexamineCount,
		l.ReexamineStep,
		amountCol(l.DPrice),
		amountCol(l.DWarranty),
		l.DValidity,
		boolCol(l.WasPriceDiscussed),
		boolCol(l.IsPaid),
		boolCol(l.Sent),
		string(l.LastAction),
	)
	if err != nil {
		return fmt.Errorf("upsert lesson: %w", err)
	}
	return nil
}

func scanLesson(row rowScanner) (record.Lesson, error) {
	var (
		l                          record.Lesson
		created                    int64
		tutor, student, lastAction string
		dPrice, dWarranty          string
		priceDiscussed, paid, sent int
	)
	err := row.Scan(
		&l.ID, &created, &l.CID, &tutor, &student,
		&l.ToLearnCount, &l.LearnStep, &l.ToReexamineCount, &l.ReexamineStep,
		&dPrice, &dWarranty, &l.DValidity,
		&priceDiscussed, &paid, &sent, &lastAction,
	)
	if err != nil {
		return record.Lesson{}, err
	}
	l.Created = colTime(created)
	l.Tutor = record.PublicKey(tutor)
	l.Student = record.PublicKey(student)
	l.WasPriceDiscussed = colBool(priceDiscussed)
	l.IsPaid = colBool(paid)
	l.Sent = colBool(sent)
	l.LastAction = record.LessonAction(lastAction)
	if l.DPrice, err = colAmount(dPrice); err != nil {
		return record.Lesson{}, fmt.Errorf("scan lesson: %w", err)
	}
	if l.DWarranty, err = colAmount(dWarranty); err != nil {
		return record.Lesson{}, fmt.Errorf("scan lesson: %w", err)
	}
	return l, nil
}

// GetLesson retrieves a lesson by id. Returns ErrNotFound if absent.
func (s *Store) GetLesson(ctx context.Context, id string) (record.Lesson, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+lessonColumns+` FROM lessons WHERE id = ?
	`, id)
	l, err := scanLesson(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Lesson{}, ErrNotFound
	}
	if err != nil {
		return record.Lesson{}, fmt.Errorf("get lesson: %w", err)
	}
	return l, nil
}

// AllLessons returns every lesson, deterministically ordered.
func (s *Store) AllLessons(ctx context.Context) ([]record.Lesson, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lessonColumns+` FROM lessons ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query lessons: %w", err)
	}
	defer rows.Close()

	out := []record.Lesson{}
	for rows.Next() {
		l, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lesson: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lessons: %w", err)
	}
	return out, nil
}

// UpsertLetterTemplate records a tutor's stake-at-risk for one skill
// within a lesson, before the student countersigns. Keyed by
// (lesson, cid); re-recording updates the amount and receipt.
func (s *Store) UpsertLetterTemplate(ctx context.Context, t record.LetterTemplate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO letter_templates
		(lesson, cid, created, is_penalty, amount, sign_over_receipt)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(lesson, cid) DO UPDATE SET
			is_penalty = excluded.is_penalty,
			amount = excluded.amount,
			sign_over_receipt = excluded.sign_over_receipt
	`,
		t.Lesson, t.CID, timeCol(t.Created), boolCol(t.IsPenalty),
		amountCol(t.Amount), string(t.SignOverReceipt),
	)
	if err != nil {
		return fmt.Errorf("upsert letter template: %w", err)
	}
	return nil
}

// LetterTemplatesByLesson lists the stake rows for one lesson.
func (s *Store) LetterTemplatesByLesson(ctx context.Context, lesson string) ([]record.LetterTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lesson, cid, created, is_penalty, amount, sign_over_receipt
		FROM letter_templates WHERE lesson = ? ORDER BY cid ASC
	`, lesson)
	if err != nil {
		return nil, fmt.Errorf("query letter templates: %w", err)
	}
	defer rows.Close()

	out := []record.LetterTemplate{}
	for rows.Next() {
		var (
			t       record.LetterTemplate
			created int64
			penalty int
			amount  string
			receipt string
		)
		if err := rows.Scan(&t.Lesson, &t.CID, &created, &penalty, &amount, &receipt); err != nil {
			return nil, fmt.Errorf("scan letter template: %w", err)
		}
		t.Created = colTime(created)
		t.IsPenalty = colBool(penalty)
		t.SignOverReceipt = record.Signature(receipt)
		if t.Amount, err = colAmount(amount); err != nil {
			return nil, fmt.Errorf("scan letter template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate letter templates: %w", err)
	}
	return out, nil
}

// AllLetterTemplates returns every stake row, deterministically
// ordered.
func (s *Store) AllLetterTemplates(ctx context.Context) ([]record.LetterTemplate, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT lesson, cid, created, is_penalty, amount, sign_over_receipt
		FROM letter_templates ORDER BY lesson ASC, cid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query letter templates: %w", err)
	}
	defer rows.Close()

	out := []record.LetterTemplate{}
	for rows.Next() {
		var (
			t       record.LetterTemplate
			created int64
			penalty int
			amount  string
			receipt string
		)
		if err := rows.Scan(&t.Lesson, &t.CID, &created, &penalty, &amount, &receipt); err != nil {
			return nil, fmt.Errorf("scan letter template: %w", err)
		}
		t.Created = colTime(created)
		t.IsPenalty = colBool(penalty)
		t.SignOverReceipt = record.Signature(receipt)
		if t.Amount, err = colAmount(amount); err != nil {
			return nil, fmt.Errorf("scan letter template: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate letter templates: %w", err)
	}
	return out, nil
}

// DeleteLetterTemplate removes a stake row once it has been promoted
// to a letter. No-op if absent.
func (s *Store) DeleteLetterTemplate(ctx context.Context, lesson, cid string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM letter_templates WHERE lesson = ? AND cid = ?
	`, lesson, cid)
	if err != nil {
		return fmt.Errorf("delete letter template: %w", err)
	}
	return nil
}
