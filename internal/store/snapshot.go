package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/slonigiraf/slonledger/internal/record"
)

// Snapshot is a portable full-store export. Every table is included;
// row order is deterministic so identical stores export identical
// snapshots.
type Snapshot struct {
	Letters            []record.Letter            `json:"letters"`
	CanceledLetters    []record.CanceledLetter    `json:"canceled_letters"`
	Insurances         []record.Insurance         `json:"insurances"`
	CanceledInsurances []record.CanceledInsurance `json:"canceled_insurances"`
	Reimbursements     []record.Reimbursement     `json:"reimbursements"`
	UsageRights        []record.UsageRight        `json:"usage_rights"`
	Lessons            []record.Lesson            `json:"lessons"`
	LetterTemplates    []record.LetterTemplate    `json:"letter_templates"`
	Pseudonyms         []record.Pseudonym         `json:"pseudonyms"`
	Signers            []record.Signer            `json:"signers"`
	Settings           map[string]string          `json:"settings"`
	Agreements         []record.Agreement         `json:"agreements"`
	ScheduledEvents    []record.ScheduledEvent    `json:"scheduled_events"`
}

// Export serializes every table into a Snapshot.
func (s *Store) Export(ctx context.Context) (*Snapshot, error) {
	snap := &Snapshot{}
	var err error

	if snap.Letters, err = s.AllLetters(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.CanceledLetters, err = s.AllCanceledLetters(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.Insurances, err = s.AllInsurances(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.CanceledInsurances, err = s.AllCanceledInsurances(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.Reimbursements, err = s.AllReimbursements(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.UsageRights, err = s.AllUsageRights(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.Lessons, err = s.AllLessons(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.LetterTemplates, err = s.AllLetterTemplates(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.Pseudonyms, err = s.AllPseudonyms(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.Signers, err = s.AllSigners(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.Settings, err = s.AllSettings(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.Agreements, err = s.AllAgreements(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	if snap.ScheduledEvents, err = s.AllScheduledEvents(ctx); err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	return snap, nil
}

// Import applies a snapshot inside a single transaction: either every
// row lands or none does. Inserts are idempotent via the unique keys,
// so importing the same snapshot twice leaves the store unchanged.
func (s *Store) Import(ctx context.Context, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("import: nil snapshot")
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, l := range snap.Letters {
			if _, err := s.insertLetter(ctx, tx, l); err != nil {
				return err
			}
		}
		for _, c := range snap.CanceledLetters {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO canceled_letters
				(pub_sign, created, canceled, worker_id, knowledge_id, cid, referee)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(pub_sign) DO NOTHING
			`, string(c.PubSign), timeCol(c.Created), timeCol(c.Canceled),
				c.WorkerID, c.KnowledgeID, c.CID, string(c.Referee)); err != nil {
				return fmt.Errorf("import canceled letter: %w", err)
			}
		}
		for _, ins := range snap.Insurances {
			if _, err := insertInsuranceTx(ctx, tx, ins); err != nil {
				return err
			}
		}
		for _, c := range snap.CanceledInsurances {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO canceled_insurances
				(worker_sign, created, canceled, worker_id, knowledge_id, cid, referee, employer)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(worker_sign) DO NOTHING
			`, string(c.WorkerSign), timeCol(c.Created), timeCol(c.Canceled),
				c.WorkerID, c.KnowledgeID, c.CID, string(c.Referee), string(c.Employer)); err != nil {
				return fmt.Errorf("import canceled insurance: %w", err)
			}
		}
		for _, r := range snap.Reimbursements {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO reimbursements
				(`+reimbursementColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(referee, letter_number) DO NOTHING
			`, string(r.Referee), r.LetterNumber, r.Genesis, r.Block, r.BlockAllowed,
				string(r.Worker), amountCol(r.Amount), string(r.SignOverReceipt),
				string(r.Employer), string(r.WorkerSign)); err != nil {
				return fmt.Errorf("import reimbursement: %w", err)
			}
		}
		for _, u := range snap.UsageRights {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO usage_rights
				(`+usageRightColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT DO NOTHING
			`, string(u.PubSign), boolCol(u.Used), timeCol(u.Created),
				string(u.Employer), string(u.WorkerSign), string(u.Referee), u.LetterNumber); err != nil {
				return fmt.Errorf("import usage right: %w", err)
			}
		}
		for _, l := range snap.Lessons {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO lessons
				(`+lessonColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT(id) DO NOTHING
			`, l.ID, timeCol(l.Created), l.CID, string(l.Tutor), string(l.Student),
				l.ToLearnCount, l.LearnStep, l.ToReexamineCount, l.ReexamineStep,
				amountCol(l.DPrice), amountCol(l.DWarranty), l.DValidity,
				boolCol(l.WasPriceDiscussed), boolCol(l.IsPaid), boolCol(l.Sent),
				string(l.LastAction)); err != nil {
				return fmt.Errorf("import lesson: %w", err)
			}
		}
		for _, t := range snap.LetterTemplates {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO letter_templates
				(lesson, cid, created, is_penalty, amount, sign_over_receipt)
				VALUES (?, ?, ?, ?, ?, ?)
				ON CONFLICT(lesson, cid) DO NOTHING
			`, t.Lesson, t.CID, timeCol(t.Created), boolCol(t.IsPenalty),
				amountCol(t.Amount), string(t.SignOverReceipt)); err != nil {
				return fmt.Errorf("import letter template: %w", err)
			}
		}
		for _, p := range snap.Pseudonyms {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO pseudonyms (public_key, name, updated)
				VALUES (?, ?, ?)
				ON CONFLICT(public_key) DO NOTHING
			`, string(p.PublicKey), p.Name, timeCol(p.Updated)); err != nil {
				return fmt.Errorf("import pseudonym: %w", err)
			}
		}
		for _, sg := range snap.Signers {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO signers (public_key, secret_key, created)
				VALUES (?, ?, ?)
				ON CONFLICT(public_key) DO NOTHING
			`, string(sg.PublicKey), sg.SecretKey, timeCol(sg.Created)); err != nil {
				return fmt.Errorf("import signer: %w", err)
			}
		}
		for k, v := range snap.Settings {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value) VALUES (?, ?)
				ON CONFLICT(key) DO NOTHING
			`, k, v); err != nil {
				return fmt.Errorf("import setting: %w", err)
			}
		}
		for _, a := range snap.Agreements {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO agreements (cid, data) VALUES (?, ?)
				ON CONFLICT(cid) DO NOTHING
			`, a.CID, a.Data); err != nil {
				return fmt.Errorf("import agreement: %w", err)
			}
		}
		for _, e := range snap.ScheduledEvents {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO scheduled_events (id, type, deadline, data)
				VALUES (?, ?, ?, ?)
				ON CONFLICT(id) DO NOTHING
			`, e.ID, string(e.Type), timeCol(e.Deadline), e.Data); err != nil {
				return fmt.Errorf("import scheduled event: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import snapshot: %w", err)
	}

	s.notifyChange()
	return nil
}
