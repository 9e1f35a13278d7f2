package bunstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/session"
)

// CreateSession persists the session; the first writer for an identity
// key wins and later writers receive the stored session.
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) (*session.Session, bool, error) {
	m, err := toSessionModel(sess)
	if err != nil {
		return nil, false, err
	}

	_, err = s.db.NewInsert().Model(m).Exec(ctx)
	if err != nil {
		if isDuplicateKey(err) {
			existing, getErr := s.GetSession(ctx, sess.IdentityKey)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("conduct/bun: create session: %w", err)
	}
	return sess.Clone(), true, nil
}

// GetSession retrieves a session by identity key.
func (s *Store) GetSession(ctx context.Context, identityKey string) (*session.Session, error) {
	m := new(sessionModel)
	err := s.db.NewSelect().Model(m).
		Where("identity_key = ?", identityKey).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, conduct.ErrSessionNotFound
		}
		return nil, fmt.Errorf("conduct/bun: get session: %w", err)
	}
	return fromSessionModel(m)
}

// CommitStep applies the effect and advances the step inside a
// transaction that locks the session row. Concurrent commits serialize
// on the lock; the loser re-reads an advanced step and fails with
// ErrStepConflict, while a genuinely stale or future step fails with
// ErrStepMismatch.
func (s *Store) CommitStep(ctx context.Context, identityKey string, expectedStep int64, effect *session.Effect) (*session.Session, error) {
	var committed *session.Session

	err := s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		m := new(sessionModel)
		err := tx.NewSelect().Model(m).
			Where("identity_key = ?", identityKey).
			For("UPDATE").
			Limit(1).
			Scan(ctx)
		if err != nil {
			if isNoRows(err) {
				return conduct.ErrSessionNotFound
			}
			return fmt.Errorf("conduct/bun: lock session: %w", err)
		}

		sess, err := fromSessionModel(m)
		if err != nil {
			return err
		}

		if sess.Step != expectedStep {
			if sess.Step > expectedStep {
				return conduct.ErrStepConflict
			}
			return conduct.ErrStepMismatch
		}

		if err := applyEffect(sess, effect); err != nil {
			return err
		}
		sess.Step = expectedStep + 1
		sess.Touch()

		next, err := toSessionModel(sess)
		if err != nil {
			return err
		}
		next.UpdatedAt = time.Now().UTC()

		res, err := tx.NewUpdate().Model(next).
			Column("participants", "step", "pool_balance", "updated_at").
			Where("identity_key = ?", identityKey).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("conduct/bun: commit step: %w", err)
		}
		rows, _ := res.RowsAffected() //nolint:errcheck // driver always returns nil
		if rows == 0 {
			return conduct.ErrStepConflict
		}

		committed = sess
		return nil
	})
	if err != nil {
		return nil, err
	}
	return committed, nil
}

// applyEffect validates every credit before applying anything: a single
// unknown participant leaves the session untouched.
func applyEffect(sess *session.Session, effect *session.Effect) error {
	if effect == nil {
		return nil
	}
	for _, c := range effect.Credits {
		if _, ok := sess.Participant(c.ParticipantID); !ok {
			return fmt.Errorf("participant %s: %w", c.ParticipantID, conduct.ErrParticipantNotFound)
		}
	}
	for _, c := range effect.Credits {
		p, _ := sess.Participant(c.ParticipantID)
		p.Points += c.Points
		p.Bonus += c.Bonus
		p.Touch()
	}
	sess.PoolBalance += effect.PoolDelta
	return nil
}
