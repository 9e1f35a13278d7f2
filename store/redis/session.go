package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/session"
)

// CreateSession persists the session with SETNX semantics: the first
// writer for an identity key wins, later writers get the stored session.
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) (*session.Session, bool, error) {
	blob, err := encodeSession(sess)
	if err != nil {
		return nil, false, fmt.Errorf("redis: encode session: %w", err)
	}

	set, err := s.client.SetNX(ctx, sessionKey(sess.IdentityKey), blob, 0).Result()
	if err != nil {
		return nil, false, fmt.Errorf("redis: create session %q: %w", sess.IdentityKey, err)
	}
	if set {
		return sess.Clone(), true, nil
	}

	existing, err := s.GetSession(ctx, sess.IdentityKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetSession retrieves a session by identity key.
func (s *Store) GetSession(ctx context.Context, identityKey string) (*session.Session, error) {
	blob, err := s.client.Get(ctx, sessionKey(identityKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, conduct.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get session %q: %w", identityKey, err)
	}

	sess, err := decodeSession(blob)
	if err != nil {
		return nil, fmt.Errorf("redis: decode session %q: %w", identityKey, err)
	}
	return sess, nil
}

// CommitStep applies the effect and advances the step with a WATCH-based
// compare-and-set: the session key is watched, the step checked, and the
// new blob written inside a transaction that aborts if the key changed.
// A WATCH abort means another commit raced ours; the step is re-examined
// a bounded number of times so the caller still gets the precise error.
func (s *Store) CommitStep(ctx context.Context, identityKey string, expectedStep int64, effect *session.Effect) (*session.Session, error) {
	key := sessionKey(identityKey)

	var committed *session.Session
	txn := func(tx *redis.Tx) error {
		blob, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return conduct.ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("redis: get session %q: %w", identityKey, err)
		}

		sess, err := decodeSession(blob)
		if err != nil {
			return fmt.Errorf("redis: decode session %q: %w", identityKey, err)
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

		next, err := encodeSession(sess)
		if err != nil {
			return fmt.Errorf("redis: encode session %q: %w", identityKey, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, next, 0)
			return nil
		})
		if err != nil {
			return err
		}
		committed = sess
		return nil
	}

	for attempt := 0; attempt <= s.commitRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if errors.Is(err, redis.TxFailedErr) {
			// Key changed between read and write. Re-read: if the step
			// moved we lost the race, otherwise retry the CAS.
			continue
		}
		if err != nil {
			return nil, err
		}
		return committed, nil
	}
	return nil, conduct.ErrStepConflict
}

// applyEffect validates and applies credits and the pool delta. Mirrors
// the validation discipline of the other backends: nothing is applied
// when any credit targets an unknown participant.
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
