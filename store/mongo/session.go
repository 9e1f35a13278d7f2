package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/session"
)

// CreateSession persists the session; the unique identity_key index
// arbitrates concurrent creates, so the first writer wins and later
// writers receive the stored session.
func (s *Store) CreateSession(ctx context.Context, sess *session.Session) (*session.Session, bool, error) {
	doc := toSessionDoc(sess)
	_, err := s.db.Collection(colSessions).InsertOne(ctx, doc)
	if err != nil {
		if isDuplicateKey(err) {
			existing, getErr := s.GetSession(ctx, sess.IdentityKey)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, fmt.Errorf("conduct/mongo: create session: %w", err)
	}
	return sess.Clone(), true, nil
}

// GetSession retrieves a session by identity key.
func (s *Store) GetSession(ctx context.Context, identityKey string) (*session.Session, error) {
	var doc sessionDoc
	err := s.db.Collection(colSessions).
		FindOne(ctx, bson.M{"identity_key": identityKey}).
		Decode(&doc)
	if err != nil {
		if isNoDocuments(err) {
			return nil, conduct.ErrSessionNotFound
		}
		return nil, fmt.Errorf("conduct/mongo: get session: %w", err)
	}
	return fromSessionDoc(&doc)
}

// CommitStep applies the effect and advances the step with a conditional
// update filtered on (identity_key, step). Participants only change
// through commits, and every commit advances the step, so a matching
// filter guarantees the document is exactly the one that was read. When
// the filter misses, a re-read distinguishes a lost race from a stale
// expectation.
func (s *Store) CommitStep(ctx context.Context, identityKey string, expectedStep int64, effect *session.Effect) (*session.Session, error) {
	sess, err := s.GetSession(ctx, identityKey)
	if err != nil {
		return nil, err
	}

	if sess.Step != expectedStep {
		if sess.Step > expectedStep {
			return nil, conduct.ErrStepConflict
		}
		return nil, conduct.ErrStepMismatch
	}

	if err := applyEffect(sess, effect); err != nil {
		return nil, err
	}
	sess.Step = expectedStep + 1
	sess.Touch()

	res, err := s.db.Collection(colSessions).UpdateOne(ctx,
		bson.M{"identity_key": identityKey, "step": expectedStep},
		bson.M{"$set": bson.M{
			"participants": toParticipantDocs(sess.Participants),
			"step":         sess.Step,
			"pool_balance": sess.PoolBalance,
			"updated_at":   now(),
		}},
	)
	if err != nil {
		return nil, fmt.Errorf("conduct/mongo: commit step: %w", err)
	}
	if res.MatchedCount == 0 {
		// Another commit advanced the step between our read and write.
		return nil, conduct.ErrStepConflict
	}
	return sess, nil
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
