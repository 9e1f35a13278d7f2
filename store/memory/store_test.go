package memory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/meridianhq/conduct"
	"github.com/meridianhq/conduct/id"
	"github.com/meridianhq/conduct/ledger"
	"github.com/meridianhq/conduct/session"
	"github.com/meridianhq/conduct/store/memory"
)

func newSession(identityKey string, handles ...string) *session.Session {
	s := &session.Session{
		Entity:      conduct.NewEntity(),
		ID:          id.NewSessionID(),
		IdentityKey: identityKey,
	}
	for _, h := range handles {
		s.Participants = append(s.Participants, session.Participant{
			Entity: conduct.NewEntity(),
			ID:     id.NewParticipantID(),
			Handle: h,
			Role:   session.RolePlayer,
		})
	}
	return s
}

func TestCreateSession_FirstWins(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	first, created, err := m.CreateSession(ctx, newSession("k", "ada"))
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if !created {
		t.Fatal("created = false on first create")
	}

	second, created, err := m.CreateSession(ctx, newSession("k", "grace", "joan"))
	if err != nil {
		t.Fatalf("CreateSession again: %v", err)
	}
	if created {
		t.Fatal("created = true on duplicate key")
	}
	if second.ID != first.ID {
		t.Error("duplicate create returned a different session")
	}
	if len(second.Participants) != 1 {
		t.Errorf("participants = %d, want original 1", len(second.Participants))
	}
}

func TestGetSession_NotFound(t *testing.T) {
	m := memory.New()
	_, err := m.GetSession(context.Background(), "ghost")
	if !errors.Is(err, conduct.ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestCommitStep_AtomicAdvanceAndEffect(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	s := newSession("k", "ada")
	pid := s.Participants[0].ID
	if _, _, err := m.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	effect := &session.Effect{
		Credits:   []session.Credit{{ParticipantID: pid, Points: 500, Bonus: 5}},
		PoolDelta: 500,
	}
	committed, err := m.CommitStep(ctx, "k", 0, effect)
	if err != nil {
		t.Fatalf("CommitStep: %v", err)
	}
	if committed.Step != 1 {
		t.Errorf("Step = %d, want 1", committed.Step)
	}
	p, _ := committed.Participant(pid)
	if p.Points != 500 || p.Bonus != 5 {
		t.Errorf("participant = points %d, bonus %d; want 500, 5", p.Points, p.Bonus)
	}
	if committed.PoolBalance != 500 {
		t.Errorf("PoolBalance = %d, want 500", committed.PoolBalance)
	}
}

func TestCommitStep_StaleAndFutureSteps(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	if _, _, err := m.CreateSession(ctx, newSession("k", "ada")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if _, err := m.CommitStep(ctx, "k", 0, nil); err != nil {
		t.Fatalf("CommitStep: %v", err)
	}

	// Replay of an already-consumed step loses the race.
	if _, err := m.CommitStep(ctx, "k", 0, nil); !errors.Is(err, conduct.ErrStepConflict) {
		t.Fatalf("stale commit: err = %v, want ErrStepConflict", err)
	}

	// A future step is a mismatch, not a race.
	if _, err := m.CommitStep(ctx, "k", 5, nil); !errors.Is(err, conduct.ErrStepMismatch) {
		t.Fatalf("future commit: err = %v, want ErrStepMismatch", err)
	}
}

func TestCommitStep_UnknownParticipantAppliesNothing(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	s := newSession("k", "ada")
	pid := s.Participants[0].ID
	if _, _, err := m.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	effect := &session.Effect{
		Credits: []session.Credit{
			{ParticipantID: pid, Points: 100},
			{ParticipantID: id.NewParticipantID(), Points: 100},
		},
		PoolDelta: 200,
	}
	_, err := m.CommitStep(ctx, "k", 0, effect)
	if !errors.Is(err, conduct.ErrParticipantNotFound) {
		t.Fatalf("err = %v, want ErrParticipantNotFound", err)
	}

	// All-or-nothing: the valid credit must not have landed either.
	got, _ := m.GetSession(ctx, "k")
	p, _ := got.Participant(pid)
	if p.Points != 0 || got.PoolBalance != 0 || got.Step != 0 {
		t.Errorf("partial apply: points %d, pool %d, step %d", p.Points, got.PoolBalance, got.Step)
	}
}

func TestCommitStep_ConcurrentSameStep(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	s := newSession("k", "ada")
	pid := s.Participants[0].ID
	if _, _, err := m.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	const racers = 16
	errs := make([]error, racers)
	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(racers)
	for i := 0; i < racers; i++ {
		go func() {
			defer done.Done()
			start.Wait()
			effect := &session.Effect{
				Credits:   []session.Credit{{ParticipantID: pid, Points: 500}},
				PoolDelta: 500,
			}
			_, errs[i] = m.CommitStep(ctx, "k", 0, effect)
		}()
	}
	start.Done()
	done.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		}
	}
	if wins != 1 {
		t.Fatalf("wins = %d, want exactly 1", wins)
	}

	got, _ := m.GetSession(ctx, "k")
	if got.PoolBalance != 500 || got.Step != 1 {
		t.Errorf("pool %d step %d, want 500 and 1", got.PoolBalance, got.Step)
	}
}

func TestCommitStep_ClonesDoNotAlias(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	s := newSession("k", "ada")
	if _, _, err := m.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, _ := m.GetSession(ctx, "k")
	got.Participants[0].Points = 99999
	got.Step = 42

	fresh, _ := m.GetSession(ctx, "k")
	if fresh.Participants[0].Points != 0 || fresh.Step != 0 {
		t.Error("mutating a returned session leaked into the store")
	}
}

// ──────────────────────────────────────────────────
// Ledger store
// ──────────────────────────────────────────────────

func TestAppendPlacement_MonotonicPerResource(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		p, err := m.AppendPlacement(ctx, &ledger.Placement{
			ID:         id.NewPlacementID(),
			ResourceID: "g1",
			X:          int64(i * 10),
			Y:          int64(i * 20),
			Ref:        "tx",
		})
		if err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
		if p.Seq != int64(i) {
			t.Errorf("append %d: Seq = %d", i, p.Seq)
		}
	}

	// A second resource has its own sequence.
	p, err := m.AppendPlacement(ctx, &ledger.Placement{ID: id.NewPlacementID(), ResourceID: "g2"})
	if err != nil {
		t.Fatalf("append g2: %v", err)
	}
	if p.Seq != 1 {
		t.Errorf("g2 Seq = %d, want 1", p.Seq)
	}

	records, err := m.ListPlacements(ctx, "g1")
	if err != nil {
		t.Fatalf("ListPlacements: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("len = %d, want 3", len(records))
	}
	for i, r := range records {
		if r.Seq != int64(i+1) {
			t.Errorf("records[%d].Seq = %d, want %d", i, r.Seq, i+1)
		}
	}
}

func TestAppendPlacement_ConcurrentDistinctSeqs(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	const appenders = 20
	var done sync.WaitGroup
	done.Add(appenders)
	for i := 0; i < appenders; i++ {
		go func() {
			defer done.Done()
			if _, err := m.AppendPlacement(ctx, &ledger.Placement{
				ID:         id.NewPlacementID(),
				ResourceID: "g1",
			}); err != nil {
				t.Errorf("append: %v", err)
			}
		}()
	}
	done.Wait()

	records, _ := m.ListPlacements(ctx, "g1")
	if len(records) != appenders {
		t.Fatalf("len = %d, want %d", len(records), appenders)
	}
	seen := make(map[int64]bool, appenders)
	for _, r := range records {
		if seen[r.Seq] {
			t.Fatalf("duplicate seq %d", r.Seq)
		}
		seen[r.Seq] = true
	}
	for i := 1; i <= appenders; i++ {
		if !seen[int64(i)] {
			t.Errorf("missing seq %d", i)
		}
	}
}

func TestResourceRoundTrip(t *testing.T) {
	m := memory.New()
	ctx := context.Background()

	_, err := m.GetResource(ctx, "g1")
	if !errors.Is(err, conduct.ErrResourceNotFound) {
		t.Fatalf("err = %v, want ErrResourceNotFound", err)
	}

	stored, err := m.CreateResource(ctx, &ledger.Resource{
		Entity:  conduct.NewEntity(),
		ID:      "g1",
		OwnerID: "owner-1",
		Name:    "Gate One",
		Tags:    []string{"stone"},
	})
	if err != nil {
		t.Fatalf("CreateResource: %v", err)
	}
	stored.Tags[0] = "mutated"

	got, err := m.GetResource(ctx, "g1")
	if err != nil {
		t.Fatalf("GetResource: %v", err)
	}
	if got.OwnerID != "owner-1" || got.Name != "Gate One" {
		t.Errorf("resource = %+v", got)
	}
	if got.Tags[0] != "stone" {
		t.Error("mutating a returned resource leaked into the store")
	}
}
