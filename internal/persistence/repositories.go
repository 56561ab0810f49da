package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository stores typed records on top of a Store.
type Repository struct {
	store Store
}

// NewRepository wraps store.
func NewRepository(store Store) *Repository {
	return &Repository{store: store}
}

// Store returns the underlying keyed store.
func (r *Repository) Store() Store {
	return r.store
}

func getRecord[T any](ctx context.Context, store Store, key string) (T, error) {
	var record T
	raw, err := store.Get(ctx, key)
	if err != nil {
		return record, err
	}
	if err := Unmarshal(raw, &record); err != nil {
		return record, fmt.Errorf("decode %s: %w", key, err)
	}
	return record, nil
}

func putRecord(ctx context.Context, store Store, key string, record any) error {
	raw, err := Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return store.Set(ctx, key, raw)
}

// --- Sessions ---

// GetSession loads a session definition.
func (r *Repository) GetSession(ctx context.Context, id string) (Session, error) {
	return getRecord[Session](ctx, r.store, SessionKey(id))
}

// PutSession writes a session definition and refreshes its round index.
// Index entries of rounds removed by an edit are left in place; readers
// verify the session still owns the round.
func (r *Repository) PutSession(ctx context.Context, session Session) error {
	if err := putRecord(ctx, r.store, SessionKey(session.ID), session); err != nil {
		return err
	}
	for _, round := range session.Rounds {
		index := RoundIndex{RoundID: round.ID, SessionID: session.ID}
		if err := putRecord(ctx, r.store, RoundIndexKey(round.ID), index); err != nil {
			return err
		}
	}
	return nil
}

// ListSessions returns every stored session ordered by id.
func (r *Repository) ListSessions(ctx context.Context) ([]Session, error) {
	entries, err := r.store.GetByPrefix(ctx, sessionPrefix)
	if err != nil {
		return nil, err
	}
	sessions := make([]Session, 0, len(entries))
	for _, entry := range entries {
		var session Session
		if err := Unmarshal(entry.Value, &session); err != nil {
			return nil, fmt.Errorf("decode %s: %w", entry.Key, err)
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// FindSessionByRound resolves the session owning roundID.
func (r *Repository) FindSessionByRound(ctx context.Context, roundID string) (Session, Round, error) {
	index, err := getRecord[RoundIndex](ctx, r.store, RoundIndexKey(roundID))
	if err != nil {
		return Session{}, Round{}, err
	}
	session, err := r.GetSession(ctx, index.SessionID)
	if err != nil {
		return Session{}, Round{}, err
	}
	for _, round := range session.Rounds {
		if round.ID == roundID {
			return session, round, nil
		}
	}
	return Session{}, Round{}, ErrNotFound
}

// --- Registrations ---

// GetRegistration loads a registration.
func (r *Repository) GetRegistration(ctx context.Context, id string) (Registration, error) {
	return getRecord[Registration](ctx, r.store, RegistrationKey(id))
}

// PutRegistration writes a registration, then its round index entry. Both
// writes are idempotent so a failed call can simply be repeated.
func (r *Repository) PutRegistration(ctx context.Context, registration Registration) error {
	if err := putRecord(ctx, r.store, RegistrationKey(registration.ID), registration); err != nil {
		return err
	}
	key := RoundRegistrationKey(registration.SessionID, registration.RoundID, registration.ID)
	return r.store.Set(ctx, key, []byte(registration.ID))
}

// ListRegistrationsForRound returns the registrations indexed under a
// session round. Dangling index entries are skipped.
func (r *Repository) ListRegistrationsForRound(ctx context.Context, sessionID, roundID string) ([]Registration, error) {
	prefix := RoundRegistrationPrefix(sessionID, roundID)
	entries, err := r.store.GetByPrefix(ctx, prefix)
	if err != nil {
		return nil, err
	}
	registrations := make([]Registration, 0, len(entries))
	for _, entry := range entries {
		id := strings.TrimPrefix(entry.Key, prefix)
		registration, err := r.GetRegistration(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		registrations = append(registrations, registration)
	}
	return registrations, nil
}

// --- Matches ---

// GetMatch loads a match.
func (r *Repository) GetMatch(ctx context.Context, id string) (Match, error) {
	return getRecord[Match](ctx, r.store, MatchKey(id))
}

// PutMatch writes a match.
func (r *Repository) PutMatch(ctx context.Context, match Match) error {
	return putRecord(ctx, r.store, MatchKey(match.ID), match)
}

// --- Plans ---

// GetPlan loads the matching plan of a session round instant.
func (r *Repository) GetPlan(ctx context.Context, sessionID, roundID string, instant time.Time) (Plan, error) {
	return getRecord[Plan](ctx, r.store, PlanKey(sessionID, roundID, instant))
}

// PutPlan writes a matching plan.
func (r *Repository) PutPlan(ctx context.Context, plan Plan) error {
	return putRecord(ctx, r.store, PlanKey(plan.SessionID, plan.RoundID, plan.Instant), plan)
}
