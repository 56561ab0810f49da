package application

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// sessionCache keeps recently read session definitions. Every request and
// every driver tick resolves a session, while organizers edit them rarely.
// Entries expire after ttl so edits made by another process become visible.
type sessionCache struct {
	lru *expirable.LRU[string, Session]
}

func newSessionCache(size int, ttl time.Duration) *sessionCache {
	if size <= 0 {
		return nil
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &sessionCache{lru: expirable.NewLRU[string, Session](size, nil, ttl)}
}

func (c *sessionCache) Get(id string) (Session, bool) {
	if c == nil {
		return Session{}, false
	}
	session, ok := c.lru.Get(id)
	if !ok {
		return Session{}, false
	}
	return cloneSession(session), true
}

func (c *sessionCache) Store(session Session) {
	if c == nil {
		return
	}
	c.lru.Add(session.ID, cloneSession(session))
}

func (c *sessionCache) Invalidate(id string) {
	if c == nil {
		return
	}
	c.lru.Remove(id)
}

func cloneSession(s Session) Session {
	out := s
	if s.PublishAt != nil {
		publishAt := *s.PublishAt
		out.PublishAt = &publishAt
	}
	if s.FinalizedAt != nil {
		finalizedAt := *s.FinalizedAt
		out.FinalizedAt = &finalizedAt
	}
	out.Teams = cloneStrings(s.Teams)
	out.Topics = cloneStrings(s.Topics)
	if s.Rounds != nil {
		out.Rounds = make([]Round, len(s.Rounds))
		copy(out.Rounds, s.Rounds)
	}
	if s.MeetingPoints != nil {
		out.MeetingPoints = make([]MeetingPoint, len(s.MeetingPoints))
		copy(out.MeetingPoints, s.MeetingPoints)
	}
	return out
}

func cloneStrings(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	copy(out, values)
	return out
}
