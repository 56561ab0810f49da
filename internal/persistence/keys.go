package persistence

import (
	"strconv"
	"time"
)

// Key layout. Every record lives under exactly one primary key; index keys
// hold only the identifier of the record they point at so a stale index entry
// can be detected and skipped.
const (
	sessionPrefix           = "session/"
	roundPrefix             = "round/"
	registrationPrefix      = "registration/"
	roundRegistrationPrefix = "round-registration/"
	matchPrefix             = "match/"
	planPrefix              = "plan/"
)

// SessionKey addresses a session definition.
func SessionKey(id string) string { return sessionPrefix + id }

// RoundIndexKey maps a round to its owning session.
func RoundIndexKey(roundID string) string { return roundPrefix + roundID }

// RegistrationKey addresses a registration record.
func RegistrationKey(id string) string { return registrationPrefix + id }

// RoundRegistrationPrefix is the prefix of a round's registration index,
// scoped by the owning session.
func RoundRegistrationPrefix(sessionID, roundID string) string {
	return roundRegistrationPrefix + sessionID + "/" + roundID + "/"
}

// RoundRegistrationKey indexes a registration under its round.
func RoundRegistrationKey(sessionID, roundID, registrationID string) string {
	return RoundRegistrationPrefix(sessionID, roundID) + registrationID
}

// MatchKey addresses a match record.
func MatchKey(id string) string { return matchPrefix + id }

// PlanKey addresses the matching plan of a session round at a given
// instant. The instant is part of the key so rescheduling a round yields a
// fresh plan.
func PlanKey(sessionID, roundID string, instant time.Time) string {
	return planPrefix + sessionID + "/" + roundID + "/" + strconv.FormatInt(instant.UTC().Unix(), 10)
}
