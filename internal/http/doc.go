// Package http exposes the networking rounds API over HTTP.
//
// Callers arrive pre-authenticated: the X-Organizer-ID and X-Participant-ID
// headers name the acting organizer or participant.
//
// The router exposes the following endpoints:
//   - POST /sessions, GET /sessions/{id}, PUT /sessions/{id}: organizer session
//     management exchanging the `sessionRequest` and `sessionDTO` payloads
//     defined in session_handler.go. Round durations are given in minutes.
//   - POST /sessions/{id}/schedule (body {"publish_at"}), POST
//     /sessions/{id}/publish, POST /sessions/{id}/complete: explicit status
//     changes.
//   - POST /sessions/{id}/registrations: registers the calling participant.
//     Body: {"round_ids","name","email","team","topics"}.
//   - GET /registrations/{id}, DELETE /registrations/{id},
//     POST /registrations/{id}/confirm, POST /registrations/{id}/verify (body
//     {"code"}): participant actions on one registration.
//   - POST /matches/{id}/check-ins, POST /matches/{id}/met: outcome recording.
//   - GET /rounds/{id}/phase?as_of=RFC3339: the phase of a round.
//
// Errors are JSON {"error_code","message","phase","errors"}. Window errors
// answer 409 with the current phase, validation errors 422, unavailable
// storage 503 with Retry-After.
package http
