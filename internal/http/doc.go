// Package http exposes the scheduling service over JSON/HTTP.
//
// The router exposes the following endpoints:
//   - POST /events: registers the scheduling record of an event created by the
//     event service. Body: registerEventRequest.
//   - PUT /groups/{groupID}/members: replaces the member snapshot of a group.
//     Body: {"members":[{"user_id","role"}]}.
//   - PUT /events/{eventID}/availability: replaces the caller's ranges. The
//     caller is identified by the X-User-ID header and must belong to the
//     event's group. Body: {"ranges":[{"available_from","available_to"}]}.
//   - GET /events/{eventID}/availability: the caller's stored ranges.
//   - GET /events/{eventID}/schedule: derived status and submission counts.
//   - GET /events/{eventID}/suggestions: ranked candidate start times.
//   - POST /events/{eventID}/suggestions/recompute: organizer only.
//   - POST /events/{eventID}/suggestions/{suggestionID}/choose: organizer only;
//     commits the slot and clears the suggestions.
//   - GET /events/{eventID}/calendar.ics: iCalendar export once scheduled.
//   - GET /healthz: storage liveness.
//
// Instants are RFC 3339 and always rendered in UTC. Request/response DTOs
// live alongside their handlers.
package http
