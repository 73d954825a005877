// Package http provides HTTP handlers and middleware for the reservation API.
//
// The router exposes the following endpoints:
//   - POST /reservations: creates one reservation or a weekly series. Body:
//     {"room_id","start","end","title","note","color","pin","repeat_days","repeat_until"}.
//     Response: 201 {"ids","series_id","count"}.
//   - GET /reservations/{id}: returns the public `reservationDTO`.
//   - PATCH /reservations/{id}: body {"pin","scope","room_id","start","end",
//     "title","note","color","new_pin"}; omitted fields stay unchanged. The
//     cancel PIN is required and counts towards the same lockout as cancels.
//     Scope "series" edits every confirmed occurrence and answers
//     {"series_id","count"}; a new start/end moves the whole series by the
//     same offset.
//   - POST /reservations/{id}/cancel: body {"pin","scope"}; scope "series"
//     cancels every confirmed occurrence of the reservation's series.
//     Wrong PINs answer 403, a cooldown answers 423 with Retry-After.
//   - GET /grid?date=YYYY-MM-DD: public day grid for kiosks and signage.
//   - GET /office/grid?date=YYYY-MM-DD: day grid with internal notes and series ids.
//   - GET /metrics: Prometheus metrics when a handler is configured.
//
// Every route except /grid and /metrics requires an access device key in the
// `X-Device-Key` header. Instants are RFC 3339 with an explicit offset.
package http
