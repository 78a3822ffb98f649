// Package api implements the HTTP REST API and WebSocket server of the
// shading controller.
//
// This package provides:
//   - Read endpoints for blind state, configuration, the decision journal
//     and the site ephemeris
//   - Write endpoints that feed events, overrides and sun modes to a blind
//     and answer with the resulting decision
//   - A WebSocket hub that pushes every decision to subscribed clients
//   - JWT authentication with role permissions and ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, request metrics)
//
// # Routes
//
//	GET    /api/v1/health                       public
//	GET    /api/v1/ws?ticket=                   ticket from POST /auth/ws-ticket
//	GET    /api/v1/blinds                       blind:read
//	GET    /api/v1/blinds/{name}                blind:read
//	GET    /api/v1/blinds/{name}/config         blind:read
//	POST   /api/v1/blinds/{name}/events         blind:operate
//	PUT    /api/v1/blinds/{name}/override       blind:operate
//	DELETE /api/v1/blinds/{name}/override       blind:operate
//	PUT    /api/v1/blinds/{name}/mode           blind:operate
//	GET    /api/v1/journal                      journal:read
//	POST   /api/v1/journal/prune                system:admin
//	GET    /api/v1/astro/{sun,times,moon}       blind:read
//	GET    /api/v1/system                       system:admin
//
// Write endpoints go through the blind's queue like MQTT input, so API and
// bus events for one blind are processed in arrival order.
//
// # Graceful Degradation
//
// The server operates without MQTT or the journal: blind endpoints keep
// working, journal endpoints answer 503.
package api
