// Package http contains the JSON HTTP handlers for the gating
// subsystem: login and credential verification, the unlock flow, the
// unlock status view, and health. Handlers convert service errors into
// the API error taxonomy at this boundary; nothing below it writes
// HTTP responses.
package http
