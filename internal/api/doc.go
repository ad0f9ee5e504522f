// Package api exposes the lease queue over HTTP. Handlers translate
// requests into lease and queue service calls and map service errors to
// status codes; they hold no queue state of their own.
package api
