// Package observability provides structured logging for the textbook API.
//
// Loggers are zap-based. The HTTP layer stores a request-scoped child logger
// carrying the request ID in the context so that handlers and services log
// with the same fields.
package observability
