// Package observability builds the portal's zap logger and its Prometheus metrics.
//
// This package implements:
//   - JSON (production) and console (development) zap loggers
//   - Request-scoped loggers carrying the chi request id
//   - Counters for sign-ins, route guard decisions and upstream API failures
package observability
