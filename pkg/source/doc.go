// Package source provides pagination.PageFetcher implementations.
//
//   - Static serves an in-memory record list, optionally failing on purpose.
//   - HTTP pages through a people API over JSON, gated by a shared rate
//     limit budget when Redis is configured and by a circuit breaker when
//     BreakerThreshold is set.
//   - Redis pages through records stored as JSON in a Redis list.
//
// Static and Redis use the decimal offset of the next record as cursor. HTTP
// passes the server's cursor through untouched.
//
// None of the fetchers retry; pagination.Controller owns the retry policy.
package source
