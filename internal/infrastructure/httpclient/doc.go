// Package httpclient is the outbound HTTP client shared by the module
// source and the entry page loader: resty over a retryablehttp transport,
// guarded by a token-bucket limiter and a circuit breaker.
package httpclient
