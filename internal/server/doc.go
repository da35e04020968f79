// Package server hosts the coursecast HTTP surface from a single server.
//
// The server builds a consistent middleware chain of request identification,
// logging, security headers, CORS, auditing, metrics, rate limiting, and the
// admin guard so handlers all share common protections and instrumentation.
// The token-validation subrequest endpoint and the liveness and metrics
// endpoints stay outside the admin guard; the upload, list, and delete
// routes sit behind it.
package server
