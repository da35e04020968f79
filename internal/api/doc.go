// Package api hosts the HTTP handlers that front the coursecast service.
//
// The handlers assembled by Handler coordinate request validation and
// response shaping while delegating token validation and catalog writes to
// storage.Repository implementations and filesystem work to the media
// pipeline injected at construction time. The package does not reach for
// globals or singletons and expects callers to supply fully configured
// dependencies.
//
// Handler implementations assume upstream middleware from internal/server
// has already enforced the admin guard, rate limiting, metrics, auditing,
// and logging concerns on the routes that need them. New routes should
// preserve that contract by avoiding duplicate validation and by leaning on
// the middleware guarantees established in the server stack.
package api
