// Package httpapi exposes the login-code flow over HTTP using gin.
//
// # Routes
//
//   - POST {LoginPath} requests a code for an identifier. The response is
//     always 202 so callers cannot learn which identifiers exist.
//   - GET {LoginPath}/:code and GET {LoginPath}/:username/:code redeem a
//     code, call the [SessionStarter] and redirect to the target chosen when
//     the code was issued.
//
// # Architecture boundaries
//
// This package translates HTTP semantics into Engine calls. Sessions,
// cookies and templates belong to the SessionStarter supplied by the caller.
//
// # What this package must NOT do
//
//   - Reveal why a redemption failed; every rejection gets the same response.
//   - Redirect to another host.
//   - Log code values.
package httpapi
