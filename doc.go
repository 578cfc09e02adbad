// Package auth is the session client of the fleet console: it keeps track
// of who the current user is against the fleet API and decides which
// console routes that user may open.
//
// Session store:
//   - SessionStore talks to the API with a credentialed HTTP client. The
//     session and CSRF cookies live in its cookie jar; a persistent jar
//     keeps them across restarts. The CSRF token is read from the jar and
//     sent as a header; when the cookie is missing the header is omitted
//     and the API decides.
//   - The AuthState (user plus authenticated flag) is persisted after every
//     mutation through a StateStorage, so a restart restores the last known
//     state without a round trip. The two fields always change together.
//   - PrimeCSRF and FetchUser never fail: problems are logged and leave the
//     store unauthenticated. Login reports why it failed after resetting
//     the state. Logout returns transport errors and keeps the state, the
//     server may still hold the session.
//
// Route guard:
//   - RouteGuard lets public paths through. Everything else reloads the
//     user and requires membership of an allowed group, failing closed with
//     a redirect to the login route that carries the requested location.
//   - Bootstrap runs the CSRF priming and first user fetch in the
//     background; the guard waits for it, startup does not.
package auth
