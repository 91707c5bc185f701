// Package auth authenticates API callers and scopes their analyses.
//
// Authenticators vote on each request: Yes (the credentials identify a
// caller), No (credentials are present but wrong) or Abstain (not a
// credential this authenticator understands). A Chain asks its
// authenticators in order and stops at the first Yes or No; when all
// abstain its fallback decides.
//
// Middleware runs the chain in front of the HTTP API, applies the
// per-tier rate limit, and puts the caller's tenant into the request
// context where the analysis stores pick it up.
package auth
