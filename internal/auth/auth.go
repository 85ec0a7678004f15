// Package auth covers the two credential concerns the runtime has: signing
// and verifying the JWTs an edge runner presents to a control plane, and
// producing bearer tokens for outbound connections (static, self-minted
// JWT, or OAuth2 client-credentials).
package auth

import "errors"

var (
	// ErrAuthDisabled is returned when a service is constructed without a
	// secret, which disables it rather than halving its guarantees.
	ErrAuthDisabled = errors.New("auth disabled")

	// ErrInvalidToken is returned for any token that fails to parse,
	// verify, or carry a subject.
	ErrInvalidToken = errors.New("invalid token")
)
