package auth

import "errors"

var (
	// ErrUnauthorized indicates the request carried no valid credential.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrTokenInvalid indicates a JWT failed signature or claim validation.
	ErrTokenInvalid = errors.New("auth: token invalid")

	// ErrUnknownMode indicates an unrecognised authentication mode.
	ErrUnknownMode = errors.New("auth: unknown mode")
)
