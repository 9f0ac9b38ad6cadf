package domain

import "errors"

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the caller lacks permission for this action
	ErrForbidden = errors.New("forbidden")

	// ErrTokenExpired indicates the session token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the session token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrUnsupportedPlatform indicates the ad platform is not known or not registered
	ErrUnsupportedPlatform = errors.New("unsupported platform")

	// ErrNoTeam indicates the caller is not associated with any team
	ErrNoTeam = errors.New("no team context")
)
