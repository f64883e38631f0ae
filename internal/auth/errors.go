package auth

import "errors"

var (
	// ErrBadCredentials covers both unknown username and wrong password; the
	// two are never distinguished in responses.
	ErrBadCredentials = errors.New("auth: bad credentials")

	// ErrInvalidToken indicates a malformed, unsigned or expired access token.
	ErrInvalidToken = errors.New("auth: invalid token")

	ErrRefreshTokenNotFound = errors.New("auth: refresh token not found")
	ErrRefreshTokenExpired  = errors.New("auth: refresh token expired")

	// ErrOwnerNotFound means a refresh token's owner no longer exists. This is
	// a consistency failure, surfaced as-is and never retried.
	ErrOwnerNotFound = errors.New("auth: token owner not found")

	ErrAccessDenied  = errors.New("auth: access denied")
	ErrUserNotFound  = errors.New("auth: user not found")
	ErrAlreadyExists = errors.New("auth: already exists")
)
