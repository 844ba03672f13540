package models

import "errors"

// Application-wide standard errors
var (
	// Common Resource/DB Errors
	ErrNotFound           = errors.New("resource not found") // General not found
	ErrGenerationNotFound = errors.New("generation not found")
	ErrVoiceNotFound      = errors.New("voice not found")
	ErrUserNotFound       = errors.New("user not found")

	// Validation Errors
	ErrInsufficientCredits = errors.New("insufficient credits for generation")
	ErrInvalidInput        = errors.New("invalid input data")
	ErrNotOwner            = errors.New("generation belongs to another user")

	// Auth Errors
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTokenInvalid   = errors.New("token is invalid")
	ErrTokenMalformed = errors.New("token is malformed")
	ErrTokenExpired   = errors.New("token has expired")

	// General Request/Server Errors
	ErrInternalServer = errors.New("internal server error")
	ErrBadRequest     = errors.New("bad request")
)
