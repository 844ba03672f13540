package models

// Машиночитаемые коды ошибок для HTTP ответов.
const (
	ErrCodeBadRequest          = "BAD_REQUEST"
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeTokenInvalid        = "TOKEN_INVALID"
	ErrCodeTokenExpired        = "TOKEN_EXPIRED"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInsufficientCredits = "INSUFFICIENT_CREDITS"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// ErrorResponse - стандартный формат ошибки API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
