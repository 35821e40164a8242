package models

// Коды ошибок в JSON-ответах API.
const (
	ErrCodeNotFound        = 40400
	ErrCodeForbidden       = 40300
	ErrCodeConflict        = 40900
	ErrCodeBadRequest      = 40000
	ErrCodeValidation      = 40001
	ErrCodeInvalidState    = 42200
	ErrCodeTokenInvalid    = 40101
	ErrCodeTokenExpired    = 40102
	ErrCodeUpstream        = 50300
	ErrCodeInternal        = 50000
	ErrCodeTooManyRequests = 42900
)

// ErrorResponse - стандартная структура для ответа об ошибке в формате JSON.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// PaginatedResponse оборачивает страницу результатов и курсор следующей страницы.
type PaginatedResponse struct {
	Data       interface{} `json:"data"`
	NextCursor string      `json:"next_cursor,omitempty"`
}
