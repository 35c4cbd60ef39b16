package errors

// Error codes are stable identifiers; clients translate them, backend logs stay in English.

// Request errors.
const (
	CodeInvalidRequest   = "INVALID_REQUEST"
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeInternal         = "INTERNAL_ERROR"
)

// Account errors.
const (
	CodeUserNotFound      = "USER_NOT_FOUND"
	CodeUsernameTaken     = "USERNAME_TAKEN"
	CodeRoleNotAssignable = "ROLE_NOT_ASSIGNABLE"
	CodeUserNotEditable   = "USER_NOT_EDITABLE"
)

// Settings session errors.
const (
	CodeSessionNotFound = "SESSION_NOT_FOUND"
	CodePanelNotFound   = "PANEL_NOT_FOUND"
	CodeSaveInProgress  = "SAVE_IN_PROGRESS"
	CodeSessionClosed   = "SESSION_CLOSED"
	CodeCommitFailed    = "COMMIT_FAILED"
)

// Profile asset errors.
const (
	CodeAssetUploadFailed = "ASSET_UPLOAD_FAILED"
	CodeAssetRemoveFailed = "ASSET_REMOVE_FAILED"
	CodeAssetNotFound     = "ASSET_NOT_FOUND"
	CodeAssetTooLarge     = "ASSET_TOO_LARGE"
	CodeAssetUnsupported  = "ASSET_UNSUPPORTED_TYPE"
)

// Auth errors.
const (
	CodeUnauthorized       = "UNAUTHORIZED"
	CodeForbidden          = "FORBIDDEN"
	CodeInvalidCredentials = "INVALID_CREDENTIALS"
)

// ErrUserNotFoundf creates a user not found error.
func ErrUserNotFoundf(userID int64) *AppError {
	return NotFound(CodeUserNotFound, "user not found").
		WithParams(map[string]interface{}{"user_id": userID})
}

// ErrValidation creates a 422 error carrying per-field failures.
func ErrValidation(fieldErrors []FieldError) *AppError {
	return Unprocessable(CodeValidationFailed, "one or more fields are invalid").
		WithFieldErrors(fieldErrors)
}

// ErrSaveInProgress is returned while a save cycle is already running.
func ErrSaveInProgress() *AppError {
	return Conflict(CodeSaveInProgress, "a save is already in progress")
}
