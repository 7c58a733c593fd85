package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode represents a Trove error code.
type ErrorCode string

const (
	ErrInvalidRequest      ErrorCode = "INVALID_REQUEST"       // 400
	ErrNotFound            ErrorCode = "NOT_FOUND"             // 404
	ErrStageConflict       ErrorCode = "STAGE_CONFLICT"        // 409
	ErrStorageDeleteFailed ErrorCode = "STORAGE_DELETE_FAILED" // 502, logged only
	ErrInternal            ErrorCode = "INTERNAL"              // 500
)

// TroveError represents a structured error with code, status, and details.
type TroveError struct {
	Code    ErrorCode
	Status  int
	Message string
	Details map[string]any

	cause error
}

// Error implements the error interface.
func (e *TroveError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *TroveError) Unwrap() error {
	return e.cause
}

// NewInvalidRequest creates a 400 error for invalid request parameters.
func NewInvalidRequest(msg string) *TroveError {
	return &TroveError{
		Code:    ErrInvalidRequest,
		Status:  400,
		Message: msg,
	}
}

// NewNotFound creates a 404 error for a card that does not exist or was deleted.
func NewNotFound(id string) *TroveError {
	return &TroveError{
		Code:    ErrNotFound,
		Status:  404,
		Message: fmt.Sprintf("card not found: %s", id),
		Details: map[string]any{"card_id": id},
	}
}

// NewStageConflict creates a 409 error when a stage transition finds the
// stage in the wrong state.
func NewStageConflict(id, stage, status string) *TroveError {
	return &TroveError{
		Code:    ErrStageConflict,
		Status:  409,
		Message: fmt.Sprintf("stage %s of card %s is %s", stage, id, status),
		Details: map[string]any{"card_id": id, "stage": stage, "status": status},
	}
}

// NewStorageDeleteFailed wraps a failed asset deletion. These are never
// returned to callers of merge or reset; they exist for logging.
func NewStorageDeleteFailed(assetID string, err error) *TroveError {
	msg := fmt.Sprintf("failed to delete asset %s", assetID)
	if err != nil {
		msg = fmt.Sprintf("%s: %v", msg, err)
	}
	return &TroveError{
		Code:    ErrStorageDeleteFailed,
		Status:  502,
		Message: msg,
		Details: map[string]any{"asset_id": assetID},
		cause:   err,
	}
}

// NewInternal creates a 500 error for unexpected internal errors.
func NewInternal(err error) *TroveError {
	msg := "internal error"
	if err != nil {
		msg = err.Error()
	}
	return &TroveError{
		Code:    ErrInternal,
		Status:  500,
		Message: msg,
		cause:   err,
	}
}

// Is checks if err (or anything it wraps) is a TroveError with the given code.
func Is(err error, code ErrorCode) bool {
	var tErr *TroveError
	if stderrors.As(err, &tErr) {
		return tErr.Code == code
	}
	return false
}

// As returns the TroveError in err's chain, if any.
func As(err error) (*TroveError, bool) {
	var tErr *TroveError
	if stderrors.As(err, &tErr) {
		return tErr, true
	}
	return nil, false
}
