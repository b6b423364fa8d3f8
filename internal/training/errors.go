package training

import "github.com/pkg/errors"

var (
	// ErrInvalidRequest indicates a submission with missing or
	// unusable fields.
	ErrInvalidRequest = errors.New("invalid training request")
	// ErrInsufficientCredits indicates the user has no training
	// credits left to spend.
	ErrInsufficientCredits = errors.New("insufficient training credits")
	// ErrUploadURLUnavailable indicates the uploaded archive could
	// not be resolved to a signed download URL.
	ErrUploadURLUnavailable = errors.New("training data unavailable")
	// ErrProvider indicates the training provider rejected or
	// failed a call.
	ErrProvider = errors.New("training provider failure")
	// ErrPersistence indicates the job row could not be written.
	ErrPersistence = errors.New("training persistence failure")
	// ErrUserNotFound indicates the webhook referenced a user that
	// cannot be resolved.
	ErrUserNotFound = errors.New("user not found")
	// ErrModelNotFound indicates the referenced model row does not
	// exist for the user.
	ErrModelNotFound = errors.New("model not found")
)
