package dealer

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Sentinel errors for the failure categories surfaced to callers
var (
	ErrInput               = errors.New("input error")
	ErrResourceNotFound    = errors.New("resource not found")
	ErrInformationNotFound = errors.New("information not found")
	ErrVerification        = errors.New("verification failed")
	ErrProcessing          = errors.New("processing error")
)

// Kind names a failure category as it appears in error responses.
type Kind string

const (
	KindInput               Kind = "InputError"
	KindResourceNotFound    Kind = "ResourceNotFoundError"
	KindInformationNotFound Kind = "InformationNotFoundError"
	KindVerification        Kind = "VerificationError"
	KindProcessing          Kind = "ProcessingError"
)

// Failure is the classified form of an error returned by a dealer.
type Failure struct {
	Kind    Kind   `json:"error"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Checked in order, the first match wins.
var classes = []struct {
	target error
	kind   Kind
	status int
}{
	{ErrInput, KindInput, http.StatusUnprocessableEntity},
	{ErrInformationNotFound, KindInformationNotFound, http.StatusNotFound},
	{ErrResourceNotFound, KindResourceNotFound, http.StatusNotFound},
	{ErrVerification, KindVerification, http.StatusInternalServerError},
	{ErrProcessing, KindProcessing, http.StatusInternalServerError},
}

// Classify maps an error onto the failure taxonomy. Errors outside the
// taxonomy are reported as processing errors.
func Classify(err error) Failure {
	for _, c := range classes {
		if errors.Is(err, c.target) {
			msg := strings.TrimPrefix(err.Error(), c.target.Error()+": ")
			return Failure{Kind: c.kind, Message: msg, Status: c.status}
		}
	}
	return Failure{Kind: KindProcessing, Message: err.Error(), Status: http.StatusInternalServerError}
}

// Inputf returns an input error with a formatted message.
func Inputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}

// InformationNotFound wraps a schema diagnostic describing missing or malformed platform data.
func InformationNotFound(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrInformationNotFound, msg)
	}
	return fmt.Errorf("%w: %s: %w", ErrInformationNotFound, msg, cause)
}

// Verification wraps a verifier failure. The cause is kept as text only, so a
// category set by an adapter, such as a missing function, never outranks it.
func Verification(msg string, cause error) error {
	if cause == nil {
		return fmt.Errorf("%w: %s", ErrVerification, msg)
	}
	return fmt.Errorf("%w: %s: %v", ErrVerification, msg, cause)
}

// Processing wraps a failed platform call. Errors already classified by an
// adapter, such as a missing resource, keep their category.
func Processing(msg string, cause error) error {
	if errors.Is(cause, ErrResourceNotFound) || errors.Is(cause, ErrProcessing) {
		return fmt.Errorf("%s: %w", msg, cause)
	}
	return fmt.Errorf("%w: %s: %w", ErrProcessing, msg, cause)
}
