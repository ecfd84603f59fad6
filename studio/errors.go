package studio

import (
	"errors"

	"imagestudio/providers"
)

var (
	ErrMissingCredential  = errors.New("missing credential")
	ErrInvalidInput       = errors.New("invalid input")
	ErrRateLimited        = errors.New("rate limited")
	ErrRemoteFailure      = errors.New("remote failure")
	ErrDownloadFailure    = errors.New("download failure")
	ErrProvidersExhausted = errors.New("all providers exhausted")
)

// User-facing status messages.
const (
	MsgMissingToken     = "Error: Please enter your HuggingFace API token"
	MsgMissingPrompt    = "Error: Please enter a prompt"
	MsgMissingImage     = "Error: Please upload an image"
	MsgGenerationFailed = "Error: All models failed to generate an image. Please try again later."
	MsgInvalidURL       = "Please enter a valid URL"
	MsgDownloadFailed   = "Failed to download image from URL"
	MsgFetched          = "Image fetched successfully"
	MsgMissingStability = "No API key found. Make sure you have a .env file with STABILITY_API_KEY=your_key"
	MsgGhibliGenerated  = "Image generated successfully!"
)

// Error pairs one of the sentinel kinds with the status line shown to the user.
type Error struct {
	Kind    error
	Message string
	Err     error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Is classifies the underlying cause so callers can test for ErrRateLimited and
// ErrRemoteFailure without unpacking provider errors.
func (e *Error) Is(target error) bool {
	if e.Err == nil {
		return false
	}
	switch target {
	case ErrRateLimited:
		return providers.IsRateLimited(e.Err)
	case ErrRemoteFailure:
		return !providers.IsRateLimited(e.Err) && (e.Kind == ErrProvidersExhausted || e.Kind == ErrRemoteFailure)
	}
	return false
}

func newError(kind error, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// Status returns the status line for err.
func Status(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Message
	}
	return "An error occurred: " + err.Error()
}
