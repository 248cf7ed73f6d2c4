package lecture

import (
	"errors"
	"fmt"
)

// Sentinel errors. Use errors.Is against these; the typed errors below wrap
// them so callers can also errors.As for detail.
var (
	// ErrDeviceAccess means the capture device could not be acquired.
	ErrDeviceAccess = errors.New("lecture: microphone access denied")

	// ErrAlreadyRecording means a session is already recording.
	ErrAlreadyRecording = errors.New("lecture: a session is already recording")

	// ErrReportGeneration means the correction report could not be built.
	ErrReportGeneration = errors.New("lecture: report generation failed")

	// ErrExternalService means the content analysis backend failed.
	ErrExternalService = errors.New("lecture: external service failed")

	// ErrInvalidTransition means a state change was requested that the
	// session's current status does not allow.
	ErrInvalidTransition = errors.New("lecture: invalid state transition")

	// ErrAbandoned means the session was torn down and accepts no further
	// transitions.
	ErrAbandoned = errors.New("lecture: session abandoned")
)

// DeviceAccessError is returned by Start when the microphone is denied,
// missing or otherwise unusable. No session exists after this error.
type DeviceAccessError struct {
	Cause error
}

func (e *DeviceAccessError) Error() string {
	if e.Cause == nil {
		return ErrDeviceAccess.Error()
	}
	return fmt.Sprintf("%s: %v", ErrDeviceAccess, e.Cause)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *DeviceAccessError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrDeviceAccess}
	}
	return []error{ErrDeviceAccess, e.Cause}
}

// AlreadyRecordingError is returned by Start while another session records.
type AlreadyRecordingError struct {
	// SessionID is the session that is still recording. It is empty while
	// the other Start is still waiting for the microphone.
	SessionID string
}

func (e *AlreadyRecordingError) Error() string {
	if e.SessionID == "" {
		return ErrAlreadyRecording.Error()
	}
	return fmt.Sprintf("%s (id=%s)", ErrAlreadyRecording, e.SessionID)
}

func (e *AlreadyRecordingError) Unwrap() error { return ErrAlreadyRecording }

// ReportGenerationError is recorded on a session that moved to
// [StatusError] because its report could not be produced.
type ReportGenerationError struct {
	SessionID string
	Cause     error
}

func (e *ReportGenerationError) Error() string {
	return fmt.Sprintf("%s for session %s: %v", ErrReportGeneration, e.SessionID, e.Cause)
}

func (e *ReportGenerationError) Unwrap() []error {
	return []error{ErrReportGeneration, e.Cause}
}

// ExternalServiceError wraps any failure of the content analysis backend.
// No partial result accompanies it.
type ExternalServiceError struct {
	// Operation names the call that failed, e.g. "quiz" or "fact-check".
	Operation string
	Cause     error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrExternalService, e.Operation, e.Cause)
}

func (e *ExternalServiceError) Unwrap() []error {
	return []error{ErrExternalService, e.Cause}
}

// Retryable reports whether the user may reasonably try the request again.
// Every analysis failure is transient from the caller's point of view; the
// service itself never retries.
func (e *ExternalServiceError) Retryable() bool { return true }

// UserMessage returns the plain-language text shown to the user for err, or
// the empty string when err is nil.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeviceAccess):
		return "Failed to access microphone. Please check permissions."
	case errors.Is(err, ErrAlreadyRecording):
		return "A lecture is already being recorded."
	case errors.Is(err, ErrReportGeneration):
		return "Failed to generate the correction report."
	case errors.Is(err, ErrExternalService):
		return "Failed to process content"
	default:
		return "Something went wrong."
	}
}
