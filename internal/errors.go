package internal

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSecretNotFound is returned by a SecretStore when nothing is stored
	ErrSecretNotFound = errors.New("secret not found")
	// ErrStreamIdle ends a stream that stopped delivering frames
	ErrStreamIdle = errors.New("stream idle timeout")
	// ErrSessionNotFound is returned when a session ID is unknown
	ErrSessionNotFound = errors.New("session not found")
)

// ConfigurationError represents missing or invalid provider settings
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// AuthenticationError is raised by the transport before any network call
// when no API key is available
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication error: %s", e.Reason)
}

// TransportError represents a failed HTTP exchange with the provider
type TransportError struct {
	StatusCode int
	Body       string // excerpt of the response body, if any
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("transport error: status %d: %s", e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("transport error: status %d", e.StatusCode)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// StreamDecodeError represents a frame that could not be decoded. It never
// leaves the transport; frames that fail are skipped.
type StreamDecodeError struct {
	Frame string
	Err   error
}

func (e *StreamDecodeError) Error() string {
	frame := e.Frame
	if len(frame) > 80 {
		frame = frame[:80] + "..."
	}
	return fmt.Sprintf("stream decode error %q: %v", frame, e.Err)
}

func (e *StreamDecodeError) Unwrap() error {
	return e.Err
}

// PersistenceError represents errors reading or writing session storage
type PersistenceError struct {
	Path string
	Op   string // "read", "write", "encode", "decode", "rename"
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ExportError represents errors during export
type ExportError struct {
	Format string
	Path   string
	Err    error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export error [%s] %s: %v", e.Format, e.Path, e.Err)
}

func (e *ExportError) Unwrap() error {
	return e.Err
}

// UserMessage turns an engine-facing error into text fit to show in place of
// an assistant reply
func UserMessage(err error) string {
	var cfgErr *ConfigurationError
	var authErr *AuthenticationError
	var transportErr *TransportError

	switch {
	case errors.As(err, &cfgErr):
		return fmt.Sprintf("Error: %s %s. Configure it with `chat-session key set` or the CHAT_SESSION_API_KEY environment variable.", cfgErr.Field, cfgErr.Reason)
	case errors.As(err, &authErr):
		return "Error: no API key configured. Set one with `chat-session key set`."
	case errors.As(err, &transportErr):
		if errors.Is(transportErr, ErrStreamIdle) {
			return "Error: the response stream stopped sending data."
		}
		if transportErr.StatusCode != 0 {
			msg := fmt.Sprintf("Error: request failed with status %d (%s)", transportErr.StatusCode, http.StatusText(transportErr.StatusCode))
			switch transportErr.StatusCode {
			case http.StatusUnauthorized, http.StatusForbidden:
				msg += ". Check your API key."
			case http.StatusTooManyRequests:
				msg += ". Rate limited, try again later."
			default:
				msg += "."
			}
			return msg
		}
		return fmt.Sprintf("Error: could not reach the provider: %v", transportErr.Err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}
