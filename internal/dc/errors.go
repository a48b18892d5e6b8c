package dc

import (
	"errors"
	"fmt"
)

// RPCError is an error object returned by the daemon in a JSON-RPC response.
// A status query answered with an RPCError means the daemon rejected the transfer.
type RPCError struct {
	Method  string
	Code    int
	Message string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("%s failed with code %d: %s", e.Method, e.Code, e.Message)
}

// NetworkError represents transport failures talking to the daemon: connection
// errors, timeouts, non-2xx responses and undecodable bodies.
type NetworkError struct {
	Operation  string // The RPC method that failed (e.g. "aria2.addUri")
	StatusCode int    // HTTP status code, if applicable (0 for non-HTTP errors)
	APIMessage string
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("network error during %s (HTTP %d): %s", e.Operation, e.StatusCode, e.APIMessage)
	}

	return fmt.Sprintf("network error during %s: %s", e.Operation, e.APIMessage)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// AuthenticationError is returned when the daemon refuses the RPC secret.
type AuthenticationError struct {
	Operation string
	Err       error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed during %s", e.Operation)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// IsRejected reports whether err is the daemon refusing a request it understood,
// as opposed to a transport or authentication failure.
func IsRejected(err error) bool {
	var authErr *AuthenticationError
	if errors.As(err, &authErr) {
		return false
	}

	var rpcErr *RPCError

	return errors.As(err, &rpcErr)
}
