package api

import (
	"fmt"
	"time"
)

// NetworkError is a transport failure or a non-2xx response from the remote API
type NetworkError struct {
	Op         string
	StatusCode int           // 0 when no response was received
	RetryAfter time.Duration // set from the Retry-After header on 429s
	Err        error
}

func (e *NetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: request failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// MalformedResponseError means the request succeeded but the payload did not
// have the expected shape
type MalformedResponseError struct {
	Op  string
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("%s: malformed response: %v", e.Op, e.Err)
}

func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
