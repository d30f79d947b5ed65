package llm

import (
	"errors"
	"strings"
)

// ErrFatalAPI marks provider errors that make every further call
// pointless (bad credentials, exhausted billing). Orchestrators abort
// the job on these; anything else is a transient per-call failure.
var ErrFatalAPI = errors.New("fatal API error")

// fatalMarkers are substrings of provider error messages that indicate
// a non-retryable account-level problem.
var fatalMarkers = []string{
	"401",
	"403",
	"invalid api key",
	"invalid x-api-key",
	"authentication",
	"unauthorized",
	"billing",
	"credit balance",
	"quota exceeded",
	"account is not active",
}

// classifyErr wraps err with ErrFatalAPI when it looks account-level.
func classifyErr(err error) error {
	if err == nil {
		return nil
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range fatalMarkers {
		if strings.Contains(msg, marker) {
			return errors.Join(ErrFatalAPI, err)
		}
	}
	return err
}
