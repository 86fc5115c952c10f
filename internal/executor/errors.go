package executor

import "errors"

var (
	// ErrMissingConfig: a required field (credentials, opening instant) was
	// absent. Fatal before any session is opened.
	ErrMissingConfig = errors.New("incomplete run configuration")

	// ErrAuthenticationRejected: the site kept the credential form up and
	// showed an inline error. Terminal for the run.
	ErrAuthenticationRejected = errors.New("authentication rejected")

	// ErrLoginVerificationTimeout: no sign-in affordance, or the credential
	// form neither disappeared nor reported an error. Terminal, retryable by
	// re-dispatch.
	ErrLoginVerificationTimeout = errors.New("login verification timed out")

	// ErrNoSlotsAvailable: every discovery strategy came up empty, or no
	// discovered entry fell inside the acceptable window. An expected
	// outcome, not a defect.
	ErrNoSlotsAvailable = errors.New("no acquirable slots")
)
