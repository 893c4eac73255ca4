package nl2sql

import "errors"

var (
	// ErrProviderUnavailable marks infrastructure failures on the generation
	// side (auth, quota, unreachable host). Fatal to the current intent and
	// never counted against the revision budget.
	ErrProviderUnavailable = errors.New("generation provider unavailable")

	// ErrEmptyCompletion is returned when the provider answers with no text.
	// Fatal to the current intent, like ErrProviderUnavailable.
	ErrEmptyCompletion = errors.New("provider returned empty completion")

	// ErrNoStatement is returned when no statement-shaped text can be found
	// in a completion. The loop treats it exactly like an execution failure:
	// it consumes one revision and its message is fed back to the model.
	ErrNoStatement = errors.New("no SQL statement found in completion")
)
