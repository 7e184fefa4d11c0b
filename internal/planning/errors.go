package planning

import "errors"

var (
	// ErrNotFound covers missing ideas, module instances, categories and tasks.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput covers unknown module kinds and empty task descriptions.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNoAnswers is returned when task synthesis is requested before any
	// answers exist for the module instance.
	ErrNoAnswers = errors.New("no answers generated yet")

	// ErrGeneration wraps failures from the language-model backend.
	ErrGeneration = errors.New("generation failed")
)
