package contract

import (
	"errors"
	"fmt"

	dedupx "github.com/tanpawarit/Camara-Agent-Gateway/dedup"
)

var (
	ErrModelInvoke = errors.New("model invoke failed")
	ErrEmptyAnswer = errors.New("model returned an empty answer")

	// ErrEmptyQuery is a validation failure and never reaches the registry.
	ErrEmptyQuery = fmt.Errorf("%w: query is empty", dedupx.ErrValidation)
)
