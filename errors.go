package shindex

import (
	"errors"
	"fmt"

	"github.com/hupe1980/shindex/corpus"
	"github.com/hupe1980/shindex/index"
)

var (
	// ErrEmptyCorpus is returned when a build is attempted on zero items.
	ErrEmptyCorpus = index.ErrEmptyCorpus

	// ErrUnknownBackend is returned when a backend name does not parse.
	ErrUnknownBackend = errors.New("shindex: unknown backend")
)

// translateError maps lower-layer errors to the facade's vocabulary.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, corpus.ErrNoVectors) {
		return fmt.Errorf("%w: %w", index.ErrEmptyCorpus, err)
	}

	return err
}
