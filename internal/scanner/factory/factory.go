// Package factory constructs the engine scanner used by batch scans.
package factory

import (
	"errors"
	"fmt"

	"github.com/varalys/diego/pkg/die"
)

// Config is the subset of configuration needed to create a scanner.
type Config struct {
	// Database is loaded once before any scan when set.
	Database string
	// Native overrides the linked engine, mainly for tests.
	Native die.Native
}

// New returns a scanner over the linked engine (or cfg.Native) with the
// configured signature database loaded. The database is loaded here, on a
// single goroutine, so concurrent scans never race on the engine's global
// database state.
func New(cfg Config) (*die.Scanner, error) {
	var s *die.Scanner
	if cfg.Native != nil {
		s = die.NewScanner(cfg.Native)
	} else {
		linked, err := die.New()
		if errors.Is(err, die.ErrNotLinked) {
			return nil, fmt.Errorf("%w: run `diego build` and rebuild with -tags die", err)
		}
		if err != nil {
			return nil, err
		}
		s = linked
	}
	if cfg.Database != "" {
		if err := s.LoadDatabase(cfg.Database); err != nil {
			return nil, fmt.Errorf("failed to load signature database: %w", err)
		}
	}
	return s, nil
}
