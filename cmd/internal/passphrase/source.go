package passphrase

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a secret from an environment variable or by
// prompting the operator. The value is cached after the first successful
// retrieval so repeated calls reuse the same secret.
type Source struct {
	envVar string
	label  string

	once  sync.Once
	value string
	err   error

	isTerminal func() bool
	read       func() ([]byte, error)
}

// NewSource constructs a source that checks envVar before interactively
// prompting for label on the terminal.
func NewSource(envVar, label string) *Source {
	if strings.TrimSpace(label) == "" {
		label = "passphrase"
	}
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		label:      label,
		isTerminal: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
		read:       func() ([]byte, error) { return term.ReadPassword(int(os.Stdin.Fd())) },
	}
}

// Get returns the cached secret or resolves it if this is the first call.
// When the environment variable is set the exact value is used; otherwise the
// operator is prompted on stderr. Whitespace-only secrets are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		if s.envVar != "" {
			if value, ok := os.LookupEnv(s.envVar); ok {
				if strings.TrimSpace(value) == "" {
					s.err = fmt.Errorf("%s is set but empty", s.envVar)
					return
				}
				s.value = value
				return
			}
		}

		if !s.isTerminal() {
			if s.envVar != "" {
				s.err = fmt.Errorf("%s required; set %s or run interactively", s.label, s.envVar)
			} else {
				s.err = fmt.Errorf("%s required and no terminal available", s.label)
			}
			return
		}

		fmt.Fprintf(os.Stderr, "Enter %s: ", s.label)
		bytes, err := s.read()
		fmt.Fprintln(os.Stderr)
		if err != nil {
			s.err = fmt.Errorf("failed to read %s: %w", s.label, err)
			return
		}

		secret := string(bytes)
		if strings.TrimSpace(secret) == "" {
			s.err = errors.New(s.label + " cannot be empty")
			return
		}

		s.value = secret
	})

	return s.value, s.err
}
