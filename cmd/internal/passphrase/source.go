package passphrase

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

// Source lazily resolves a keystore passphrase from an environment variable or
// by prompting the operator. The value is cached after the first successful
// retrieval.
type Source struct {
	envVar  string
	confirm bool

	// Overridable for tests.
	lookupEnv  func(string) (string, bool)
	isTerminal func() bool
	readSecret func() ([]byte, error)
	prompt     io.Writer

	once  sync.Once
	value string
	err   error
}

// NewSource constructs a passphrase source that checks envVar before
// interactively prompting on the terminal.
func NewSource(envVar string) *Source {
	fd := int(os.Stdin.Fd())
	return &Source{
		envVar:     strings.TrimSpace(envVar),
		lookupEnv:  os.LookupEnv,
		isTerminal: func() bool { return term.IsTerminal(fd) },
		readSecret: func() ([]byte, error) { return term.ReadPassword(fd) },
		prompt:     os.Stderr,
	}
}

// NewConfirmedSource is like NewSource but asks twice when prompting, for
// passphrases protecting newly created keystores.
func NewConfirmedSource(envVar string) *Source {
	s := NewSource(envVar)
	s.confirm = true
	return s
}

// Get returns the cached passphrase or resolves it on first use.
// Whitespace-only passphrases are rejected.
func (s *Source) Get() (string, error) {
	s.once.Do(func() {
		s.value, s.err = s.resolve()
	})
	return s.value, s.err
}

func (s *Source) resolve() (string, error) {
	if s.envVar != "" {
		if value, ok := s.lookupEnv(s.envVar); ok {
			if strings.TrimSpace(value) == "" {
				return "", fmt.Errorf("%s is set but empty", s.envVar)
			}
			return value, nil
		}
	}

	if !s.isTerminal() {
		if s.envVar != "" {
			return "", fmt.Errorf("keystore passphrase required; set %s or run interactively", s.envVar)
		}
		return "", errors.New("keystore passphrase required and no terminal available")
	}

	passphrase, err := s.ask("Enter keystore passphrase: ")
	if err != nil {
		return "", err
	}
	if s.confirm {
		again, err := s.ask("Repeat keystore passphrase: ")
		if err != nil {
			return "", err
		}
		if again != passphrase {
			return "", errors.New("passphrases do not match")
		}
	}
	return passphrase, nil
}

func (s *Source) ask(label string) (string, error) {
	fmt.Fprint(s.prompt, label)
	raw, err := s.readSecret()
	fmt.Fprintln(s.prompt)
	if err != nil {
		return "", fmt.Errorf("failed to read passphrase: %w", err)
	}
	passphrase := string(raw)
	if strings.TrimSpace(passphrase) == "" {
		return "", errors.New("keystore passphrase cannot be empty")
	}
	return passphrase, nil
}
