package passphrase

import (
	"io"
	"testing"
)

func fakeSource(env map[string]string, tty bool, answers ...string) *Source {
	s := NewSource("ECO_TEST_PASSPHRASE")
	s.lookupEnv = func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
	s.isTerminal = func() bool { return tty }
	s.readSecret = func() ([]byte, error) {
		if len(answers) == 0 {
			return nil, io.EOF
		}
		next := answers[0]
		answers = answers[1:]
		return []byte(next), nil
	}
	s.prompt = io.Discard
	return s
}

func TestSourcePrefersEnvironment(t *testing.T) {
	s := fakeSource(map[string]string{"ECO_TEST_PASSPHRASE": "from-env"}, true, "typed")
	got, err := s.Get()
	if err != nil || got != "from-env" {
		t.Fatalf("got %q, %v", got, err)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	s := fakeSource(map[string]string{"ECO_TEST_PASSPHRASE": "  "}, true)
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected error for blank env value")
	}
}

func TestSourceRequiresTerminal(t *testing.T) {
	s := fakeSource(nil, false)
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected error without terminal")
	}
}

func TestSourcePromptsAndCaches(t *testing.T) {
	s := fakeSource(nil, true, "typed", "other")
	first, err := s.Get()
	if err != nil || first != "typed" {
		t.Fatalf("got %q, %v", first, err)
	}
	second, _ := s.Get()
	if second != "typed" {
		t.Fatalf("expected cached value, got %q", second)
	}
}

func TestConfirmedSourceDetectsMismatch(t *testing.T) {
	s := fakeSource(nil, true, "one", "two")
	s.confirm = true
	if _, err := s.Get(); err == nil {
		t.Fatalf("expected mismatch error")
	}

	ok := fakeSource(nil, true, "same", "same")
	ok.confirm = true
	if got, err := ok.Get(); err != nil || got != "same" {
		t.Fatalf("got %q, %v", got, err)
	}
}
