package controller

import (
	"strings"
	"unicode"

	"calendarapp/internal/model"
)

// Tokenize splits a command line on whitespace. Double quotes group words
// into one token and are removed; "" yields an empty token.
func Tokenize(line string) ([]string, error) {
	var (
		toks    []string
		b       strings.Builder
		inQuote bool
		have    bool
	)
	for _, r := range line {
		switch {
		case r == '"':
			inQuote = !inQuote
			have = true
		case unicode.IsSpace(r) && !inQuote:
			if have {
				toks = append(toks, b.String())
				b.Reset()
				have = false
			}
		default:
			b.WriteRune(r)
			have = true
		}
	}
	if inQuote {
		return nil, model.Invalidf("Unterminated quote in command: %s", line)
	}
	if have {
		toks = append(toks, b.String())
	}
	return toks, nil
}

// args is a cursor over the tokens following a command's verb and noun.
type args struct {
	line string
	toks []string
	pos  int

	// body carries data a command fetched before taking the registry lock.
	body []byte
}

func (a *args) peek() string {
	if a.pos < len(a.toks) {
		return a.toks[a.pos]
	}
	return ""
}

func (a *args) next(what string) (string, error) {
	if a.pos >= len(a.toks) {
		return "", model.Invalidf("Missing %s in command: %s", what, a.line)
	}
	t := a.toks[a.pos]
	a.pos++
	return t, nil
}

func (a *args) expect(word string) error {
	if !a.accept(word) {
		return model.Invalidf("Expected '%s' in command: %s", word, a.line)
	}
	return nil
}

// accept consumes word when it is next.
func (a *args) accept(word string) bool {
	if a.pos < len(a.toks) && a.toks[a.pos] == word {
		a.pos++
		return true
	}
	return false
}

// flag reads "--name value".
func (a *args) flag(name string) (string, error) {
	if err := a.expect(name); err != nil {
		return "", err
	}
	return a.next(strings.TrimPrefix(name, "--"))
}

// rest joins the remaining tokens with single spaces.
func (a *args) rest(what string) (string, error) {
	if a.pos >= len(a.toks) {
		return "", model.Invalidf("Missing %s in command: %s", what, a.line)
	}
	v := strings.Join(a.toks[a.pos:], " ")
	a.pos = len(a.toks)
	return v, nil
}

func (a *args) done() error {
	if a.pos < len(a.toks) {
		return model.Invalidf("Unexpected '%s' in command: %s", a.toks[a.pos], a.line)
	}
	return nil
}
