// Package controller parses text commands and applies them to the calendar
// registry, either interactively or from a headless script.
package controller

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"calendarapp/internal/ics"
	appLog "calendarapp/internal/log"
	"calendarapp/internal/model"
	"calendarapp/internal/registry"
)

type Controller struct {
	reg         *registry.Registry
	mu          sync.Locker
	fetcher     *ics.Fetcher
	autoDecline bool

	out   io.Writer
	theme theme
	now   func() time.Time
}

type Option func(*Controller)

// WithLocker shares the registry lock with other readers such as the HTTP
// API.
func WithLocker(mu sync.Locker) Option {
	return func(c *Controller) { c.mu = mu }
}

// WithFetcher enables `import cal` from http(s) URLs.
func WithFetcher(f *ics.Fetcher) Option {
	return func(c *Controller) { c.fetcher = f }
}

// WithAutoDecline makes creations, edits and copies fail on overlap.
func WithAutoDecline(on bool) Option {
	return func(c *Controller) { c.autoDecline = on }
}

func New(reg *registry.Registry, out io.Writer, opts ...Option) *Controller {
	c := &Controller{
		reg:   reg,
		mu:    &sync.Mutex{},
		out:   out,
		theme: newTheme(out),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Execute runs one command line. It reports true when the line is `exit`.
func (c *Controller) Execute(ctx context.Context, line string) (bool, error) {
	toks, err := Tokenize(line)
	if err != nil {
		return false, err
	}
	if len(toks) == 0 {
		return false, nil
	}
	if len(toks) == 1 && toks[0] == "exit" {
		return true, nil
	}
	if len(toks) < 2 {
		return false, model.Invalidf("Invalid command: %s", line)
	}

	cmd, ok := lookup(toks[0], toks[1])
	if !ok {
		return false, model.Invalidf("Invalid command: %s", line)
	}
	a := &args{line: line, toks: toks[2:]}
	appLog.Debug("command", "verb", toks[0], "noun", toks[1])

	if cmd.prepare != nil {
		if err := cmd.prepare(c, ctx, a); err != nil {
			return false, err
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return false, cmd.run(c, a)
}

// RunInteractive reads commands from in until `exit` or EOF. Errors are
// printed and the loop continues.
func (c *Controller) RunInteractive(ctx context.Context, in io.Reader) error {
	sc := bufio.NewScanner(in)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(c.out, c.theme.prompt.Render(c.reg.CurrentName()+"> "))
		if !sc.Scan() {
			fmt.Fprintln(c.out)
			return sc.Err()
		}
		exit, err := c.Execute(ctx, sc.Text())
		if err != nil {
			c.printError(err)
			continue
		}
		if exit {
			return nil
		}
	}
}

// RunHeadless executes a script. Blank lines and lines starting with # are
// ignored. The last command must be `exit`, and execution stops at the
// first failing command.
func (c *Controller) RunHeadless(ctx context.Context, in io.Reader) error {
	type scriptLine struct {
		n    int
		text string
	}
	var lines []scriptLine
	sc := bufio.NewScanner(in)
	for n := 1; sc.Scan(); n++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		lines = append(lines, scriptLine{n: n, text: text})
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("controller: read script: %w", err)
	}
	if len(lines) == 0 || lines[len(lines)-1].text != "exit" {
		return model.Invalidf("Headless script must end with exit")
	}

	for _, l := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		exit, err := c.Execute(ctx, l.text)
		if err != nil {
			return fmt.Errorf("line %d: %w", l.n, err)
		}
		if exit {
			return nil
		}
	}
	return nil
}
