package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// Prompter asks the user to confirm signature requests on a terminal.
type Prompter struct {
	mu    sync.Mutex
	in    *bufio.Reader
	out   io.Writer
	lines chan lineResult
}

type lineResult struct {
	line string
	err  error
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Approve shows msg and waits for y or n. It has no timeout; it returns
// ctx.Err() when ctx is cancelled first.
func (p *Prompter) Approve(ctx context.Context, msg string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, err := fmt.Fprintf(p.out, "Sign message %q? [y/N]: ", msg); err != nil {
		return false, err
	}

	// A read abandoned by a cancelled request is picked up by the next one.
	if p.lines == nil {
		p.lines = make(chan lineResult, 1)
		go func() {
			line, err := p.in.ReadString('\n')
			p.lines <- lineResult{line: line, err: err}
		}()
	}

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case res := <-p.lines:
		p.lines = nil
		if res.err != nil && res.line == "" {
			return false, fmt.Errorf("reading answer: %w", res.err)
		}
		answer := strings.ToLower(strings.TrimSpace(res.line))
		return answer == "y" || answer == "yes", nil
	}
}
