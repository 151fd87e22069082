package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/yuya-takeyama/strict-dir-sync/internal/logging"
	"github.com/yuya-takeyama/strict-dir-sync/pkg/session"
)

// promptGate asks on a terminal before anything is copied.
// Answers typed before delay has passed are ignored so the notice gets read.
// One goroutine reads in for the lifetime of the gate and is shared by every
// Confirm call.
type promptGate struct {
	in    io.Reader
	out   io.Writer
	delay time.Duration
	now   func() time.Time

	once  sync.Once
	lines chan string
}

func newPromptGate(in io.Reader, out io.Writer, delay time.Duration) *promptGate {
	return &promptGate{in: in, out: out, delay: delay, now: time.Now}
}

func (g *promptGate) Confirm(ctx context.Context, req session.Request) (bool, error) {
	acceptAt := g.now().Add(g.delay)

	fmt.Fprintln(g.out)
	fmt.Fprintf(g.out, "%d files (%s) will be copied from %s to %s.\n",
		len(req.Missing), logging.FormatBytes(req.Missing.TotalSize()), req.SourceRoot, req.TargetRoot)
	fmt.Fprintln(g.out, "Files already present in the target are never overwritten.")
	if g.delay > 0 {
		fmt.Fprintf(g.out, "Answers are accepted after %s.\n", g.delay)
	}
	fmt.Fprint(g.out, "Proceed? [y/N]: ")

	lines := g.readLines()
	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case line, ok := <-lines:
			if !ok {
				// EOF counts as no
				fmt.Fprintln(g.out)
				return false, nil
			}
			if now := g.now(); now.Before(acceptAt) {
				fmt.Fprintf(g.out, "Please read the notice above. Answer again in %s: ", acceptAt.Sub(now).Round(time.Second))
				continue
			}
			return isYes(line), nil
		}
	}
}

func (g *promptGate) readLines() <-chan string {
	g.once.Do(func() {
		g.lines = make(chan string)
		go func() {
			defer close(g.lines)
			scanner := bufio.NewScanner(g.in)
			for scanner.Scan() {
				g.lines <- scanner.Text()
			}
		}()
	})
	return g.lines
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}
