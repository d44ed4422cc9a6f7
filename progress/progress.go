// Package progress renders the translation loop's progress. Reporters are
// scoped: one is started when the loop begins and closed on every exit
// path, so nothing outlives the loop.
package progress

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives progress for one loop.
type Reporter interface {
	Add(n int)
	Close() error
}

// Starter starts a reporter for total units.
type Starter func(total int, label string) Reporter

type nop struct{}

func (nop) Add(int)      {}
func (nop) Close() error { return nil }

// Nop starts reporters that draw nothing.
func Nop(int, string) Reporter { return nop{} }

type bar struct {
	b *progressbar.ProgressBar
}

func (r *bar) Add(n int) { _ = r.b.Add(n) }

// Close leaves the bar at its current state; an interrupted loop is not
// drawn as complete.
func (r *bar) Close() error { return r.b.Exit() }

// Bar returns a Starter drawing a bar on w.
func Bar(w io.Writer) Starter {
	return func(total int, label string) Reporter {
		b := progressbar.NewOptions(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(40),
			progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%s[reset]", label)),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(w) }),
		)
		return &bar{b: b}
	}
}

// Counter is a Reporter that only counts, for tests.
type Counter struct {
	Total  int
	Done   int
	Closed bool
}

func (c *Counter) Add(n int) { c.Done += n }

func (c *Counter) Close() error {
	c.Closed = true
	return nil
}

// Starter returns a Starter handing out c.
func (c *Counter) Starter() Starter {
	return func(total int, _ string) Reporter {
		c.Total = total
		c.Closed = false
		return c
	}
}
