// Package summary produces the natural-language overview printed on the
// clinic report. The text generator is an external collaborator; every failure
// degrades to Fallback instead of failing the report.
package summary

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Fallback is the report text used when no summary could be produced.
const Fallback = "No summary generated."

// PromptPrefix precedes the appointment table in every prompt.
const PromptPrefix = "Summarize the following dental appointment data:\n"

// Fallback reasons, used as log fields and metric labels.
const (
	ReasonUnconfigured = "unconfigured"
	ReasonTimeout      = "timeout"
	ReasonError        = "error"
	ReasonEmpty        = "empty"
)

var ErrUnconfigured = errors.New("summary collaborator not configured")

// Summarizer turns a prompt into summary text.
type Summarizer interface {
	Summarize(ctx context.Context, prompt string) (string, error)
}

// Unconfigured is the Summarizer used when no API key is set.
type Unconfigured struct{}

func (Unconfigured) Summarize(context.Context, string) (string, error) {
	return "", ErrUnconfigured
}

// Result is the outcome of one bounded summary attempt.
type Result struct {
	Text     string
	Fallback bool
	Reason   string
	Err      error
}

// Generate calls s with a deadline of timeout and never fails: errors,
// timeouts and blank answers all produce the Fallback text with a reason.
func Generate(ctx context.Context, s Summarizer, prompt string, timeout time.Duration) Result {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type reply struct {
		text string
		err  error
	}
	// Buffered so a collaborator that ignores ctx cannot leak the goroutine
	// past its own return.
	ch := make(chan reply, 1)
	go func() {
		t, err := s.Summarize(ctx, prompt)
		ch <- reply{t, err}
	}()

	var text string
	var err error
	select {
	case r := <-ch:
		text, err = r.text, r.err
	case <-ctx.Done():
		err = ctx.Err()
	}

	switch {
	case errors.Is(err, ErrUnconfigured):
		return Result{Text: Fallback, Fallback: true, Reason: ReasonUnconfigured, Err: err}
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)):
		return Result{Text: Fallback, Fallback: true, Reason: ReasonTimeout, Err: err}
	case err != nil:
		return Result{Text: Fallback, Fallback: true, Reason: ReasonError, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return Result{Text: Fallback, Fallback: true, Reason: ReasonEmpty}
	}
	return Result{Text: text}
}

// BuildPrompt renders the rows as a markdown table after PromptPrefix.
func BuildPrompt(header []string, rows [][]string) string {
	return PromptPrefix + MarkdownTable(header, rows)
}

// MarkdownTable renders a GitHub-style pipe table.
func MarkdownTable(header []string, rows [][]string) string {
	var b strings.Builder
	writeRow(&b, header)
	b.WriteString("|")
	for range header {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, row := range rows {
		writeRow(&b, row)
	}
	return b.String()
}

var cellEscaper = strings.NewReplacer("|", `\|`, "\r\n", " ", "\n", " ")

func writeRow(b *strings.Builder, cells []string) {
	b.WriteString("|")
	for _, c := range cells {
		b.WriteString(" ")
		b.WriteString(cellEscaper.Replace(c))
		b.WriteString(" |")
	}
	b.WriteString("\n")
}
