package document

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Converter turns the markup file at src into a PDF at dst.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
	Name() string
}

// Pandoc shells out to the pandoc binary. The process is bound to ctx and is
// killed when the request is cancelled.
type Pandoc struct {
	Path      string
	PDFEngine string
}

func (p *Pandoc) Name() string { return "pandoc" }

func (p *Pandoc) Convert(ctx context.Context, src, dst string) error {
	args := []string{src, "--from", "markdown", "--output", dst}
	if p.PDFEngine != "" {
		args = append(args, "--pdf-engine="+p.PDFEngine)
	}

	cmd := exec.CommandContext(ctx, p.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("pandoc cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("pandoc: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// NewConverter selects a backend by name ("native" or "pandoc").
func NewConverter(name, pandocPath, pdfEngine string) (Converter, error) {
	switch name {
	case "", "native":
		return NewNative(), nil
	case "pandoc":
		path, err := exec.LookPath(pandocPath)
		if err != nil {
			return nil, fmt.Errorf("pandoc converter: %w", err)
		}
		return &Pandoc{Path: path, PDFEngine: pdfEngine}, nil
	default:
		return nil, fmt.Errorf("unknown pdf converter %q", name)
	}
}
