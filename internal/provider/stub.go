package provider

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/journal-harness/internal/prompt"
	"github.com/sells-group/journal-harness/internal/resilience"
)

// StubMode selects how the offline stub answers.
type StubMode string

const (
	// StubEcho returns the entry text of the prompt.
	StubEcho StubMode = "echo"
	// StubEdges returns only the first and last entry blocks.
	StubEdges StubMode = "edges"
	// StubFixed returns a configured text.
	StubFixed StubMode = "fixed"
	// StubFail always fails with a permanent error.
	StubFail StubMode = "fail"
)

// ParseStubMode parses a stub mode, defaulting to echo.
func ParseStubMode(s string) (StubMode, error) {
	switch StubMode(strings.ToLower(strings.TrimSpace(s))) {
	case "", StubEcho:
		return StubEcho, nil
	case StubEdges:
		return StubEdges, nil
	case StubFixed:
		return StubFixed, nil
	case StubFail:
		return StubFail, nil
	default:
		return "", eris.Errorf("provider: unknown stub mode %q", s)
	}
}

// Stub is a deterministic, local provider.
type Stub struct {
	Mode StubMode
	Text string
}

// NewStub creates a stub provider.
func NewStub(mode StubMode, text string) *Stub {
	return &Stub{Mode: mode, Text: text}
}

// Chat answers from the prompt alone. A model id naming a stub mode
// ("stub:fail") overrides the configured mode for that call. Token counts are
// whitespace word counts so cost and usage paths are exercised offline.
func (s *Stub) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	mode := s.Mode
	if req.Model != "" {
		if m, err := ParseStubMode(req.Model); err == nil {
			mode = m
		}
	}

	user := lastUserMessage(req.Messages)
	var text string
	switch mode {
	case StubFail:
		return nil, eris.Wrap(resilience.ErrPermanent, "stub: configured to fail")
	case StubFixed:
		text = s.Text
	case StubEdges:
		blocks := prompt.SplitBlocks(user)
		switch len(blocks) {
		case 0:
		case 1:
			text = stripLabels(blocks[0])
		default:
			text = stripLabels(blocks[0]) + "\n\n" + stripLabels(blocks[len(blocks)-1])
		}
	default:
		blocks := prompt.SplitBlocks(user)
		parts := make([]string, 0, len(blocks))
		for _, b := range blocks {
			parts = append(parts, stripLabels(b))
		}
		text = strings.Join(parts, "\n\n")
	}

	in := len(strings.Fields(req.System))
	for _, m := range req.Messages {
		in += len(strings.Fields(m.Content))
	}
	return &ChatResponse{Text: text, InputTokens: in, OutputTokens: len(strings.Fields(text))}, nil
}

func lastUserMessage(msgs []Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == "user" {
			return msgs[i].Content
		}
	}
	return ""
}

// stripLabels turns a rendered entry block back into plain sentences: the
// date line is dropped and "Label: " prefixes are removed.
func stripLabels(block string) string {
	var out []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Date:") {
			continue
		}
		if label, rest, ok := strings.Cut(line, ": "); ok && isLabel(label) {
			line = rest
		}
		if !strings.HasSuffix(line, ".") && !strings.HasSuffix(line, "!") && !strings.HasSuffix(line, "?") {
			line += "."
		}
		out = append(out, line)
	}
	return strings.Join(out, " ")
}

func isLabel(s string) bool {
	if s == "" || len(s) > 24 {
		return false
	}
	for _, r := range s {
		if r != ' ' && (r < 'A' || r > 'Z') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
