// Package policy implements the LLM-backed question policy for intake
// interviews. Each turn is a single bounded chat completion that must
// return strict JSON; any transport or parse problem is an error the
// engine answers by switching the session to its fallback list.
package policy

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/clinic-ai/clinicd/internal/intake"
	"github.com/clinic-ai/clinicd/internal/openai"
)

type Planner struct {
	llm     *openai.Client
	timeout time.Duration
	logger  *slog.Logger
}

func New(llm *openai.Client, timeout time.Duration, logger *slog.Logger) *Planner {
	return &Planner{llm: llm, timeout: timeout, logger: logger}
}

// Decide asks the model for the next question. One attempt, no retry.
func (p *Planner) Decide(ctx context.Context, attrs intake.PatientAttrs, history []intake.QA, asked int) (intake.Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	messages := []openai.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: fmt.Sprintf(userPromptFormat, attrs.Name, attrs.Age, attrs.Gender, asked, transcript(history))},
	}

	raw, err := p.llm.ChatCompletion(ctx, messages, 0.2, 0)
	if err != nil {
		return intake.Decision{}, fmt.Errorf("next-question completion: %w", err)
	}

	d, err := parseDecision(raw)
	if err != nil {
		p.logger.Warn("unparseable policy response", "error", err, "raw", raw)
		return intake.Decision{}, err
	}

	p.logger.Debug("policy decision",
		"asked", asked,
		"done", d.Done,
		"needs_extra", d.NeedsExtra,
		"reason", d.Reason,
	)
	return d, nil
}

// transcript renders the interview so far as Q1/A1 pairs.
func transcript(history []intake.QA) string {
	if len(history) == 0 {
		return "(no prior Q/A)"
	}
	var b strings.Builder
	for i, qa := range history {
		fmt.Fprintf(&b, "Q%d: %s\n", i+1, qa.Question)
		fmt.Fprintf(&b, "A%d: %s\n", i+1, qa.Answer)
	}
	return strings.TrimRight(b.String(), "\n")
}

type decisionJSON struct {
	NextQuestion *string `json:"next_question"`
	Done         *bool   `json:"done"`
	NeedsExtra   *bool   `json:"needs_extra"`
	Reason       string  `json:"reason"`
}

// parseDecision parses the model output as strict JSON, rescuing a
// JSON object embedded in surrounding chatter. All three required keys
// must be present.
func parseDecision(raw string) (intake.Decision, error) {
	s := strings.TrimSpace(raw)

	var dj decisionJSON
	if err := json.Unmarshal([]byte(s), &dj); err != nil {
		obj, ok := embeddedObject(s)
		if !ok {
			return intake.Decision{}, fmt.Errorf("no JSON object in policy output")
		}
		if err := json.Unmarshal([]byte(obj), &dj); err != nil {
			return intake.Decision{}, fmt.Errorf("parse policy output: %w", err)
		}
	}

	if dj.NextQuestion == nil || dj.Done == nil || dj.NeedsExtra == nil {
		return intake.Decision{}, fmt.Errorf("policy output missing required keys")
	}

	return intake.Decision{
		NextQuestion: strings.TrimSpace(*dj.NextQuestion),
		Done:         *dj.Done,
		NeedsExtra:   *dj.NeedsExtra,
		Reason:       dj.Reason,
	}, nil
}

// embeddedObject returns the outermost {...} span of s, if any.
func embeddedObject(s string) (string, bool) {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", false
	}
	return s[start : end+1], true
}
