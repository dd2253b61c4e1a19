// Package reason drives the generate/critique/grade refinement loop:
// each epoch the generator produces a response, the critic reviews it,
// and a boolean grade decides whether to accept or iterate again.
package reason

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/refinery-ai/refinery/internal/agent"
	"github.com/refinery-ai/refinery/internal/chat"
	"github.com/refinery-ai/refinery/internal/llm"
	"github.com/refinery-ai/refinery/internal/prompts"
	"github.com/refinery-ai/refinery/internal/trace"
)

// ErrEmptyResponse indicates a model returned neither content nor tool
// calls. The loop fails fast rather than grading an empty answer.
var ErrEmptyResponse = errors.New("empty response from model")

const finalAnswerMarker = "Final Answer"

// CallRecord describes one model invocation for archiving.
type CallRecord struct {
	SessionID    string
	Epoch        int
	Phase        string // generate, critique, grade
	Provider     string
	Model        string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
}

// RunRecord describes one completed (or failed) refinement run.
type RunRecord struct {
	SessionID      string
	Query          string
	PromptType     string
	PromptPattern  string
	GeneratorModel string
	CriticModel    string
	Epochs         int
	Accepted       bool
	Output         string
	Elapsed        time.Duration
	TracePath      string
}

// Archiver persists run and call records. Archiving is best effort;
// failures are logged, never propagated.
type Archiver interface {
	RecordCall(ctx context.Context, c CallRecord) error
	RecordRun(ctx context.Context, r RunRecord) error
}

// Result is the outcome of one refinement run.
type Result struct {
	Output    string
	Epochs    int
	Accepted  bool
	Elapsed   time.Duration
	TracePath string
}

// Loop runs the refinement protocol for one agent.
type Loop struct {
	agent   *agent.Agent
	writer  *trace.Writer
	log     *slog.Logger
	archive Archiver
	now     func() time.Time
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the loop's logger.
func WithLogger(log *slog.Logger) Option {
	return func(l *Loop) { l.log = log }
}

// WithArchive enables call and run archiving.
func WithArchive(a Archiver) Option {
	return func(l *Loop) { l.archive = a }
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loop) { l.now = now }
}

// NewLoop builds a Loop for an agent. writer may be nil to disable
// trace persistence.
func NewLoop(a *agent.Agent, writer *trace.Writer, opts ...Option) *Loop {
	l := &Loop{
		agent:  a,
		writer: writer,
		log:    slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes up to MaxIterations refinement epochs for the query and
// returns the final output. The conversation is append-only: every
// generate, critique, and grade exchange lands in the same history, so
// later epochs see the full refinement so far.
//
// On error the partial trace is flushed before the error propagates,
// so a failed run still leaves evidence of how far it got.
func (l *Loop) Run(ctx context.Context, q chat.Query) (*Result, error) {
	start := l.now()
	hist := l.agent.NewHistory()
	tb := trace.NewBuilder()

	query := q.Display()
	l.log.Info("refinement run starting",
		"session_id", l.agent.SessionID,
		"generator", l.agent.Generator.Model,
		"critic", l.agent.Critic.Model,
		"max_iterations", l.agent.MaxIterations)

	var (
		best     string
		accepted bool
		epochs   int
	)
	for n := 1; n <= l.agent.MaxIterations; n++ {
		epochs = n

		raw, err := l.generate(ctx, hist, q, l.agent.Generator, "generate", n)
		if err != nil {
			return nil, l.fail(ctx, tb, query, err, n, start)
		}
		tb.Generated(n, raw)

		// Critique and grade see the extracted answer, not the full
		// reasoning transcript.
		generated := ExtractFinalAnswer(raw)

		critiquePrompt := prompts.Critique(query, generated)
		critiqued, err := l.generate(ctx, hist, chat.TextQuery(critiquePrompt), l.agent.Critic, "critique", n)
		if err != nil {
			return nil, l.fail(ctx, tb, query, err, n, start)
		}
		tb.Critiqued(critiqued)

		ok, err := l.grade(ctx, hist, query, generated, critiqued, n)
		if err != nil {
			return nil, l.fail(ctx, tb, query, err, n, start)
		}
		tb.Grade(ok)

		best = generated
		if ok {
			accepted = true
			l.log.Info("response accepted", "epoch", n)
			break
		}
		l.log.Debug("response rejected, iterating", "epoch", n)
		tb.EndEpoch()
	}

	elapsed := l.now().Sub(start)
	output := best
	tb.Final(output, elapsed)

	path := l.flush(tb)
	l.recordRun(ctx, query, epochs, accepted, output, elapsed, path)

	l.log.Info("refinement run finished",
		"session_id", l.agent.SessionID,
		"epochs", epochs,
		"accepted", accepted,
		"elapsed", elapsed.Round(10*time.Millisecond))

	return &Result{
		Output:    output,
		Epochs:    epochs,
		Accepted:  accepted,
		Elapsed:   elapsed,
		TracePath: path,
	}, nil
}

// generate appends the query to the history, invokes the backend on
// the full conversation, appends the assistant reply, and returns its
// content.
func (l *Loop) generate(ctx context.Context, hist *chat.History, q chat.Query, b *llm.Backend, phase string, epoch int) (string, error) {
	if err := hist.AddQuery(l.agent.SystemTemplate(), q); err != nil {
		return "", fmt.Errorf("%s epoch %d: %w", phase, epoch, err)
	}
	content, err := l.invoke(ctx, hist, b, nil, phase, epoch)
	if err != nil {
		return "", err
	}
	return content, nil
}

// invoke runs one chat completion over the history and appends the
// assistant reply. opts carries grading-strategy extras and may be nil.
func (l *Loop) invoke(ctx context.Context, hist *chat.History, b *llm.Backend, opts *llm.ChatOptions, phase string, epoch int) (string, error) {
	callStart := l.now()
	resp, err := b.Client.Chat(ctx, b.Model, toLLM(hist.Messages()), opts)
	if err != nil {
		return "", fmt.Errorf("%s epoch %d: %s/%s: %w", phase, epoch, b.Provider, b.Model, err)
	}

	l.recordCall(ctx, CallRecord{
		SessionID:    l.agent.SessionID,
		Epoch:        epoch,
		Phase:        phase,
		Provider:     b.Provider,
		Model:        b.Model,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
		Duration:     l.now().Sub(callStart),
	})

	// Tool calls only count as a response when the request offered
	// tools; a textual step must produce text.
	hasTools := opts != nil && len(opts.Tools) > 0
	if resp.Message.Content == "" && (!hasTools || len(resp.Message.ToolCalls) == 0) {
		return "", fmt.Errorf("%s epoch %d: %s/%s: %w", phase, epoch, b.Provider, b.Model, ErrEmptyResponse)
	}

	hist.Append(chat.Message{Role: chat.RoleAssistant, Content: resp.Message.Content})
	return resp.Message.Content, nil
}

// fail records the error in the trace, flushes what we have, and wraps
// the error.
func (l *Loop) fail(ctx context.Context, tb *trace.Builder, query string, err error, epoch int, start time.Time) error {
	tb.Error(err, epoch)
	path := l.flush(tb)
	l.recordRun(ctx, query, epoch, false, "", l.now().Sub(start), path)
	return fmt.Errorf("refinement run: %w", err)
}

// flush writes the trace and returns its path, or "" when persistence
// is disabled or failed. Trace write failures are logged, not fatal.
func (l *Loop) flush(tb *trace.Builder) string {
	if l.writer == nil {
		return ""
	}
	path, err := l.writer.Write(l.agent.TraceFileName(), tb.String())
	if err != nil {
		l.log.Error("trace write failed", "error", err)
		return ""
	}
	l.log.Debug("trace written", "path", path)
	return path
}

func (l *Loop) recordCall(ctx context.Context, c CallRecord) {
	if l.archive == nil {
		return
	}
	if err := l.archive.RecordCall(ctx, c); err != nil {
		l.log.Warn("archive call record failed", "error", err)
	}
}

func (l *Loop) recordRun(ctx context.Context, query string, epochs int, accepted bool, output string, elapsed time.Duration, path string) {
	if l.archive == nil {
		return
	}
	r := RunRecord{
		SessionID:      l.agent.SessionID,
		Query:          query,
		PromptType:     l.agent.PromptType,
		PromptPattern:  l.agent.PromptPattern,
		GeneratorModel: l.agent.Generator.Model,
		CriticModel:    l.agent.Critic.Model,
		Epochs:         epochs,
		Accepted:       accepted,
		Output:         output,
		Elapsed:        elapsed,
		TracePath:      path,
	}
	if err := l.archive.RecordRun(ctx, r); err != nil {
		l.log.Warn("archive run record failed", "error", err)
	}
}

// ExtractFinalAnswer returns the text after the last "Final Answer"
// marker, with an optional leading colon stripped. Responses without
// the marker are returned whole, trimmed.
func ExtractFinalAnswer(s string) string {
	i := strings.LastIndex(s, finalAnswerMarker)
	if i < 0 {
		return strings.TrimSpace(s)
	}
	rest := s[i+len(finalAnswerMarker):]
	rest = strings.TrimSpace(rest)
	rest = strings.TrimPrefix(rest, ":")
	return strings.TrimSpace(rest)
}

func toLLM(ms []chat.Message) []llm.Message {
	out := make([]llm.Message, len(ms))
	for i, m := range ms {
		out[i] = llm.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
