// Package trace builds, persists, and parses the human-readable record
// of one refinement-loop invocation: one block per epoch (generated
// response, critiqued response, grade outcome) followed by the final
// output and elapsed time.
package trace

import (
	"fmt"
	"strings"
	"time"
)

// Block markers. The builder and parser must agree on these exactly.
const (
	epochHeaderPrefix = "===== Epoch "
	epochHeaderSuffix = " =====\n\n"
	generatedMarker   = "**Generated Response**:\n\n"
	critiquedMarker   = "**Critiqued Response**:\n\n"
	gradeMarker       = "**Grade node output**\n\n"
	errorMarker       = "**Error occurred"
	finalMarker       = "**Final Output**:\n\n"
	timePrefix        = "Response Time:"
)

// separator closes a rejected epoch. Accepted epochs end the trace and
// carry no separator.
var separator = strings.Repeat("=", 100) + "\n\n"

// Builder accumulates the trace text. It is append-only: blocks are
// written in execution order and never rewritten.
type Builder struct {
	b      strings.Builder
	epochs int
}

// NewBuilder creates an empty trace builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Epochs returns the number of epoch headers written so far.
func (t *Builder) Epochs() int {
	return t.epochs
}

// Generated opens epoch n and records the raw generated response
// (before final-answer extraction).
func (t *Builder) Generated(n int, response string) {
	t.epochs++
	fmt.Fprintf(&t.b, "%s%d%s", epochHeaderPrefix, n, epochHeaderSuffix)
	t.b.WriteString(generatedMarker)
	t.b.WriteString(response)
	t.b.WriteString("\n\n")
}

// Critiqued records the critic's response for the current epoch.
func (t *Builder) Critiqued(response string) {
	t.b.WriteString("\n\n")
	t.b.WriteString(critiquedMarker)
	t.b.WriteString(response)
	t.b.WriteString("\n\n")
}

// Grade records the boolean grade outcome for the current epoch.
func (t *Builder) Grade(accepted bool) {
	t.b.WriteString("\n\n")
	t.b.WriteString(gradeMarker)
	fmt.Fprintf(&t.b, "%t\n\n", accepted)
}

// EndEpoch writes the separator that closes a rejected epoch.
func (t *Builder) EndEpoch() {
	t.b.WriteString(separator)
}

// Error records a failure inside iteration n. The loop writes this
// entry before propagating the error so the persisted trace shows
// where the invocation died.
func (t *Builder) Error(err error, n int) {
	fmt.Fprintf(&t.b, "\n\n%s %v in iteration %d**\n\n", errorMarker, err, n)
}

// Final closes the trace with the final output and elapsed wall-clock
// time, rounded to hundredths of a second.
func (t *Builder) Final(output string, elapsed time.Duration) {
	t.b.WriteString("\n\n")
	t.b.WriteString(finalMarker)
	t.b.WriteString(output)
	fmt.Fprintf(&t.b, "\n\n%s%.2f seconds", timePrefix, elapsed.Seconds())
}

// String returns the accumulated trace text.
func (t *Builder) String() string {
	return t.b.String()
}
