package trace

import (
	"fmt"
	"strconv"
	"strings"
)

// Epoch is one parsed generate/critique/grade record.
type Epoch struct {
	N         int
	Generated string
	Critiqued string
	Accepted  bool
}

// Parse recovers the ordered epoch records and the final output from a
// trace produced by Builder. Blocks that lack the critique or grade
// markers (an iteration that died mid-epoch) are skipped rather than
// treated as errors, so partial traces written on failure still parse.
func Parse(s string) ([]Epoch, string, error) {
	var epochs []Epoch

	segments := strings.Split(s, epochHeaderPrefix)
	for _, seg := range segments[1:] {
		end := strings.Index(seg, epochHeaderSuffix)
		if end < 0 {
			continue
		}
		n, err := strconv.Atoi(seg[:end])
		if err != nil {
			return nil, "", fmt.Errorf("parse epoch number %q: %w", seg[:end], err)
		}
		body := seg[end+len(epochHeaderSuffix):]

		epoch, ok := parseEpochBody(n, body)
		if !ok {
			continue
		}
		epochs = append(epochs, epoch)
	}

	return epochs, parseFinalOutput(s), nil
}

// parseEpochBody extracts the generated, critiqued, and grade fields
// from one epoch block body.
func parseEpochBody(n int, body string) (Epoch, bool) {
	if !strings.HasPrefix(body, generatedMarker) {
		return Epoch{}, false
	}
	body = body[len(generatedMarker):]

	critDelim := "\n\n\n\n" + critiquedMarker
	ci := strings.Index(body, critDelim)
	if ci < 0 {
		return Epoch{}, false
	}
	generated := body[:ci]
	body = body[ci+len(critDelim):]

	gradeDelim := "\n\n\n\n" + gradeMarker
	gi := strings.Index(body, gradeDelim)
	if gi < 0 {
		return Epoch{}, false
	}
	critiqued := body[:gi]
	body = body[gi+len(gradeDelim):]

	token := body
	if nl := strings.Index(token, "\n"); nl >= 0 {
		token = token[:nl]
	}
	accepted, err := strconv.ParseBool(strings.TrimSpace(token))
	if err != nil {
		return Epoch{}, false
	}

	return Epoch{
		N:         n,
		Generated: generated,
		Critiqued: critiqued,
		Accepted:  accepted,
	}, true
}

// parseFinalOutput returns the final-output block content, or "" when
// the trace has none (a run that died before completion).
func parseFinalOutput(s string) string {
	fi := strings.LastIndex(s, "\n\n"+finalMarker)
	if fi < 0 {
		return ""
	}
	out := s[fi+2+len(finalMarker):]
	if ti := strings.LastIndex(out, "\n\n"+timePrefix); ti >= 0 {
		out = out[:ti]
	}
	return out
}
