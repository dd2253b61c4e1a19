package trace

import (
	"fmt"
	"strings"
)

// FileName derives the trace file name from the agent's identifying
// fields. It is a pure function: identical identifiers always produce
// the same name, and a second run with the same identifiers overwrites
// the first.
//
// Pattern:
//
//	{prompt_type}_{prompt_pattern}_G_{generator_short}_C_{critic_short}_{session_prefix}_.txt
//
// where the short model names are the trailing path segment of the full
// model identifier and the session prefix is the segment before the
// first hyphen of the session ID.
func FileName(promptType, promptPattern, generatorModel, criticModel, sessionID string) string {
	return fmt.Sprintf("%s_%s_G_%s_C_%s_%s_.txt",
		promptType,
		promptPattern,
		shortModelName(generatorModel),
		shortModelName(criticModel),
		sessionPrefix(sessionID),
	)
}

// shortModelName returns the trailing "/"-separated segment.
func shortModelName(model string) string {
	if i := strings.LastIndex(model, "/"); i >= 0 {
		return model[i+1:]
	}
	return model
}

// sessionPrefix returns the segment before the first hyphen.
func sessionPrefix(sessionID string) string {
	if i := strings.Index(sessionID, "-"); i >= 0 {
		return sessionID[:i]
	}
	return sessionID
}
