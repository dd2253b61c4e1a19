// Package prompts holds the fixed prompt templates used by the
// refinement loop: system prompt templates selected by type and
// pattern, the critique prompt, and the grading prompt.
package prompts

import "fmt"

// Prompt types and their default patterns.
const (
	TypeReAct = "react"
	TypeCoT   = "cot"
)

// reactTemplate interleaves reasoning and action steps. The loop's
// final-answer extraction depends on the "Final Answer:" convention
// this template establishes.
const reactTemplate = `You are a reasoning agent that solves problems step by step.

For the question below, think in an explicit loop:

Thought: reason about what the question requires and what you know.
Action: name the single step you take next (recall, compute, compare).
Observation: state what that step produced.

Repeat Thought/Action/Observation until the answer is settled, then end
your reply with exactly one line of the form:

Final Answer: <the complete answer to the question>

Question: {query}`

// cotTemplate is a plain chain-of-thought prompt: reason first, answer
// last, same Final Answer convention.
const cotTemplate = `You are a careful assistant that reasons before answering.

Work through the question below step by step, numbering each step.
Keep each step short and verifiable. When the reasoning is complete,
end your reply with exactly one line of the form:

Final Answer: <the complete answer to the question>

Question: {query}`

// templates maps prompt type → pattern → system prompt template. Every
// template contains a {query} placeholder.
var templates = map[string]map[string]string{
	TypeReAct: {
		"react": reactTemplate,
	},
	TypeCoT: {
		"cot": cotTemplate,
	},
}

// System returns the system prompt template for a prompt type and
// pattern. An empty type selects ReAct; an empty pattern selects the
// pattern named after the type. Unknown values are errors.
func System(promptType, pattern string) (string, error) {
	if promptType == "" {
		promptType = TypeReAct
	}
	patterns, ok := templates[promptType]
	if !ok {
		return "", fmt.Errorf("unknown prompt type %q (valid: react, cot)", promptType)
	}
	if pattern == "" {
		pattern = promptType
	}
	tpl, ok := patterns[pattern]
	if !ok {
		return "", fmt.Errorf("unknown prompt pattern %q for type %q", pattern, promptType)
	}
	return tpl, nil
}
