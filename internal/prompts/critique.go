package prompts

import "fmt"

// critiqueTemplate asks the critic to either restate the response
// verbatim (when accurate and complete) or supply a corrected version.
// The two format verbs receive the original query and the candidate
// response.
const critiqueTemplate = `Evaluate this response for "%s":

%s

Check:
1. Accuracy: Any errors?
2. Completeness: Missing key info?
3. Clarity: Clear and logical?

If accurate and complete, return exactly: %s
Otherwise, provide corrected version.`

// Critique builds the critique prompt for a candidate response to the
// original query.
func Critique(query, response string) string {
	return fmt.Sprintf(critiqueTemplate, query, response, response)
}
