package prompts

import "fmt"

// gradeTemplate is the fixed grading contract: the backend must output
// exactly the literal token True or False, judged against four
// criteria. The format verbs receive the query, the generated response,
// and the critiqued response.
const gradeTemplate = `You are a boolean evaluator that must only return True or False without any additional text or explanation.
Evaluate the response based on these criteria:
1. Accuracy: Is the response factually correct?
2. Completeness: Does it fully address all aspects of the query?
3. Clarity: Is it well-structured and easy to understand?
4. Relevance: Does it directly address the topic asked?

Evaluate:
- **User Query**: %s
- **Generated Response**: %s
- **Critiqued Response**: %s

Return exactly 'True' if all criteria are met, or exactly 'False' if any criterion fails.
Do not include any reasoning, explanations, or additional characters - your entire output must be either the word 'True' or the word 'False'.`

// Grade builds the grading prompt over one epoch's artifacts.
func Grade(query, generated, critiqued string) string {
	return fmt.Sprintf(gradeTemplate, query, generated, critiqued)
}
