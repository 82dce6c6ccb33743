package prompts

import (
	"fmt"

	"github.com/aisdlc/copilot/pkg/model"
)

const edgeCaseInstruction = `
Include a mix of:
- Functional tests (happy path)
- Edge cases (boundary conditions)
- Negative tests (invalid inputs, error handling)
- Security tests (if applicable)`

const markdownTestCaseFormat = `Respond in Markdown format with each test case as a section:

## TC001: [Title]
**Description:** [What this test validates]
**Priority:** [high/medium/low]
**Type:** [functional/edge_case/negative/security/performance]

**Preconditions:**
- [Setup requirement 1]
- [Setup requirement 2]

**Steps:**
1. [Step 1]
2. [Step 2]
3. [Step 3]

**Expected Result:** [Clear expected outcome]

---

(Repeat for each test case)`

const jsonTestCaseFormat = `Respond with ONLY this JSON structure (no markdown, no code blocks):
{
    "test_cases": [
        {
            "id": "TC001",
            "title": "Brief descriptive title",
            "description": "What this test validates",
            "preconditions": ["Any setup required"],
            "steps": ["Step 1", "Step 2", "Step 3"],
            "expected_result": "Clear expected outcome",
            "priority": "high|medium|low",
            "test_type": "functional|edge_case|negative|security|performance"
        }
    ]
}`

// TestCaseGenerationPrompt builds the user prompt asking for numCases test
// cases in the given format.
func TestCaseGenerationPrompt(requirement string, numCases int, includeEdgeCases bool, context string, format model.OutputFormat) string {
	edge := ""
	if includeEdgeCases {
		edge = edgeCaseInstruction
	}

	contextSection := ""
	if context != "" {
		contextSection = fmt.Sprintf("\nSystem Context:\n%s\n", context)
	}

	outputFormat := jsonTestCaseFormat
	if format == model.FormatMarkdown {
		outputFormat = markdownTestCaseFormat
	}

	return fmt.Sprintf("Generate exactly %d test cases for the following requirement.\n"+
		"%s\n"+
		"Requirement:\n"+
		"%s\n"+
		"%s\n\n"+
		"%s", numCases, contextSection, requirement, edge, outputFormat)
}
