package prompts

import (
	"fmt"
	"strings"

	"github.com/aisdlc/copilot/pkg/model"
)

// PyTestSystemPrompt is the default system prompt for pytest generation
const PyTestSystemPrompt = "You are an expert Python test automation engineer with deep knowledge of pytest.\n" +
	"Your task is to generate production-ready pytest code from test case specifications.\n\n" +
	"Follow these best practices:\n" +
	"1. Use descriptive test function names following `test_<feature>_<scenario>` pattern\n" +
	"2. Use pytest fixtures for setup/teardown and shared resources\n" +
	"3. Use pytest.mark decorators for categorization (smoke, regression, etc.)\n" +
	"4. Use pytest.param for parametrized tests when applicable\n" +
	"5. Include clear docstrings explaining what each test validates\n" +
	"6. Use appropriate assertions with helpful error messages\n" +
	"7. Follow AAA pattern: Arrange, Act, Assert\n" +
	"8. Handle expected exceptions with pytest.raises\n" +
	"9. Use conftest.py for shared fixtures when appropriate\n\n" +
	"Output clean, runnable Python code that follows PEP 8 style guidelines."

const fixtureInstruction = `
## Fixtures
Generate appropriate pytest fixtures for:
- Test data setup
- Mock objects (if external services are implied)
- Resource cleanup
Place fixtures at the top of the test file.`

const conftestInstruction = `
## Conftest
Also generate a conftest.py file with shared fixtures that could be reused across test modules.
Return it as a separate code block labeled "conftest.py".`

// PyTestGenerationPrompt builds the user prompt that turns test cases into a
// pytest module named moduleName.
func PyTestGenerationPrompt(cases []model.TestCaseInput, moduleName string, includeFixtures, includeConftest bool) string {
	var tc strings.Builder
	for i, c := range cases {
		writeTestCase(&tc, i+1, c)
	}

	fixtures := ""
	if includeFixtures {
		fixtures = fixtureInstruction
	}

	conftest := ""
	if includeConftest {
		conftest = conftestInstruction
	}

	return fmt.Sprintf("Generate pytest code for the following test cases.\n\n"+
		"# Test Cases to Implement\n"+
		"%s\n\n"+
		"%s\n\n"+
		"%s\n\n"+
		"## Output Requirements\n\n"+
		"1. Generate a complete pytest file named `%s.py`\n"+
		"2. Include all necessary imports (pytest, unittest.mock if needed, etc.)\n"+
		"3. Add pytest markers: @pytest.mark.parametrize where applicable\n"+
		"4. Use descriptive assertion messages\n"+
		"5. Add type hints to function signatures\n"+
		"6. Include module-level docstring explaining test coverage\n\n"+
		"## Output Format\n\n"+
		"Return ONLY the Python code. Do not include markdown code fences or explanations.\n"+
		"The code should be immediately runnable with `pytest %s.py`.\n",
		tc.String(), fixtures, conftest, moduleName, moduleName)
}

func writeTestCase(b *strings.Builder, n int, c model.TestCaseInput) {
	id := orDefault(c.ID, fmt.Sprintf("TC%03d", n))
	preconditions := orDefault(strings.Join(c.Preconditions, ", "), "None")

	steps := "  None"
	if len(c.Steps) > 0 {
		lines := make([]string, len(c.Steps))
		for j, step := range c.Steps {
			lines[j] = fmt.Sprintf("  %d. %s", j+1, step)
		}
		steps = strings.Join(lines, "\n")
	}

	fmt.Fprintf(b, "\n### Test Case %d: %s\n", n, id)
	fmt.Fprintf(b, "- **Title:** %s\n", orDefault(c.Title, "Untitled"))
	fmt.Fprintf(b, "- **Description:** %s\n", orDefault(c.Description, "No description"))
	fmt.Fprintf(b, "- **Preconditions:** %s\n", preconditions)
	fmt.Fprintf(b, "- **Steps:**\n%s\n", steps)
	fmt.Fprintf(b, "- **Expected Result:** %s\n", orDefault(c.ExpectedResult, "Not specified"))
	fmt.Fprintf(b, "- **Priority:** %s\n", orDefault(c.Priority, "medium"))
	fmt.Fprintf(b, "- **Type:** %s\n", orDefault(c.TestType, "functional"))
}

// PyTestFromRequirementPrompt builds a prompt that asks for test code directly
// from a requirement. An empty framework means pytest.
func PyTestFromRequirementPrompt(requirement, context string, numTests int, framework string) string {
	if framework == "" {
		framework = "pytest"
	}

	contextSection := ""
	if context != "" {
		contextSection = "\n## Context\n" + context
	}

	return fmt.Sprintf("Generate %s test code for the following requirement.\n\n"+
		"## Requirement\n"+
		"%s\n"+
		"%s\n\n"+
		"## Instructions\n\n"+
		"1. Analyze the requirement and identify ~%d test scenarios\n"+
		"2. Include positive tests, negative tests, and edge cases\n"+
		"3. Generate complete, runnable %s code\n"+
		"4. Use fixtures for setup/teardown\n"+
		"5. Add appropriate markers (@pytest.mark.smoke, @pytest.mark.regression, etc.)\n"+
		"6. Include clear docstrings and assertion messages\n\n"+
		"## Output Format\n\n"+
		"Return ONLY the Python code. Do not include markdown code fences.\n"+
		"The code should be immediately runnable with `pytest`.\n",
		framework, requirement, contextSection, numTests, framework)
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
