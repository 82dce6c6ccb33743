package model

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Pytest defaults
const (
	DefaultModuleName = "test_generated"
	DefaultOutputPath = "./tests"
)

var moduleNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// ValidModuleName reports whether name can be used as a Python test module name
func ValidModuleName(name string) bool {
	return moduleNamePattern.MatchString(name)
}

// TestCaseInput is a test case to turn into pytest code. Priority and type are
// free-form here so callers can pass values such as "critical" or "integration".
type TestCaseInput struct {
	ID             string   `json:"id" jsonschema:"default=TC001"`
	Title          string   `json:"title" jsonschema:"required"`
	Description    string   `json:"description"`
	Preconditions  []string `json:"preconditions"`
	Steps          []string `json:"steps"`
	ExpectedResult string   `json:"expected_result" jsonschema:"required"`
	Priority       string   `json:"priority" jsonschema:"default=medium"`
	TestType       string   `json:"test_type" jsonschema:"default=functional"`
}

// UnmarshalJSON applies defaults for omitted fields
func (tc *TestCaseInput) UnmarshalJSON(data []byte) error {
	type alias TestCaseInput
	a := alias{
		ID:            "TC001",
		Preconditions: []string{},
		Steps:         []string{},
		Priority:      string(PriorityMedium),
		TestType:      string(TestTypeFunctional),
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	if a.Preconditions == nil {
		a.Preconditions = []string{}
	}
	if a.Steps == nil {
		a.Steps = []string{}
	}
	*tc = TestCaseInput(a)
	return nil
}

// FromTestCase converts a generated test case into pytest input
func FromTestCase(tc TestCase) TestCaseInput {
	return TestCaseInput{
		ID:             tc.ID,
		Title:          tc.Title,
		Description:    tc.Description,
		Preconditions:  tc.Preconditions,
		Steps:          tc.Steps,
		ExpectedResult: tc.ExpectedResult,
		Priority:       string(tc.Priority),
		TestType:       string(tc.TestType),
	}
}

// PyTestRequest asks for pytest code generated from test cases
type PyTestRequest struct {
	TestCases       []TestCaseInput `json:"test_cases" jsonschema:"required,minItems=1"`
	ModuleName      string          `json:"module_name" jsonschema:"pattern=^[a-z][a-z0-9_]*$,default=test_generated"`
	IncludeFixtures bool            `json:"include_fixtures" jsonschema:"default=true"`
	IncludeConftest bool            `json:"include_conftest" jsonschema:"default=false"`
	OutputPath      string          `json:"output_path" jsonschema:"default=./tests" jsonschema_description:"Directory to save the generated file. Empty skips saving."`
	SystemPrompt    string          `json:"system_prompt,omitempty"`
}

// UnmarshalJSON applies defaults for omitted fields
func (r *PyTestRequest) UnmarshalJSON(data []byte) error {
	type alias PyTestRequest
	a := alias(DefaultPyTestRequest())
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = PyTestRequest(a)
	return nil
}

// DefaultPyTestRequest returns a request with every optional field defaulted
func DefaultPyTestRequest() PyTestRequest {
	return PyTestRequest{
		ModuleName:      DefaultModuleName,
		IncludeFixtures: true,
		OutputPath:      DefaultOutputPath,
	}
}

// Validate checks field constraints
func (r PyTestRequest) Validate() error {
	var errs ValidationErrors
	if len(r.TestCases) == 0 {
		errs.Add("test_cases", "at least one test case is required")
	}
	for i, tc := range r.TestCases {
		if tc.Title == "" {
			errs.Add(fmt.Sprintf("test_cases[%d].title", i), "field required")
		}
		if tc.ExpectedResult == "" {
			errs.Add(fmt.Sprintf("test_cases[%d].expected_result", i), "field required")
		}
	}
	validateModuleName(&errs, r.ModuleName)
	return errs.Err()
}

// PyTestFromRequirementRequest asks for pytest code straight from a requirement
type PyTestFromRequirementRequest struct {
	Requirement  string `json:"requirement" jsonschema:"required,minLength=10"`
	Context      string `json:"context"`
	NumTests     int    `json:"num_tests" jsonschema:"minimum=1,maximum=15,default=5"`
	ModuleName   string `json:"module_name" jsonschema:"pattern=^[a-z][a-z0-9_]*$,default=test_generated"`
	OutputPath   string `json:"output_path" jsonschema:"default=./tests"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

// UnmarshalJSON applies defaults for omitted fields
func (r *PyTestFromRequirementRequest) UnmarshalJSON(data []byte) error {
	type alias PyTestFromRequirementRequest
	a := alias(DefaultPyTestFromRequirementRequest())
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = PyTestFromRequirementRequest(a)
	return nil
}

// DefaultPyTestFromRequirementRequest returns a request with every optional field defaulted
func DefaultPyTestFromRequirementRequest() PyTestFromRequirementRequest {
	return PyTestFromRequirementRequest{
		NumTests:   DefaultNumTests,
		ModuleName: DefaultModuleName,
		OutputPath: DefaultOutputPath,
	}
}

// Validate checks field constraints
func (r PyTestFromRequirementRequest) Validate() error {
	var errs ValidationErrors
	validateRequirement(&errs, r.Requirement)
	if r.NumTests < 1 || r.NumTests > MaxNumTests {
		errs.Add("num_tests", fmt.Sprintf("must be between 1 and %d", MaxNumTests))
	}
	validateModuleName(&errs, r.ModuleName)
	return errs.Err()
}

// PyTestResponse carries generated pytest code. SyntaxValid and TestFunctions
// come from parsing the code and are omitted when analysis was not run.
type PyTestResponse struct {
	ModuleName    string   `json:"module_name"`
	Code          string   `json:"code"`
	ConftestCode  *string  `json:"conftest_code"`
	TestCount     int      `json:"test_count"`
	LLMProvider   string   `json:"llm_provider"`
	SavedTo       *string  `json:"saved_to"`
	SyntaxValid   *bool    `json:"syntax_valid,omitempty"`
	TestFunctions []string `json:"test_functions,omitempty"`
}

func validateModuleName(errs *ValidationErrors, name string) {
	if !ValidModuleName(name) {
		errs.Add("module_name", "must match ^[a-z][a-z0-9_]*$")
	}
}
