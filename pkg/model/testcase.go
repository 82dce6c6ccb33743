// Package model defines the request and response types exchanged with API
// and CLI clients: test-case generation, pytest generation, and their
// validation rules.
package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// Priority is a test case priority level
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Valid reports whether p is a known priority
func (p Priority) Valid() bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// TestType classifies a test case
type TestType string

const (
	TestTypeFunctional  TestType = "functional"
	TestTypeEdgeCase    TestType = "edge_case"
	TestTypeNegative    TestType = "negative"
	TestTypeSecurity    TestType = "security"
	TestTypePerformance TestType = "performance"
)

// Valid reports whether t is a known test type
func (t TestType) Valid() bool {
	switch t {
	case TestTypeFunctional, TestTypeEdgeCase, TestTypeNegative, TestTypeSecurity, TestTypePerformance:
		return true
	}
	return false
}

// OutputFormat selects structured or human-readable test cases
type OutputFormat string

const (
	FormatJSON     OutputFormat = "json"
	FormatMarkdown OutputFormat = "markdown"
)

// Request limits
const (
	MinRequirementLength = 10
	MaxNumCases          = 20
	MaxNumTests          = 15
	DefaultNumCases      = 5
	DefaultNumTests      = 5
	DefaultPersona       = "qa_engineer"
)

// TestCase is a single generated test case
type TestCase struct {
	ID             string   `json:"id" jsonschema:"required" jsonschema_description:"Unique test case ID (e.g. TC001)"`
	Title          string   `json:"title" jsonschema:"required"`
	Description    string   `json:"description" jsonschema:"required"`
	Preconditions  []string `json:"preconditions"`
	Steps          []string `json:"steps" jsonschema:"required"`
	ExpectedResult string   `json:"expected_result" jsonschema:"required"`
	Priority       Priority `json:"priority" jsonschema:"enum=high,enum=medium,enum=low,default=medium"`
	TestType       TestType `json:"test_type" jsonschema:"enum=functional,enum=edge_case,enum=negative,enum=security,enum=performance,default=functional"`
}

// Validate checks the enum fields
func (tc TestCase) Validate() error {
	var errs ValidationErrors
	if !tc.Priority.Valid() {
		errs.Add("priority", fmt.Sprintf("invalid value %q", tc.Priority))
	}
	if !tc.TestType.Valid() {
		errs.Add("test_type", fmt.Sprintf("invalid value %q", tc.TestType))
	}
	return errs.Err()
}

// TestCaseRequest asks for test cases generated from a requirement
type TestCaseRequest struct {
	Requirement      string       `json:"requirement" jsonschema:"required,minLength=10" jsonschema_description:"The requirement or user story to generate test cases for"`
	Context          string       `json:"context" jsonschema_description:"Additional context about the system, tech stack, or constraints"`
	NumCases         int          `json:"num_cases" jsonschema:"minimum=1,maximum=20,default=5"`
	IncludeEdgeCases bool         `json:"include_edge_cases" jsonschema:"default=true"`
	OutputFormat     OutputFormat `json:"output_format" jsonschema:"enum=json,enum=markdown,default=json"`
	Persona          string       `json:"persona,omitempty" jsonschema:"default=qa_engineer"`
	SystemPrompt     string       `json:"system_prompt,omitempty" jsonschema_description:"Override the persona system prompt"`
}

// UnmarshalJSON applies defaults for omitted fields
func (r *TestCaseRequest) UnmarshalJSON(data []byte) error {
	type alias TestCaseRequest
	a := alias(DefaultTestCaseRequest())
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*r = TestCaseRequest(a)
	return nil
}

// DefaultTestCaseRequest returns a request with every optional field defaulted
func DefaultTestCaseRequest() TestCaseRequest {
	return TestCaseRequest{
		NumCases:         DefaultNumCases,
		IncludeEdgeCases: true,
		OutputFormat:     FormatJSON,
		Persona:          DefaultPersona,
	}
}

// Validate checks field constraints
func (r TestCaseRequest) Validate() error {
	var errs ValidationErrors
	validateRequirement(&errs, r.Requirement)
	if r.NumCases < 1 || r.NumCases > MaxNumCases {
		errs.Add("num_cases", fmt.Sprintf("must be between 1 and %d", MaxNumCases))
	}
	if r.OutputFormat != FormatJSON && r.OutputFormat != FormatMarkdown {
		errs.Add("output_format", "must be 'json' or 'markdown'")
	}
	return errs.Err()
}

// TestCaseResponse carries structured test cases
type TestCaseResponse struct {
	Requirement string     `json:"requirement"`
	TestCases   []TestCase `json:"test_cases"`
	TotalCount  int        `json:"total_count"`
	LLMProvider string     `json:"llm_provider"`
}

// MarkdownResponse carries test cases as raw Markdown
type MarkdownResponse struct {
	Requirement string `json:"requirement"`
	Markdown    string `json:"markdown"`
	TotalCount  int    `json:"total_count"`
	LLMProvider string `json:"llm_provider"`
}

func validateRequirement(errs *ValidationErrors, requirement string) {
	if utf8.RuneCountInString(requirement) < MinRequirementLength {
		errs.Add("requirement", fmt.Sprintf("must be at least %d characters", MinRequirementLength))
	}
}

// ValidationError describes one rejected field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors collects field errors for a request
type ValidationErrors []ValidationError

// Add appends a field error
func (e *ValidationErrors) Add(field, message string) {
	*e = append(*e, ValidationError{Field: field, Message: message})
}

// Err returns nil when no errors were collected
func (e ValidationErrors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e ValidationErrors) Error() string {
	parts := make([]string, len(e))
	for i, fe := range e {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return strings.Join(parts, "; ")
}
