package parser

// ParsedFile represents a parsed Python source file
type ParsedFile struct {
	Path      string
	Functions []Function
	Classes   []Class
	Imports   []Import
	HasErrors bool
}

// Function represents a parsed function
type Function struct {
	ID         string // Unique identifier: file:line:name
	Name       string
	StartLine  int
	EndLine    int
	Parameters []Parameter
	Decorators []string // Decorator expressions without the leading @
	Exported   bool     // No leading underscore
	Async      bool
	Class      string // Parent class (if method)
}

// IsTest reports whether pytest would collect the function
func (f Function) IsTest() bool {
	return len(f.Name) >= 5 && f.Name[:5] == "test_"
}

// Class represents a parsed class
type Class struct {
	ID        string
	Name      string
	StartLine int
	EndLine   int
	Methods   []Function
	Exported  bool
}

// Parameter represents a function parameter
type Parameter struct {
	Name    string
	Type    string
	Default string
}

// Import represents an import statement
type Import struct {
	Module string
	Names  []string // Specific imports
	Alias  string   // Import alias
}

// Analysis summarizes generated pytest code
type Analysis struct {
	Valid         bool     `json:"valid"`
	ErrorLine     int      `json:"error_line,omitempty"` // First line containing a syntax error
	TestFunctions []string `json:"test_functions"`
	Fixtures      []string `json:"fixtures"`
	Markers       []string `json:"markers"`
	Imports       []string `json:"imports"`
}
