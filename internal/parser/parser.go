package parser

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// Parser parses Python source using tree-sitter. It is safe for concurrent use.
type Parser struct {
	mu       sync.Mutex
	pyParser *sitter.Parser
}

// NewParser creates a new Python parser
func NewParser() *Parser {
	pyParser := sitter.NewParser()
	pyParser.SetLanguage(python.GetLanguage())

	return &Parser{
		pyParser: pyParser,
	}
}

// IsPythonFile reports whether path has a Python extension
func IsPythonFile(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".py"
}

// ParseFile parses a single file
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*ParsedFile, error) {
	if !IsPythonFile(filePath) {
		return nil, fmt.Errorf("unsupported language for file: %s", filePath)
	}

	content, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	return p.ParseContent(ctx, filePath, string(content))
}

// ParseContent parses Python source content
func (p *Parser) ParseContent(ctx context.Context, filePath, content string) (*ParsedFile, error) {
	source := []byte(content)

	tree, err := p.parse(ctx, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	parsed := &ParsedFile{
		Path:      filePath,
		Functions: make([]Function, 0),
		Classes:   make([]Class, 0),
		Imports:   make([]Import, 0),
		HasErrors: root.HasError(),
	}

	p.extractPython(root, source, parsed)

	return parsed, nil
}

// Analyze parses generated pytest code and reports its syntax validity, test
// functions, fixtures, markers and imported modules.
func (p *Parser) Analyze(ctx context.Context, code string) (*Analysis, error) {
	source := []byte(code)

	tree, err := p.parse(ctx, source)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	analysis := &Analysis{
		Valid:         !root.HasError(),
		TestFunctions: make([]string, 0),
		Fixtures:      make([]string, 0),
		Markers:       make([]string, 0),
		Imports:       make([]string, 0),
	}
	if !analysis.Valid {
		analysis.ErrorLine = firstErrorLine(root)
	}

	parsed := &ParsedFile{}
	p.extractPython(root, source, parsed)

	markers := make(map[string]bool)
	for _, fn := range parsed.Functions {
		if fn.IsTest() {
			name := fn.Name
			if fn.Class != "" {
				name = fn.Class + "::" + fn.Name
			}
			analysis.TestFunctions = append(analysis.TestFunctions, name)
		}
		for _, d := range fn.Decorators {
			if isFixtureDecorator(d) {
				analysis.Fixtures = append(analysis.Fixtures, fn.Name)
			}
			if m := markerName(d); m != "" {
				markers[m] = true
			}
		}
	}
	for m := range markers {
		analysis.Markers = append(analysis.Markers, m)
	}
	sort.Strings(analysis.Markers)

	for _, imp := range parsed.Imports {
		analysis.Imports = append(analysis.Imports, imp.Module)
	}

	return analysis, nil
}

func (p *Parser) parse(ctx context.Context, source []byte) (*sitter.Tree, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tree, err := p.pyParser.ParseCtx(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("failed to parse: %w", err)
	}
	return tree, nil
}

// extractPython extracts functions, classes and imports from Python source
func (p *Parser) extractPython(node *sitter.Node, source []byte, parsed *ParsedFile) {
	cursor := sitter.NewTreeCursor(node)
	defer cursor.Close()

	p.walkTree(cursor, source, func(n *sitter.Node) {
		switch n.Type() {
		case "function_definition":
			fn := p.parsePythonFunction(n, source)
			if fn != nil {
				fn.Class = enclosingClass(n, source)
				fn.ID = fmt.Sprintf("%s:%d:%s", parsed.Path, fn.StartLine, fn.Name)
				parsed.Functions = append(parsed.Functions, *fn)
			}
		case "class_definition":
			cls := p.parsePythonClass(n, source, parsed.Path)
			if cls != nil {
				parsed.Classes = append(parsed.Classes, *cls)
			}
		case "import_statement":
			parsed.Imports = append(parsed.Imports, parseImport(n, source)...)
		case "import_from_statement":
			if imp := parseFromImport(n, source); imp != nil {
				parsed.Imports = append(parsed.Imports, *imp)
			}
		}
	})
}

func (p *Parser) parsePythonFunction(node *sitter.Node, source []byte) *Function {
	fn := &Function{
		StartLine:  int(node.StartPoint().Row) + 1,
		EndLine:    int(node.EndPoint().Row) + 1,
		Parameters: make([]Parameter, 0),
	}

	// Get function name
	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	fn.Name = nameNode.Content(source)
	fn.Exported = !strings.HasPrefix(fn.Name, "_")

	// Get parameters
	paramsNode := node.ChildByFieldName("parameters")
	if paramsNode != nil {
		fn.Parameters = p.parsePythonParameters(paramsNode, source)
	}

	// Check if async
	for i := 0; i < int(node.ChildCount()); i++ {
		if node.Child(i).Type() == "async" {
			fn.Async = true
			break
		}
	}

	if parent := node.Parent(); parent != nil && parent.Type() == "decorated_definition" {
		for i := 0; i < int(parent.ChildCount()); i++ {
			child := parent.Child(i)
			if child.Type() == "decorator" {
				d := strings.TrimSpace(strings.TrimPrefix(child.Content(source), "@"))
				fn.Decorators = append(fn.Decorators, d)
			}
		}
	}

	return fn
}

func (p *Parser) parsePythonParameters(node *sitter.Node, source []byte) []Parameter {
	params := make([]Parameter, 0)

	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		var param Parameter

		switch child.Type() {
		case "identifier":
			param.Name = child.Content(source)
		case "typed_parameter":
			for j := 0; j < int(child.ChildCount()); j++ {
				subChild := child.Child(j)
				if subChild.Type() == "identifier" && param.Name == "" {
					param.Name = subChild.Content(source)
				} else if subChild.Type() == "type" {
					param.Type = subChild.Content(source)
				}
			}
		case "default_parameter", "typed_default_parameter":
			if n := child.ChildByFieldName("name"); n != nil {
				param.Name = n.Content(source)
			}
			if t := child.ChildByFieldName("type"); t != nil {
				param.Type = t.Content(source)
			}
			if v := child.ChildByFieldName("value"); v != nil {
				param.Default = v.Content(source)
			}
		default:
			continue
		}

		if param.Name != "" && param.Name != "self" && param.Name != "cls" {
			params = append(params, param)
		}
	}

	return params
}

func (p *Parser) parsePythonClass(node *sitter.Node, source []byte, filePath string) *Class {
	cls := &Class{
		StartLine: int(node.StartPoint().Row) + 1,
		EndLine:   int(node.EndPoint().Row) + 1,
		Methods:   make([]Function, 0),
	}

	nameNode := node.ChildByFieldName("name")
	if nameNode == nil {
		return nil
	}
	cls.Name = nameNode.Content(source)
	cls.Exported = !strings.HasPrefix(cls.Name, "_")
	cls.ID = fmt.Sprintf("%s:%d:%s", filePath, cls.StartLine, cls.Name)

	// Extract methods from class body, including decorated ones
	bodyNode := node.ChildByFieldName("body")
	if bodyNode != nil {
		for i := 0; i < int(bodyNode.ChildCount()); i++ {
			child := bodyNode.Child(i)
			if child.Type() == "decorated_definition" {
				child = child.ChildByFieldName("definition")
			}
			if child == nil || child.Type() != "function_definition" {
				continue
			}
			fn := p.parsePythonFunction(child, source)
			if fn != nil {
				fn.Class = cls.Name
				fn.ID = fmt.Sprintf("%s:%d:%s.%s", filePath, fn.StartLine, cls.Name, fn.Name)
				cls.Methods = append(cls.Methods, *fn)
			}
		}
	}

	return cls
}

func parseImport(node *sitter.Node, source []byte) []Import {
	var imports []Import
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		switch child.Type() {
		case "dotted_name":
			imports = append(imports, Import{Module: child.Content(source)})
		case "aliased_import":
			imp := Import{}
			if n := child.ChildByFieldName("name"); n != nil {
				imp.Module = n.Content(source)
			}
			if a := child.ChildByFieldName("alias"); a != nil {
				imp.Alias = a.Content(source)
			}
			imports = append(imports, imp)
		}
	}
	return imports
}

func parseFromImport(node *sitter.Node, source []byte) *Import {
	moduleNode := node.ChildByFieldName("module_name")
	if moduleNode == nil {
		return nil
	}

	imp := &Import{Module: moduleNode.Content(source)}
	for i := 0; i < int(node.ChildCount()); i++ {
		child := node.Child(i)
		if child.StartByte() == moduleNode.StartByte() {
			continue
		}
		switch child.Type() {
		case "dotted_name":
			imp.Names = append(imp.Names, child.Content(source))
		case "aliased_import":
			if n := child.ChildByFieldName("name"); n != nil {
				imp.Names = append(imp.Names, n.Content(source))
			}
		case "wildcard_import":
			imp.Names = append(imp.Names, "*")
		}
	}
	return imp
}

// enclosingClass returns the name of the nearest class containing node
func enclosingClass(node *sitter.Node, source []byte) string {
	for n := node.Parent(); n != nil; n = n.Parent() {
		switch n.Type() {
		case "class_definition":
			if name := n.ChildByFieldName("name"); name != nil {
				return name.Content(source)
			}
			return ""
		case "function_definition":
			// nested function, not a method
			return ""
		}
	}
	return ""
}

func firstErrorLine(root *sitter.Node) int {
	cursor := sitter.NewTreeCursor(root)
	defer cursor.Close()

	line := 0
	walk(cursor, func(n *sitter.Node) bool {
		if n.Type() == "ERROR" || n.IsMissing() {
			line = int(n.StartPoint().Row) + 1
			return false
		}
		return true
	})
	return line
}

func isFixtureDecorator(d string) bool {
	name := d
	if i := strings.Index(name, "("); i >= 0 {
		name = name[:i]
	}
	return name == "pytest.fixture" || name == "fixture"
}

func markerName(d string) string {
	const prefix = "pytest.mark."
	if !strings.HasPrefix(d, prefix) {
		return ""
	}
	name := d[len(prefix):]
	if i := strings.IndexAny(name, "(."); i >= 0 {
		name = name[:i]
	}
	return name
}

// walkTree walks the tree and calls fn for each node
func (p *Parser) walkTree(cursor *sitter.TreeCursor, source []byte, fn func(*sitter.Node)) {
	walk(cursor, func(n *sitter.Node) bool {
		fn(n)
		return true
	})
}

// walk visits nodes depth-first until visit returns false
func walk(cursor *sitter.TreeCursor, visit func(*sitter.Node) bool) {
	for {
		if !visit(cursor.CurrentNode()) {
			return
		}

		if cursor.GoToFirstChild() {
			continue
		}

		for {
			if cursor.GoToNextSibling() {
				break
			}
			if !cursor.GoToParent() {
				return
			}
		}
	}
}
