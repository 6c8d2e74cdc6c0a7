// Package scanner extracts "use prompt:" directives from JavaScript and
// TypeScript sources. Both pipeline passes use it, so directive identity is
// derived here and nowhere else.
package scanner

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
	tsx "github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"

	"github.com/promptc/promptc/internal/logging"
	"github.com/promptc/promptc/pkg/types"
)

// DirectivePrefix marks a prologue string as a generation directive.
// Case-sensitive, exact.
const DirectivePrefix = "use prompt:"

// Scanner parses source files and collects directives.
type Scanner struct {
	jsParser  *sitter.Parser
	tsParser  *sitter.Parser
	tsxParser *sitter.Parser
}

// New creates a Scanner with one parser per grammar.
func New() *Scanner {
	jsParser := sitter.NewParser()
	jsParser.SetLanguage(javascript.GetLanguage())
	tsParser := sitter.NewParser()
	tsParser.SetLanguage(typescript.GetLanguage())
	tsxParser := sitter.NewParser()
	tsxParser.SetLanguage(tsx.GetLanguage())
	return &Scanner{
		jsParser:  jsParser,
		tsParser:  tsParser,
		tsxParser: tsxParser,
	}
}

// parserFor picks the grammar by file extension. Unknown extensions fall back
// to the TSX grammar, which accepts the widest surface.
func (s *Scanner) parserFor(path string) *sitter.Parser {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".js", ".jsx", ".mjs", ".cjs":
		return s.jsParser
	case ".ts":
		return s.tsParser
	default:
		return s.tsxParser
	}
}

// Parse produces a syntax tree for src. The caller owns the tree and must
// Close it.
func (s *Scanner) Parse(ctx context.Context, path string, src []byte) (*sitter.Tree, error) {
	tree, err := s.parserFor(path).ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if tree == nil {
		return nil, fmt.Errorf("parse %s: no tree produced", path)
	}
	return tree, nil
}

// Match couples a directive with the syntax nodes it came from. The node
// handles are only valid while the tree is alive; the Directive itself is
// self-contained.
type Match struct {
	Directive types.Directive
	Fn        *sitter.Node
	Body      *sitter.Node
}

// ScanMatches walks the whole tree and returns every directive with its
// function and body nodes, in traversal order. Nested directive functions are
// collected independently; nothing is pruned or deduplicated. A function
// yields at most one directive.
func ScanMatches(src []byte, tree *sitter.Tree) []Match {
	var matches []Match

	// Explicit stack, children pushed in reverse so functions surface in
	// stable source order run after run.
	stack := []*sitter.Node{tree.RootNode()}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if isFunctionNode(node.Type()) {
			if d, body, ok := directiveFromFunction(src, node); ok {
				matches = append(matches, Match{Directive: d, Fn: node, Body: body})
			}
		}

		for i := int(node.NamedChildCount()) - 1; i >= 0; i-- {
			stack = append(stack, node.NamedChild(i))
		}
	}
	return matches
}

// Scan returns the directives alone. Both passes derive directive identity
// through this same walk.
func Scan(src []byte, tree *sitter.Tree) []types.Directive {
	matches := ScanMatches(src, tree)
	directives := make([]types.Directive, 0, len(matches))
	for _, m := range matches {
		directives = append(directives, m.Directive)
	}
	return directives
}

// ScanFile is the single entry point both passes use: parse then scan. A
// parse failure means zero directives for the whole file, never a partial
// result.
func (s *Scanner) ScanFile(ctx context.Context, path string, src []byte) ([]types.Directive, error) {
	tree, err := s.Parse(ctx, path, src)
	if err != nil {
		return nil, err
	}
	defer tree.Close()
	return Scan(src, tree), nil
}

// isFunctionNode reports whether a node kind is a directive carrier: function
// declarations and function expressions, including generator forms. The
// grammar renamed "function" to "function_expression" at some point, so both
// spellings are accepted.
func isFunctionNode(kind string) bool {
	switch kind {
	case "function_declaration", "function", "function_expression",
		"generator_function_declaration", "generator_function":
		return true
	}
	return false
}

// directiveFromFunction inspects the function's prologue (the leading run of
// expression statements that are plain string literals) and builds a
// directive from the first string carrying the prefix.
func directiveFromFunction(src []byte, fn *sitter.Node) (types.Directive, *sitter.Node, bool) {
	body := fn.ChildByFieldName("body")
	if body == nil || body.Type() != "statement_block" {
		return types.Directive{}, nil, false
	}

	for i := 0; i < int(body.NamedChildCount()); i++ {
		stmt := body.NamedChild(i)
		lit, ok := prologueString(src, stmt)
		if !ok {
			break // first non-string statement ends the prologue
		}
		if !strings.HasPrefix(lit, DirectivePrefix) {
			continue
		}
		prompt := strings.TrimSpace(lit[len(DirectivePrefix):])
		if prompt == "" {
			logging.Named("scanner").Warnw("directive with empty prompt ignored",
				"offset", fn.StartByte())
			return types.Directive{}, nil, false
		}

		span := types.Span{Start: fn.StartByte(), End: body.StartByte()}
		stub := string(src[span.Start:span.End]) + "{}"
		return types.Directive{
			Span:          span,
			Prompt:        prompt,
			SignatureStub: stub,
			PromptHash:    HashKey(stub, prompt),
		}, body, true
	}
	return types.Directive{}, nil, false
}

// prologueString returns the literal value when stmt is an expression
// statement wrapping a plain string literal. Template strings do not count.
func prologueString(src []byte, stmt *sitter.Node) (string, bool) {
	if stmt.Type() != "expression_statement" {
		return "", false
	}
	if stmt.NamedChildCount() != 1 {
		return "", false
	}
	expr := stmt.NamedChild(0)
	if expr.Type() != "string" {
		return "", false
	}
	return stringValue(src, expr), true
}

// stringValue yields the cooked contents of a string node: the concatenated
// string_fragment children, escape sequences left as written.
func stringValue(src []byte, str *sitter.Node) string {
	var b strings.Builder
	for i := 0; i < int(str.NamedChildCount()); i++ {
		child := str.NamedChild(i)
		switch child.Type() {
		case "string_fragment", "escape_sequence":
			b.WriteString(child.Content(src))
		}
	}
	return b.String()
}

// HashKey derives the offset-independent cache key for a directive.
func HashKey(signatureStub, prompt string) string {
	h := sha256.New()
	h.Write([]byte(signatureStub))
	h.Write([]byte{0})
	h.Write([]byte(prompt))
	return hex.EncodeToString(h.Sum(nil))
}
