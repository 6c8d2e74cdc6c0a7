package injector

import (
	"sort"
	"unicode"
	"unicode/utf8"

	sitter "github.com/smacker/go-tree-sitter"
)

// jsGlobals are names the runtime provides; they never resolve to imports.
var jsGlobals = map[string]bool{
	"Array": true, "ArrayBuffer": true, "BigInt": true, "Boolean": true,
	"DataView": true, "Date": true, "Error": true, "EvalError": true,
	"Float32Array": true, "Float64Array": true, "Function": true,
	"Infinity": true, "Int8Array": true, "Int16Array": true, "Int32Array": true,
	"JSON": true, "Map": true, "Math": true, "NaN": true, "Number": true,
	"Object": true, "Promise": true, "Proxy": true, "RangeError": true,
	"ReferenceError": true, "Reflect": true, "RegExp": true, "Set": true,
	"String": true, "Symbol": true, "SyntaxError": true, "TypeError": true,
	"URIError": true, "Uint8Array": true, "Uint16Array": true,
	"Uint32Array": true, "WeakMap": true, "WeakSet": true,
	"console": true, "decodeURI": true, "decodeURIComponent": true,
	"document": true, "encodeURI": true, "encodeURIComponent": true,
	"eval": true, "fetch": true, "globalThis": true, "isFinite": true,
	"isNaN": true, "localStorage": true, "location": true, "navigator": true,
	"parseFloat": true, "parseInt": true, "queueMicrotask": true,
	"requestAnimationFrame": true, "sessionStorage": true,
	"setInterval": true, "setTimeout": true, "clearInterval": true,
	"clearTimeout": true, "structuredClone": true, "undefined": true,
	"window": true, "alert": true, "arguments": true, "module": true,
	"exports": true, "require": true, "process": true, "URL": true,
	"URLSearchParams": true, "AbortController": true, "Event": true,
	"CustomEvent": true, "FormData": true, "Headers": true, "Request": true,
	"Response": true, "Blob": true, "File": true, "crypto": true,
}

// analysis is the identifier-usage summary of one generated body.
type analysis struct {
	// free names used but not declared inside the generated code and not
	// runtime globals, sorted.
	free []string
	// uses maps each free name to the byte ranges of its occurrences within
	// the analyzed source, ascending.
	uses map[string][][2]uint32
	// hasJSX reports whether any JSX construct appears.
	hasJSX bool
}

// analyzeGenerated walks a parsed wrapper function and classifies every
// identifier as declared-within or free. The walk is conservative: any
// identifier appearing in a binding position anywhere in the generated code
// shadows all uses of that name.
func analyzeGenerated(src []byte, root *sitter.Node) *analysis {
	declared := map[string]bool{}
	collectDeclared(src, root, declared)

	a := &analysis{uses: map[string][][2]uint32{}}
	collectUses(src, root, declared, a)

	a.free = make([]string, 0, len(a.uses))
	for name := range a.uses {
		a.free = append(a.free, name)
	}
	sort.Strings(a.free)
	return a
}

// collectDeclared gathers every name bound inside the generated code:
// function/class/variable names, parameters (including destructuring
// patterns), and catch clause bindings.
func collectDeclared(src []byte, node *sitter.Node, declared map[string]bool) {
	switch node.Type() {
	case "function_declaration", "generator_function_declaration",
		"class_declaration", "function", "function_expression",
		"generator_function", "class":
		if name := node.ChildByFieldName("name"); name != nil {
			declared[name.Content(src)] = true
		}
	case "variable_declarator":
		if name := node.ChildByFieldName("name"); name != nil {
			collectPatternIdentifiers(src, name, declared)
		}
	case "formal_parameters":
		collectPatternIdentifiers(src, node, declared)
	case "arrow_function":
		if param := node.ChildByFieldName("parameter"); param != nil {
			collectPatternIdentifiers(src, param, declared)
		}
	case "catch_clause":
		if param := node.ChildByFieldName("parameter"); param != nil {
			collectPatternIdentifiers(src, param, declared)
		}
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectDeclared(src, node.NamedChild(i), declared)
	}
}

// collectPatternIdentifiers marks every identifier inside a binding pattern.
func collectPatternIdentifiers(src []byte, node *sitter.Node, declared map[string]bool) {
	switch node.Type() {
	case "identifier", "shorthand_property_identifier_pattern":
		declared[node.Content(src)] = true
		return
	}
	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectPatternIdentifiers(src, node.NamedChild(i), declared)
	}
}

// collectUses records byte ranges for every free identifier occurrence.
// Property names never count; lowercase JSX tags are intrinsic elements.
func collectUses(src []byte, node *sitter.Node, declared map[string]bool, a *analysis) {
	kind := node.Type()
	if len(kind) >= 3 && kind[:3] == "jsx" {
		a.hasJSX = true
	}

	switch kind {
	case "identifier", "shorthand_property_identifier":
		name := node.Content(src)
		if declared[name] || jsGlobals[name] {
			return
		}
		if insideJSXTag(node) && !startsUpper(name) {
			return
		}
		a.uses[name] = append(a.uses[name], [2]uint32{node.StartByte(), node.EndByte()})
		return
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		collectUses(src, node.NamedChild(i), declared, a)
	}
}

func insideJSXTag(node *sitter.Node) bool {
	parent := node.Parent()
	if parent == nil {
		return false
	}
	switch parent.Type() {
	case "jsx_opening_element", "jsx_closing_element", "jsx_self_closing_element":
		return true
	}
	return false
}

func startsUpper(name string) bool {
	r, _ := utf8.DecodeRuneInString(name)
	return unicode.IsUpper(r)
}
