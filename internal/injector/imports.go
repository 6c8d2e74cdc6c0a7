package injector

import (
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/promptc/promptc/pkg/types"
)

// hostImports is the injector-local view of a file's top-level import
// surface: local binding name -> canonical origin, plus where new import
// statements should be spliced in.
type hostImports struct {
	byLocal     map[string]types.SymbolOrigin
	byCanonical map[string]string // canonical key -> local name
	lastEnd     uint32            // end byte of the last top-level import, 0 when none
}

func canonicalKey(o types.SymbolOrigin) string {
	return o.Module + "\x00" + o.Symbol
}

// parseHostImports scans the file's top-level import statements. Only
// statically analyzable forms bind names: default, namespace, and named
// specifiers with or without aliases. Bare imports ("import 'x'") bind
// nothing but still move the insertion point.
func parseHostImports(src []byte, root *sitter.Node) *hostImports {
	h := &hostImports{
		byLocal:     map[string]types.SymbolOrigin{},
		byCanonical: map[string]string{},
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() != "import_statement" {
			continue
		}
		h.lastEnd = stmt.EndByte()

		srcNode := stmt.ChildByFieldName("source")
		if srcNode == nil {
			continue
		}
		module := literalText(src, srcNode)

		for j := 0; j < int(stmt.NamedChildCount()); j++ {
			clause := stmt.NamedChild(j)
			if clause.Type() != "import_clause" {
				continue
			}
			parseImportClause(src, clause, module, h)
		}
	}
	return h
}

func parseImportClause(src []byte, clause *sitter.Node, module string, h *hostImports) {
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "identifier":
			// default import: import X from "m"
			h.bind(child.Content(src), types.SymbolOrigin{Module: module, Symbol: "default"})
		case "namespace_import":
			// import * as X from "m"
			for j := 0; j < int(child.NamedChildCount()); j++ {
				if id := child.NamedChild(j); id.Type() == "identifier" {
					h.bind(id.Content(src), types.SymbolOrigin{Module: module, Symbol: "*"})
				}
			}
		case "named_imports":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() != "import_specifier" {
					continue
				}
				name := spec.ChildByFieldName("name")
				if name == nil {
					continue
				}
				exported := name.Content(src)
				local := exported
				if alias := spec.ChildByFieldName("alias"); alias != nil {
					local = alias.Content(src)
				}
				h.bind(local, types.SymbolOrigin{Module: module, Symbol: exported})
			}
		}
	}
}

func (h *hostImports) bind(local string, origin types.SymbolOrigin) {
	h.byLocal[local] = origin
	key := canonicalKey(origin)
	// First binding of a canonical symbol wins; duplicates keep the earliest
	// local so lookups stay deterministic.
	if _, ok := h.byCanonical[key]; !ok {
		h.byCanonical[key] = local
	}
}

// literalText returns the contents of a string node without its quotes.
func literalText(src []byte, str *sitter.Node) string {
	text := str.Content(src)
	if len(text) >= 2 {
		switch text[0] {
		case '"', '\'', '`':
			return text[1 : len(text)-1]
		}
	}
	return text
}

// renderImport produces the statement binding one canonical symbol to a
// local name.
func renderImport(origin types.SymbolOrigin, local string) string {
	switch origin.Symbol {
	case "default":
		return fmt.Sprintf("import %s from %q;", local, origin.Module)
	case "*":
		return fmt.Sprintf("import * as %s from %q;", local, origin.Module)
	default:
		if local == origin.Symbol {
			return fmt.Sprintf("import { %s } from %q;", origin.Symbol, origin.Module)
		}
		return fmt.Sprintf("import { %s as %s } from %q;", origin.Symbol, local, origin.Module)
	}
}
