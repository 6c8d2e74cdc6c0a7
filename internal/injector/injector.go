// Package injector performs the sandboxed compile-time pass: it re-derives
// the directive set for a file with the same scan the generation pass used,
// looks each directive up in the persisted cache, and splices generated
// bodies into the source, resolving import collisions against the host file's
// existing bindings. It makes no network calls and is a pure function of
// (source, cache snapshot, symbol table).
package injector

import (
	"context"
	"fmt"
	"sort"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/promptc/promptc/internal/cache"
	"github.com/promptc/promptc/internal/logging"
	"github.com/promptc/promptc/internal/scanner"
	"github.com/promptc/promptc/pkg/types"
)

// Resolver maps a conventional local name to its canonical origin. The
// symbol table satisfies this.
type Resolver interface {
	Resolve(localName string) (types.SymbolOrigin, bool, error)
}

// Options is the injector configuration object. No options are currently
// recognized; the type is reserved for future extension.
type Options struct{}

// Injector rewrites files against a cache snapshot.
type Injector struct {
	sc       *scanner.Scanner
	resolver Resolver
	opts     Options
}

// New creates an Injector.
func New(resolver Resolver, opts Options) *Injector {
	return &Injector{
		sc:       scanner.New(),
		resolver: resolver,
		opts:     opts,
	}
}

const (
	wrapPrefix = "function __promptc__() {\n"
	wrapSuffix = "\n}"
)

// splice is one pending text replacement; insertion is a zero-width splice.
type splice struct {
	start, end uint32
	text       string
}

// newImport is one import statement queued for insertion, in allocation
// order.
type newImport struct {
	origin types.SymbolOrigin
	local  string
}

// InjectFile rewrites src. Every failure mode below the file level degrades
// to "leave that function alone": parse failures yield the input unchanged,
// cache misses and unparsable cached code keep the original body. Re-running
// over an already-rewritten file is a no-op because rewritten functions carry
// no directive prologue.
func (inj *Injector) InjectFile(ctx context.Context, path string, src []byte, snap *cache.Snapshot) ([]byte, error) {
	log := logging.Named("injector")

	tree, err := inj.sc.Parse(ctx, path, src)
	if err != nil {
		log.Warnw("parse failed, file left unmodified", "path", path, "error", err)
		return src, nil
	}
	defer tree.Close()

	matches := scanner.ScanMatches(src, tree)
	if len(matches) == 0 {
		return src, nil
	}

	root := tree.RootNode()
	host := parseHostImports(src, root)

	// Collision surface: every name bound anywhere in the host file plus the
	// import locals. New aliases must dodge all of them.
	bound := map[string]bool{}
	collectDeclared(src, root, bound)
	for local := range host.byLocal {
		bound[local] = true
	}

	// Names bound at top level outside imports resolve in the enclosing
	// scope already; generated references to them are not external symbols.
	topBindings := topLevelBindings(src, root)

	allocated := map[string]string{} // canonical key -> allocated local
	var pending []newImport
	var splices []splice
	var replaced [][2]uint32 // body ranges already claimed by a hit

	for _, m := range matches {
		d := m.Directive

		// A directive nested inside an already-replaced body vanishes with
		// that body, exactly as replacing the enclosing node would drop it.
		if insideAny(replaced, m.Body.StartByte(), m.Body.EndByte()) {
			log.Debugw("directive subsumed by enclosing replacement",
				"path", path, "start", d.Span.Start)
			continue
		}

		sub, ok := snap.Lookup(d)
		if !ok {
			log.Debugw("cache miss, body left unmodified",
				"path", path, "start", d.Span.Start, "end", d.Span.End)
			continue
		}

		body, err := inj.rewriteBody(ctx, path, sub.Code, host, topBindings, bound, allocated, &pending)
		if err != nil {
			// Equivalent to a cache miss: the original body stays.
			log.Warnw("cached code unusable, body left unmodified",
				"path", path, "start", d.Span.Start, "error", err)
			continue
		}

		splices = append(splices, splice{
			start: m.Body.StartByte(),
			end:   m.Body.EndByte(),
			text:  body,
		})
		replaced = append(replaced, [2]uint32{m.Body.StartByte(), m.Body.EndByte()})
	}

	if len(splices) == 0 && len(pending) == 0 {
		return src, nil
	}

	if len(pending) > 0 {
		splices = append(splices, importSplice(host, pending))
	}
	return applySplices(src, splices), nil
}

// rewriteBody validates one cached substitution, resolves its external
// symbols, rewrites references, and returns the replacement body text
// including braces.
func (inj *Injector) rewriteBody(
	ctx context.Context,
	path string,
	code string,
	host *hostImports,
	topBindings map[string]bool,
	bound map[string]bool,
	allocated map[string]string,
	pending *[]newImport,
) (string, error) {
	wrapped := []byte(wrapPrefix + code + wrapSuffix)

	tree, err := inj.sc.Parse(ctx, path, wrapped)
	if err != nil {
		return "", fmt.Errorf("re-parse generated code: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return "", fmt.Errorf("generated code is not syntactically valid")
	}
	fn := root.NamedChild(0)
	if fn == nil || fn.Type() != "function_declaration" {
		return "", fmt.Errorf("generated code did not parse as a function body")
	}

	a := analyzeGenerated(wrapped, fn)

	required := a.free
	if a.hasJSX && !contains(required, "React") && !bound["React"] && !topBindings["React"] {
		// Classic JSX runtime: the transform downstream emits
		// React.createElement, which needs the React binding by that exact
		// name. Aliasing would not help, so this is only added when the name
		// is free in the host file.
		required = append(required, "React")
		sort.Strings(required)
	}

	renames := map[string]string{}
	for _, name := range required {
		if topBindings[name] {
			continue
		}

		origin, found, err := inj.resolver.Resolve(name)
		if err != nil {
			logging.Named("injector").Warnw("symbol table lookup failed", "name", name, "error", err)
			continue
		}
		if !found {
			// Unknown symbol: either it already means something in the host
			// file or it stays a plain global reference. Never invent an
			// import.
			continue
		}

		key := canonicalKey(origin)
		if local, ok := host.byCanonical[key]; ok {
			// The host already imports this exact symbol; reuse its binding.
			if local != name {
				renames[name] = local
			}
			continue
		}
		if local, ok := allocated[key]; ok {
			if local != name {
				renames[name] = local
			}
			continue
		}

		local := name
		if bound[local] {
			for i := 1; ; i++ {
				candidate := fmt.Sprintf("%s$%d", name, i)
				if !bound[candidate] {
					local = candidate
					break
				}
			}
		}
		allocated[key] = local
		bound[local] = true
		*pending = append(*pending, newImport{origin: origin, local: local})
		if local != name {
			renames[name] = local
		}
	}

	rewritten := applyRenames(code, a, renames)
	return "{\n" + rewritten + "\n}", nil
}

// applyRenames rewrites identifier occurrences in the generated code. Ranges
// were recorded against the wrapped source, so they shift back by the
// wrapper prefix.
func applyRenames(code string, a *analysis, renames map[string]string) string {
	if len(renames) == 0 {
		return code
	}

	var edits []splice
	for name, replacement := range renames {
		for _, r := range a.uses[name] {
			edits = append(edits, splice{
				start: r[0] - uint32(len(wrapPrefix)),
				end:   r[1] - uint32(len(wrapPrefix)),
				text:  replacement,
			})
		}
	}
	return string(applySplices([]byte(code), edits))
}

// importSplice renders the queued import statements as one zero-width
// insertion after the last existing top-level import, or at the top of the
// file when there is none.
func importSplice(host *hostImports, pending []newImport) splice {
	text := ""
	for _, imp := range pending {
		text += "\n" + renderImport(imp.origin, imp.local)
	}
	if host.lastEnd > 0 {
		return splice{start: host.lastEnd, end: host.lastEnd, text: text}
	}
	return splice{start: 0, end: 0, text: text[1:] + "\n"}
}

// applySplices applies replacements back to front so earlier offsets stay
// valid.
func applySplices(src []byte, splices []splice) []byte {
	sort.Slice(splices, func(i, j int) bool {
		if splices[i].start != splices[j].start {
			return splices[i].start > splices[j].start
		}
		return splices[i].end > splices[j].end
	})

	out := append([]byte(nil), src...)
	for _, s := range splices {
		var tail []byte
		tail = append(tail, []byte(s.text)...)
		tail = append(tail, out[s.end:]...)
		out = append(out[:s.start:s.start], tail...)
	}
	return out
}

// topLevelBindings collects names declared at the top level of the host file
// outside import statements: function, class, and variable declarations,
// including exported ones.
func topLevelBindings(src []byte, root *sitter.Node) map[string]bool {
	bindings := map[string]bool{}
	for i := 0; i < int(root.NamedChildCount()); i++ {
		stmt := root.NamedChild(i)
		if stmt.Type() == "export_statement" {
			if decl := stmt.ChildByFieldName("declaration"); decl != nil {
				stmt = decl
			}
		}
		switch stmt.Type() {
		case "function_declaration", "generator_function_declaration", "class_declaration":
			if name := stmt.ChildByFieldName("name"); name != nil {
				bindings[name.Content(src)] = true
			}
		case "lexical_declaration", "variable_declaration":
			for j := 0; j < int(stmt.NamedChildCount()); j++ {
				declarator := stmt.NamedChild(j)
				if declarator.Type() != "variable_declarator" {
					continue
				}
				if name := declarator.ChildByFieldName("name"); name != nil {
					collectPatternIdentifiers(src, name, bindings)
				}
			}
		}
	}
	return bindings
}

func insideAny(ranges [][2]uint32, start, end uint32) bool {
	for _, r := range ranges {
		if start >= r[0] && end <= r[1] {
			return true
		}
	}
	return false
}

func contains(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}
