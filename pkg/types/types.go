package types

import "time"

// =============================================================================
// DIRECTIVE TYPES (promptc)
// =============================================================================

// Span addresses a syntactic element by byte offsets into the original source.
// Start points just before the function header, End just before the opening
// brace of the body.
type Span struct {
	Start uint32 `json:"start"`
	End   uint32 `json:"end"`
}

// Directive is a "use prompt:" marker extracted from a function body.
// Immutable once produced by the scanner; never persisted directly. Only the
// key fields (span, prompt, hash) leak into the cache.
type Directive struct {
	Span          Span   `json:"span"`
	Prompt        string `json:"prompt"`
	SignatureStub string `json:"signature_stub"`

	// PromptHash is sha256(signatureStub, prompt), hex encoded. It identifies
	// the directive independently of byte offsets, so cached results survive
	// unrelated edits earlier in the file.
	PromptHash string `json:"prompt_hash"`
}

// Substitution is the generated replacement for one directive. Imports is the
// service's self-reported import list; it is recorded but never trusted.
// Import resolution happens against the symbol table at inject time.
type Substitution struct {
	Code    string  `json:"code"`
	Imports *string `json:"imports"`
}

// =============================================================================
// CACHE TYPES
// =============================================================================

// Cache is the persisted generation artifact shared between the two passes:
// stringified span start -> stringified span end -> prompt -> substitution.
// Stale entries for abandoned prompts are kept; eviction is an explicit prune.
type Cache map[string]map[string]map[string]Substitution

// HashIndex is the sidecar lookup keyed by Directive.PromptHash. It lets the
// injector find a result after byte offsets have drifted.
type HashIndex map[string]Substitution

// =============================================================================
// SYMBOL TABLE TYPES
// =============================================================================

// SymbolOrigin is the canonical identity of an importable symbol: the module
// it comes from plus its exported name. Symbol "default" marks a default
// export, "*" a namespace import.
type SymbolOrigin struct {
	Module    string `json:"module"`
	Symbol    string `json:"symbol"`
	LocalName string `json:"localName"` // conventional binding name
}

// =============================================================================
// GENERATION RUN TYPES
// =============================================================================

// DirectiveOutcome records how a single directive fared in a generation run.
type DirectiveOutcome struct {
	File   string `json:"file"`
	Span   Span   `json:"span"`
	Prompt string `json:"prompt"`
	Status string `json:"status"` // generated, failed, cached
	Error  string `json:"error,omitempty"`
}

// RunRecord is the persisted log of one generation run.
type RunRecord struct {
	ID         string             `json:"id"`
	StartedAt  time.Time          `json:"started_at"`
	FinishedAt time.Time          `json:"finished_at"`
	Files      []string           `json:"files"`
	Outcomes   []DirectiveOutcome `json:"outcomes"`
	Generated  int                `json:"generated"`
	Failed     int                `json:"failed"`
}

// Stats summarizes the cache contents for the stats command.
type Stats struct {
	Spans       int `json:"spans"`
	Entries     int `json:"entries"`
	HashEntries int `json:"hash_entries"`
}
