// pre_processor.go implements the conditional-compilation pass applied to WGSL sources before
// they are validated. WGSL has no preprocessor, so every directive line is consumed here and
// never reaches the compiler.
//
// Supported directives (one per line, leading whitespace allowed):
//   - #define NAME            declares NAME for the rest of the source
//   - #ifdef NAME / #ifndef NAME / #else / #endif   nestable conditional blocks
//   - #include<name>          splices another registered source, processed recursively
//
// Index parameters substitute {key} tokens with their integer value, which lets one include be
// instantiated per light slot (e.g. "light{X}" with X=0..3).

package effect

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

const maxIncludeDepth = 16

// SourceLookup resolves an include name to its source text.
type SourceLookup func(name string) (string, error)

// preProcessor is the implementation of the PreProcessor interface.
type preProcessor struct {
	lookup SourceLookup
}

// PreProcessor expands directives in WGSL sources against a defines string.
type PreProcessor interface {
	// Process expands directives and index parameters in source.
	//
	// Parameters:
	//   - source: the raw source text
	//   - defines: newline-separated "#define NAME" lines selecting conditional features
	//   - indexParameters: values substituted for {key} tokens
	//
	// Returns:
	//   - string: the processed source with every directive removed
	//   - error: an error if a directive is malformed, unbalanced or includes an unknown source
	Process(source, defines string, indexParameters map[string]int) (string, error)
}

var _ PreProcessor = &preProcessor{}

// NewPreProcessor creates a PreProcessor that resolves #include through lookup.
//
// Parameters:
//   - lookup: the include resolver; nil rejects every #include
//
// Returns:
//   - PreProcessor: a ready-to-use pre-processor
func NewPreProcessor(lookup SourceLookup) PreProcessor {
	return &preProcessor{lookup: lookup}
}

// ParseDefines returns the names declared by a defines string.
//
// Parameters:
//   - defines: newline-separated "#define NAME" lines
//
// Returns:
//   - map[string]bool: the declared names
func ParseDefines(defines string) map[string]bool {
	set := make(map[string]bool)
	for _, line := range strings.Split(defines, "\n") {
		if name, ok := cutDirective(line, "#define"); ok && name != "" {
			set[strings.Fields(name)[0]] = true
		}
	}
	return set
}

// JoinDefines builds a canonical defines string from names, sorted and de-duplicated.
//
// Parameters:
//   - names: the feature names
//
// Returns:
//   - string: "#define A\n#define B" style text
func JoinDefines(names ...string) string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, "#define "+n)
	}
	sort.Strings(out)
	return strings.Join(out, "\n")
}

func (p *preProcessor) Process(source, defines string, indexParameters map[string]int) (string, error) {
	return p.process(source, ParseDefines(defines), indexParameters, 0)
}

type condFrame struct {
	parentActive bool
	active       bool
	seenElse     bool
}

func (p *preProcessor) process(source string, defined map[string]bool, indexParameters map[string]int, depth int) (string, error) {
	if depth > maxIncludeDepth {
		return "", fmt.Errorf("include depth exceeds %d", maxIncludeDepth)
	}

	lines := strings.Split(source, "\n")
	out := make([]string, 0, len(lines))
	var stack []condFrame
	active := true

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#") {
			if active {
				out = append(out, substituteIndex(line, indexParameters))
			}
			continue
		}

		switch {
		case strings.HasPrefix(trimmed, "#ifdef"), strings.HasPrefix(trimmed, "#ifndef"):
			negate := strings.HasPrefix(trimmed, "#ifndef")
			directive := "#ifdef"
			if negate {
				directive = "#ifndef"
			}
			name, _ := cutDirective(trimmed, directive)
			if name == "" {
				return "", fmt.Errorf("line %d: %s requires a name", i+1, directive)
			}
			cond := defined[name] != negate
			stack = append(stack, condFrame{parentActive: active, active: active && cond})
			active = active && cond
		case trimmed == "#else":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #else without #ifdef", i+1)
			}
			top := &stack[len(stack)-1]
			if top.seenElse {
				return "", fmt.Errorf("line %d: duplicate #else", i+1)
			}
			top.seenElse = true
			top.active = top.parentActive && !top.active
			active = top.active
		case trimmed == "#endif":
			if len(stack) == 0 {
				return "", fmt.Errorf("line %d: #endif without #ifdef", i+1)
			}
			active = stack[len(stack)-1].parentActive
			stack = stack[:len(stack)-1]
		case strings.HasPrefix(trimmed, "#define"):
			if active {
				if name, _ := cutDirective(trimmed, "#define"); name != "" {
					defined[strings.Fields(name)[0]] = true
				}
			}
		case strings.HasPrefix(trimmed, "#include"):
			if !active {
				continue
			}
			name, err := includeName(trimmed)
			if err != nil {
				return "", fmt.Errorf("line %d: %w", i+1, err)
			}
			if p.lookup == nil {
				return "", fmt.Errorf("line %d: no source lookup for #include<%s>", i+1, name)
			}
			included, err := p.lookup(name)
			if err != nil {
				return "", fmt.Errorf("line %d: %w", i+1, err)
			}
			expanded, err := p.process(included, defined, indexParameters, depth+1)
			if err != nil {
				return "", fmt.Errorf("in #include<%s>: %w", name, err)
			}
			out = append(out, expanded)
		default:
			return "", fmt.Errorf("line %d: unknown directive %q", i+1, trimmed)
		}
	}
	if len(stack) != 0 {
		return "", fmt.Errorf("%d unterminated #ifdef block(s)", len(stack))
	}
	return strings.Join(out, "\n"), nil
}

func cutDirective(line, directive string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), directive)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func includeName(line string) (string, error) {
	rest, _ := cutDirective(line, "#include")
	if !strings.HasPrefix(rest, "<") || !strings.HasSuffix(rest, ">") || len(rest) < 3 {
		return "", fmt.Errorf("malformed include %q", line)
	}
	return rest[1 : len(rest)-1], nil
}

func substituteIndex(line string, params map[string]int) string {
	if len(params) == 0 || !strings.Contains(line, "{") {
		return line
	}
	for k, v := range params {
		line = strings.ReplaceAll(line, "{"+k+"}", strconv.Itoa(v))
	}
	return line
}

// includes lists the #include names referenced anywhere in source, ignoring conditionals.
func includes(source string) []string {
	var names []string
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "#include") {
			continue
		}
		if name, err := includeName(trimmed); err == nil {
			names = append(names, name)
		}
	}
	return names
}
