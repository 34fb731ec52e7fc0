package gotpl

import "strings"

// baseFuncs returns the function set every renderer starts with. A
// FileType's own functions are layered on top and may shadow any of these.
func baseFuncs() map[string]any {
	return map[string]any{
		"add":      add,
		"sub":      sub,
		"mult":     mult,
		"div":      div,
		"mod":      mod,
		"upper":    strings.ToUpper,
		"lower":    strings.ToLower,
		"title":    titleCase,
		"trim":     strings.TrimSpace,
		"join":     strings.Join,
		"split":    strings.Split,
		"repeat":   strings.Repeat,
		"contains": strings.Contains,
		"replace":  strings.ReplaceAll,
		"default":  defaultValue,
	}
}

// add returns a + b.
func add(a, b int) int {
	return a + b
}

// sub returns a - b.
func sub(a, b int) int {
	return a - b
}

// mult returns a * b.
func mult(a, b int) int {
	return a * b
}

// div returns a / b (integer division). Returns 0 if b is 0.
func div(a, b int) int {
	if b == 0 {
		return 0
	}
	return a / b
}

// mod returns a % b. Returns 0 if b is 0.
func mod(a, b int) int {
	if b == 0 {
		return 0
	}
	return a % b
}

// titleCase upper-cases the first letter of every space-separated word.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, word := range words {
		words[i] = strings.ToUpper(word[:1]) + word[1:]
	}
	return strings.Join(words, " ")
}

// defaultValue returns value unless it is nil or an empty string, in which
// case it returns fallback.
func defaultValue(fallback, value any) any {
	if value == nil {
		return fallback
	}
	if s, ok := value.(string); ok && s == "" {
		return fallback
	}
	return value
}
