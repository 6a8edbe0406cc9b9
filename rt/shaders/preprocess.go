package shaders

import (
	"bufio"
	"fmt"
	"strings"
)

// Preprocess resolves `#include <chunk>` lines and `#ifdef NAME` / `#else` /
// `#endif` blocks. Directives must start their line; nesting is allowed.
func Preprocess(src string, defines map[string]bool) (string, error) {
	return preprocess(src, defines, 0)
}

func preprocess(src string, defines map[string]bool, depth int) (string, error) {
	if depth > 8 {
		return "", fmt.Errorf("shaders: include depth exceeded")
	}

	var out strings.Builder
	// each frame records whether the enclosing block emits lines
	var stack []bool
	active := func() bool {
		for _, on := range stack {
			if !on {
				return false
			}
		}
		return true
	}

	sc := bufio.NewScanner(strings.NewReader(src))
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		trimmed := strings.TrimSpace(text)

		switch {
		case strings.HasPrefix(trimmed, "#ifdef"):
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "#ifdef"))
			if name == "" {
				return "", fmt.Errorf("shaders: line %d: #ifdef without name", line)
			}
			stack = append(stack, defines[name])
		case trimmed == "#else":
			if len(stack) == 0 {
				return "", fmt.Errorf("shaders: line %d: #else without #ifdef", line)
			}
			stack[len(stack)-1] = !stack[len(stack)-1]
		case trimmed == "#endif":
			if len(stack) == 0 {
				return "", fmt.Errorf("shaders: line %d: #endif without #ifdef", line)
			}
			stack = stack[:len(stack)-1]
		case strings.HasPrefix(trimmed, "#include"):
			if !active() {
				continue
			}
			name := strings.TrimSpace(strings.TrimPrefix(trimmed, "#include"))
			name = strings.TrimSuffix(strings.TrimPrefix(name, "<"), ">")
			chunk, ok := chunks[name]
			if !ok {
				return "", fmt.Errorf("shaders: line %d: unknown chunk %q", line, name)
			}
			expanded, err := preprocess(chunk, defines, depth+1)
			if err != nil {
				return "", err
			}
			out.WriteString(expanded)
		default:
			if active() {
				out.WriteString(text)
				out.WriteByte('\n')
			}
		}
	}
	if err := sc.Err(); err != nil {
		return "", err
	}
	if len(stack) != 0 {
		return "", fmt.Errorf("shaders: unterminated #ifdef")
	}
	return out.String(), nil
}
