package parser

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// rawLine is one line of SFZ source after comment stripping and #define
// substitution, tagged with the file it came from (for error messages).
type rawLine struct {
	file string
	num  int
	text string
}

// preprocessor flattens a tree of #include directives into a single
// ordered line stream and expands #define substitutions left to right,
// the way the format's own preprocessor works: a #define only affects
// text that comes after it, whether that text is in the same file or a
// file #include'd afterward.
type preprocessor struct {
	defines map[string]string
	visited map[string]bool
	lines   []rawLine
}

func newPreprocessor() *preprocessor {
	return &preprocessor{defines: make(map[string]string), visited: make(map[string]bool)}
}

func (p *preprocessor) run(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf(`could not resolve path "%v": %v`, path, err)
	}
	return p.include(abs)
}

func (p *preprocessor) include(abs string) error {
	if p.visited[abs] {
		return fmt.Errorf(`circular #include detected at "%v"`, abs)
	}
	p.visited[abs] = true

	f, err := os.Open(abs)
	if err != nil {
		return fmt.Errorf(`could not open "%v": %v`, abs, err)
	}
	defer f.Close()

	dir := filepath.Dir(abs)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := stripComment(scanner.Text())
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if directive, arg, ok := strings.Cut(line, " "); ok && directive == "#include" {
			incPath, err := parseIncludePath(arg)
			if err != nil {
				return fmt.Errorf(`%v:%d: %v`, abs, lineNum, err)
			}
			incAbs := filepath.Join(dir, incPath)
			if err := p.include(incAbs); err != nil {
				return err
			}
			continue
		}
		if directive, arg, ok := strings.Cut(line, " "); ok && directive == "#define" {
			name, value, ok := strings.Cut(strings.TrimSpace(arg), " ")
			if !ok {
				return fmt.Errorf(`%v:%d: malformed #define %q`, abs, lineNum, arg)
			}
			p.defines[name] = strings.TrimSpace(value)
			continue
		}

		p.lines = append(p.lines, rawLine{file: abs, num: lineNum, text: p.expand(line)})
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf(`error reading "%v": %v`, abs, err)
	}
	return nil
}

// expand replaces every defined $name in line with its value, longest
// name first so "$note" does not eat the "$notevalue" defined alongside
// it.
func (p *preprocessor) expand(line string) string {
	if len(p.defines) == 0 || !strings.Contains(line, "$") {
		return line
	}
	names := make([]string, 0, len(p.defines))
	for name := range p.defines {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return len(names[i]) > len(names[j]) })
	for _, name := range names {
		line = strings.ReplaceAll(line, name, p.defines[name])
	}
	return line
}

func parseIncludePath(arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if len(arg) < 2 || arg[0] != '"' || arg[len(arg)-1] != '"' {
		return "", fmt.Errorf(`#include argument must be quoted, got %q`, arg)
	}
	return arg[1 : len(arg)-1], nil
}

// stripComment removes a trailing "//" line comment. SFZ has no block
// comments in the wild the way original_source's test corpus uses the
// format, so only the line form is handled.
func stripComment(line string) string {
	if idx := strings.Index(line, "//"); idx >= 0 {
		return line[:idx]
	}
	return line
}
