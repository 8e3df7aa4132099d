// Package rules rewrites final transcripts before the session acts on them,
// fixing words the recognizer reliably gets wrong ("hey assistance",
// "turn of the lights").
package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"havoice/internal/domain"
)

type rewrite interface {
	Apply(input string) (output string, changed bool)
}

// Scope limits a rule to transcripts heard in one listening mode. The zero
// value applies everywhere.
type Scope domain.SessionMode

const (
	ScopeAny     Scope = ""
	ScopeWake    Scope = Scope(domain.ModeWakeWordListening)
	ScopeCommand Scope = Scope(domain.ModeCommandListening)
)

var scopePrefixes = map[string]Scope{
	"[wake]":    ScopeWake,
	"[command]": ScopeCommand,
}

type rule struct {
	scope   Scope
	rewrite rewrite
}

// Corrections applies an ordered rule list until the text stops changing
// or the pass limit is reached.
type Corrections struct {
	rules     []rule
	passLimit int
}

// Load reads rules from path. A missing or empty path yields no rules.
func Load(path string, passLimit int) (*Corrections, error) {
	if strings.TrimSpace(path) == "" {
		return Parse("", passLimit)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Parse("", passLimit)
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}
	c, err := Parse(string(contents), passLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	return c, nil
}

// Parse compiles rules from text. Each non-comment line is either
// `from => to` (whole words, case-insensitive) or `s/pattern/replacement/flags`,
// optionally prefixed with [wake] or [command].
func Parse(contents string, passLimit int) (*Corrections, error) {
	if passLimit <= 0 {
		passLimit = 30
	}
	c := &Corrections{passLimit: passLimit}

	for index, raw := range strings.Split(contents, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		scope := ScopeAny
		for prefix, s := range scopePrefixes {
			if strings.HasPrefix(line, prefix) {
				scope = s
				line = strings.TrimSpace(strings.TrimPrefix(line, prefix))
				break
			}
		}

		var (
			rw  rewrite
			err error
		)
		switch {
		case looksLikeRegexRule(line):
			rw, err = parseRegexRule(line)
		case strings.Contains(line, "=>"):
			rw, err = parseWordRule(line)
		default:
			err = errors.New("unsupported rule format")
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", index+1, err)
		}
		c.rules = append(c.rules, rule{scope: scope, rewrite: rw})
	}
	return c, nil
}

// Len reports how many rules are loaded.
func (c *Corrections) Len() int {
	if c == nil {
		return 0
	}
	return len(c.rules)
}

// Correct rewrites text heard while in mode.
func (c *Corrections) Correct(mode domain.SessionMode, text string) string {
	if c.Len() == 0 {
		return text
	}

	result := text
	for pass := 0; pass < c.passLimit; pass++ {
		changed := false
		for _, r := range c.rules {
			if r.scope != ScopeAny && Scope(mode) != r.scope {
				continue
			}
			if next, ok := r.rewrite.Apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return result
}

type wordRule struct {
	re          *regexp.Regexp
	replacement string
}

func parseWordRule(line string) (rewrite, error) {
	from, to, _ := strings.Cut(line, "=>")
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == "" {
		return nil, errors.New("word rule source cannot be empty")
	}
	re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(from) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("invalid word rule: %w", err)
	}
	return wordRule{re: re, replacement: to}, nil
}

func (r wordRule) Apply(input string) (string, bool) {
	output := r.re.ReplaceAllLiteralString(input, r.replacement)
	return output, output != input
}

type regexRule struct {
	re          *regexp.Regexp
	replacement string
	global      bool
}

func parseRegexRule(line string) (rewrite, error) {
	delim := line[1]
	pattern, pos, err := parseDelimited(line, 2, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	replacement, pos, err := parseDelimited(line, pos, delim)
	if err != nil {
		return nil, fmt.Errorf("invalid regex replacement: %w", err)
	}

	flags := "i"
	global := false
	for _, flag := range strings.TrimSpace(line[pos:]) {
		switch flag {
		case 'i', ' ':
		case 'g':
			global = true
		case 'm', 's':
			flags += string(flag)
		default:
			return nil, fmt.Errorf("unsupported regex flag %q", flag)
		}
	}

	re, err := regexp.Compile("(?" + flags + ")" + pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex: %w", err)
	}
	return regexRule{re: re, replacement: replacement, global: global}, nil
}

func (r regexRule) Apply(input string) (string, bool) {
	if r.global {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	expanded := r.re.ExpandString(nil, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

func parseDelimited(line string, start int, delim byte) (string, int, error) {
	if start >= len(line) {
		return "", 0, errors.New("unexpected end of expression")
	}

	var builder strings.Builder
	escaped := false
	for index := start; index < len(line); index++ {
		char := line[index]
		switch {
		case escaped:
			if char != delim {
				builder.WriteByte('\\')
			}
			builder.WriteByte(char)
			escaped = false
		case char == '\\':
			escaped = true
		case char == delim:
			return builder.String(), index + 1, nil
		default:
			builder.WriteByte(char)
		}
	}
	return "", 0, errors.New("unterminated expression")
}

func isWordByte(char byte) bool {
	return (char >= 'a' && char <= 'z') ||
		(char >= 'A' && char <= 'Z') ||
		(char >= '0' && char <= '9') ||
		char == ' ' || char == '\t'
}

func looksLikeRegexRule(line string) bool {
	return len(line) > 1 && line[0] == 's' && !isWordByte(line[1])
}
