package rules

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultIterationLimit = 30

// Rule is one substitution entry of a rules file. Exactly one of Phrase or
// Pattern is set.
type Rule struct {
	Phrase        string `yaml:"phrase"`
	Pattern       string `yaml:"pattern"`
	Replace       string `yaml:"replace"`
	CaseSensitive bool   `yaml:"case_sensitive"`
	First         bool   `yaml:"first"`
}

type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

type compiledRule struct {
	re          *regexp.Regexp
	replacement string
	firstOnly   bool
}

func (r compiledRule) apply(input string) (string, bool) {
	if !r.firstOnly {
		output := r.re.ReplaceAllString(input, r.replacement)
		return output, output != input
	}

	loc := r.re.FindStringSubmatchIndex(input)
	if loc == nil {
		return input, false
	}
	var expanded []byte
	expanded = r.re.ExpandString(expanded, r.replacement, input, loc)
	output := input[:loc[0]] + string(expanded) + input[loc[1]:]
	return output, output != input
}

// Engine rewrites finished transcripts with the substitutions of a rules
// file. A missing file yields a passthrough engine.
type Engine struct {
	rules          []compiledRule
	iterationLimit int
}

// NewEngine loads rules from a YAML file.
func NewEngine(path string, iterationLimit int) (*Engine, error) {
	if iterationLimit <= 0 {
		iterationLimit = defaultIterationLimit
	}
	engine := &Engine{iterationLimit: iterationLimit}
	if strings.TrimSpace(path) == "" {
		return engine, nil
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return engine, nil
		}
		return nil, fmt.Errorf("failed to read rules file %q: %w", path, err)
	}

	var file ruleFile
	if err := yaml.Unmarshal(contents, &file); err != nil {
		return nil, fmt.Errorf("failed to parse rules file %q: %w", path, err)
	}
	compiled, err := compile(file.Rules)
	if err != nil {
		return nil, fmt.Errorf("rules file %q: %w", path, err)
	}
	engine.rules = compiled
	return engine, nil
}

// NewEngineFromRules builds an engine without touching the filesystem.
func NewEngineFromRules(rules []Rule, iterationLimit int) (*Engine, error) {
	compiled, err := compile(rules)
	if err != nil {
		return nil, err
	}
	if iterationLimit <= 0 {
		iterationLimit = defaultIterationLimit
	}
	return &Engine{rules: compiled, iterationLimit: iterationLimit}, nil
}

// compile validates rules and turns them into regular expressions.
func compile(rules []Rule) ([]compiledRule, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for i, rule := range rules {
		phrase := strings.TrimSpace(rule.Phrase)
		pattern := rule.Pattern
		switch {
		case phrase != "" && pattern != "":
			return nil, fmt.Errorf("rule %d: phrase and pattern are mutually exclusive", i+1)
		case phrase == "" && pattern == "":
			return nil, fmt.Errorf("rule %d: phrase or pattern is required", i+1)
		case phrase != "":
			pattern = regexp.QuoteMeta(phrase)
		}
		if !rule.CaseSensitive {
			pattern = "(?i)" + pattern
		}

		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %d: invalid pattern: %w", i+1, err)
		}
		replacement := rule.Replace
		if phrase != "" {
			replacement = strings.ReplaceAll(replacement, "$", "$$")
		}
		compiled = append(compiled, compiledRule{re: re, replacement: replacement, firstOnly: rule.First})
	}
	return compiled, nil
}

// Len returns the number of loaded rules.
func (e *Engine) Len() int {
	return len(e.rules)
}

// Apply runs every rule in order until the text stops changing or the
// iteration limit is reached.
func (e *Engine) Apply(text string) (string, error) {
	if len(e.rules) == 0 {
		return text, nil
	}

	result := text
	for i := 0; i < e.iterationLimit; i++ {
		changed := false
		for _, rule := range e.rules {
			if next, ok := rule.apply(result); ok {
				result = next
				changed = true
			}
		}
		if !changed {
			break
		}
	}
	return strings.Join(strings.Fields(result), " "), nil
}
