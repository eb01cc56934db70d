// Package patterns holds the versioned phrase and keyword tables that drive behavior analysis
// and nudge wording. Tables are data: they load from YAML and can be swapped at runtime.
package patterns

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"regexp"
	"strings"
	"text/template"
	"unicode"

	"gopkg.in/yaml.v3"

	"github.com/easeaico/project-nudge/internal/types"
)

//go:embed default.yaml
var defaultTables []byte

// Tier is the urgency band of an avoided-task nudge.
type Tier string

const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// File is the on-disk shape of a pattern table file.
type File struct {
	Version          int                 `yaml:"version"`
	Excuses          []string            `yaml:"excuses"`
	Procrastination  []string            `yaml:"procrastination"`
	EmotionalPhrases []EmotionalPhrase   `yaml:"emotional_phrases"`
	Resistance       []string            `yaml:"resistance"`
	TaskCues         []string            `yaml:"task_cues"`
	TaskKeywords     []string            `yaml:"task_keywords"`
	Deescalation     string              `yaml:"deescalation"`
	Tactics          map[string][]string `yaml:"tactics"`
	TaskNudges       map[string]string   `yaml:"task_nudges"`
}

// EmotionalPhrase maps a distress phrase to the boolean trait it sets.
type EmotionalPhrase struct {
	Phrase string `yaml:"phrase"`
	Flag   string `yaml:"flag"`
}

// Phrase is a compiled case-insensitive phrase matcher.
type Phrase struct {
	Text string
	re   *regexp.Regexp
}

// Match reports whether the phrase occurs in normalized text.
func (p Phrase) Match(text string) bool {
	return p.re.MatchString(text)
}

// Find returns the byte offsets of the first match.
func (p Phrase) Find(text string) (start, end int, ok bool) {
	loc := p.re.FindStringIndex(text)
	if loc == nil {
		return 0, 0, false
	}
	return loc[0], loc[1], true
}

// Slug is the flag-safe form of the phrase.
func (p Phrase) Slug() string {
	return strings.Join(strings.Fields(p.Text), "_")
}

// Emotional is a compiled emotional phrase.
type Emotional struct {
	Phrase
	Flag string
}

// TaskNudgeData is the template input for avoided-task nudges.
type TaskNudgeData struct {
	Task         string
	DaysInactive int
	Urgency      float64
}

// Set is a compiled, immutable pattern table.
type Set struct {
	Version         int
	Excuses         []Phrase
	Procrastination []*regexp.Regexp
	Emotional       []Emotional
	Resistance      []Phrase
	TaskCues        []Phrase
	TaskKeywords    []Phrase
	Deescalation    string
	Tactics         map[types.Tone][]string
	taskNudges      map[Tier]*template.Template
}

// TaskNudge renders the avoided-task nudge for tier.
func (s *Set) TaskNudge(tier Tier, data TaskNudgeData) (string, error) {
	tpl, ok := s.taskNudges[tier]
	if !ok {
		return "", fmt.Errorf("no task nudge template for tier %q", tier)
	}
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render task nudge: %w", err)
	}
	return buf.String(), nil
}

// Parse decodes and compiles a YAML pattern table.
func Parse(data []byte) (*Set, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to decode pattern tables: %w", err)
	}
	return Compile(f)
}

// Load reads and compiles the pattern table file at path.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pattern tables: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in pattern tables.
func Default() *Set {
	set, err := Parse(defaultTables)
	if err != nil {
		panic(fmt.Sprintf("built-in pattern tables are invalid: %v", err))
	}
	return set
}

// DefaultYAML returns the raw built-in tables.
func DefaultYAML() []byte {
	return append([]byte(nil), defaultTables...)
}

// Compile validates f and builds matchers.
func Compile(f File) (*Set, error) {
	if f.Version <= 0 {
		return nil, fmt.Errorf("pattern tables: version must be positive")
	}
	if strings.TrimSpace(f.Deescalation) == "" {
		return nil, fmt.Errorf("pattern tables: deescalation text is required")
	}

	set := &Set{
		Version:      f.Version,
		Deescalation: strings.TrimSpace(f.Deescalation),
		Tactics:      make(map[types.Tone][]string, len(f.Tactics)),
		taskNudges:   make(map[Tier]*template.Template, 3),
	}

	var err error
	if set.Excuses, err = compileSubstrings(f.Excuses); err != nil {
		return nil, fmt.Errorf("pattern tables: excuses: %w", err)
	}
	if set.Resistance, err = compilePhrases(f.Resistance); err != nil {
		return nil, fmt.Errorf("pattern tables: resistance: %w", err)
	}
	if set.TaskCues, err = compilePhrases(f.TaskCues); err != nil {
		return nil, fmt.Errorf("pattern tables: task cues: %w", err)
	}
	if set.TaskKeywords, err = compilePhrases(f.TaskKeywords); err != nil {
		return nil, fmt.Errorf("pattern tables: task keywords: %w", err)
	}

	for _, expr := range f.Procrastination {
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("pattern tables: procrastination %q: %w", expr, err)
		}
		set.Procrastination = append(set.Procrastination, re)
	}

	for _, ep := range f.EmotionalPhrases {
		if strings.TrimSpace(ep.Flag) == "" {
			return nil, fmt.Errorf("pattern tables: emotional phrase %q has no flag", ep.Phrase)
		}
		p, err := compileSubstring(ep.Phrase)
		if err != nil {
			return nil, fmt.Errorf("pattern tables: emotional phrase: %w", err)
		}
		set.Emotional = append(set.Emotional, Emotional{Phrase: p, Flag: ep.Flag})
	}

	for name, pool := range f.Tactics {
		tone, ok := types.ParseTone(name)
		if !ok {
			return nil, fmt.Errorf("pattern tables: unknown tone %q", name)
		}
		if len(pool) == 0 {
			return nil, fmt.Errorf("pattern tables: tone %q has no tactics", name)
		}
		set.Tactics[tone] = append([]string(nil), pool...)
	}
	for _, tone := range types.Tones {
		if len(set.Tactics[tone]) == 0 {
			return nil, fmt.Errorf("pattern tables: tone %q has no tactics", tone)
		}
	}

	for _, tier := range []Tier{TierLow, TierMedium, TierHigh} {
		text, ok := f.TaskNudges[string(tier)]
		if !ok || strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("pattern tables: task nudge tier %q is required", tier)
		}
		tpl, err := template.New(string(tier)).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("pattern tables: task nudge %q: %w", tier, err)
		}
		set.taskNudges[tier] = tpl
	}

	return set, nil
}

// NormalizeText lower-cases text and folds typographic apostrophes so that phrase tables
// can be written with plain ASCII quotes.
func NormalizeText(text string) string {
	text = strings.ToLower(text)
	return strings.NewReplacer("’", "'", "‘", "'", "ʼ", "'").Replace(text)
}

func compilePhrases(list []string) ([]Phrase, error) {
	return compileAll(list, compilePhrase)
}

func compileSubstrings(list []string) ([]Phrase, error) {
	return compileAll(list, compileSubstring)
}

func compileAll(list []string, compile func(string) (Phrase, error)) ([]Phrase, error) {
	out := make([]Phrase, 0, len(list))
	for _, text := range list {
		p, err := compile(text)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// compilePhrase anchors a literal phrase on word boundaries where its ends are word characters.
func compilePhrase(text string) (Phrase, error) {
	return compileLiteral(text, true)
}

// compileSubstring matches a literal phrase anywhere in the text, "hopelessness" included.
func compileSubstring(text string) (Phrase, error) {
	return compileLiteral(text, false)
}

func compileLiteral(text string, bounded bool) (Phrase, error) {
	text = NormalizeText(strings.TrimSpace(text))
	if text == "" {
		return Phrase{}, fmt.Errorf("empty phrase")
	}
	expr := regexp.QuoteMeta(text)
	if bounded {
		runes := []rune(text)
		if isWordRune(runes[0]) {
			expr = `\b` + expr
		}
		if isWordRune(runes[len(runes)-1]) {
			expr += `\b`
		}
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Phrase{}, fmt.Errorf("phrase %q: %w", text, err)
	}
	return Phrase{Text: text, re: re}, nil
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
