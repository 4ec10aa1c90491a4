// Package filter classifies follower records against the operator's filter
// configuration.
package filter

import (
	"regexp"
	"strings"

	"followsweep/pkg/models"
)

// Built-in heuristics, in evaluation order.
var (
	// underage runs against the bio only: stated ages 11-17, school levels, "teen".
	underage = regexp.MustCompile(`(?i)((\s|\b)+1[1-7][^\w|/\\%])|(\b(high\b|middle)(.school|.school)*)|(\bteen(age|ager)*\b)`)
	zoo      = regexp.MustCompile(`(?i)(ζ)|(zeta)|(zoo(sex|phile[^s]|positivity|.friend))`)
	pedo     = regexp.MustCompile(`(?i) (📛|🍭)`)
)

// Config is one immutable snapshot of the filter settings.
type Config struct {
	Underage bool
	Zoo      bool
	Pedo     bool
	// Custom holds operator patterns, one per entry.
	Custom []string
}

// Enabled reports whether any check would run.
func (c Config) Enabled() bool {
	return c.Underage || c.Zoo || c.Pedo || len(ParsePatterns(strings.Join(c.Custom, "\n"))) > 0
}

// ParsePatterns splits newline-separated operator input into patterns,
// trimming each line and dropping blank ones.
func ParsePatterns(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return out
}

// Engine is a compiled Config. It is safe for concurrent use.
type Engine struct {
	cfg    Config
	custom []pattern
}

type pattern struct {
	text string
	re   *regexp.Regexp
}

// New compiles cfg. Each custom pattern matches case-insensitively as a whole
// word; a pattern that is not a valid regular expression matches literally.
func New(cfg Config) *Engine {
	e := &Engine{cfg: cfg}
	for _, p := range ParsePatterns(strings.Join(cfg.Custom, "\n")) {
		e.custom = append(e.custom, pattern{text: p, re: compileCustom(p)})
	}
	return e
}

func compileCustom(p string) *regexp.Regexp {
	if re, err := regexp.Compile(`(?i)\b(?:` + p + `)\b`); err == nil {
		return re
	}
	return regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(p) + `\b`)
}

// Config returns the snapshot the engine was built from.
func (e *Engine) Config() Config { return e.cfg }

// Classify reports whether r matches any enabled check. Built-ins run first
// in fixed order, then custom patterns; the first hit wins.
func (e *Engine) Classify(r models.FollowerRecord) bool {
	_, ok := e.Match(r)
	return ok
}

// Match is Classify that also names the check that matched: "underage",
// "zoo", "pedo", or the custom pattern text.
func (e *Engine) Match(r models.FollowerRecord) (string, bool) {
	text := r.SearchableText
	if text == "" {
		text = models.SearchableText(r.DisplayName, r.Handle, r.Bio)
	}

	if e.cfg.Underage && underage.MatchString(r.Bio) {
		return "underage", true
	}
	if e.cfg.Zoo && zoo.MatchString(text) {
		return "zoo", true
	}
	if e.cfg.Pedo && pedo.MatchString(text) {
		return "pedo", true
	}
	for _, p := range e.custom {
		if p.re.MatchString(text) {
			return p.text, true
		}
	}
	return "", false
}

// Filter returns the records that Classify flags, preserving order.
func (e *Engine) Filter(records []models.FollowerRecord) []models.FollowerRecord {
	out := make([]models.FollowerRecord, 0)
	for _, r := range records {
		if e.Classify(r) {
			out = append(out, r)
		}
	}
	return out
}

// Classify is a convenience for one-off checks.
func Classify(r models.FollowerRecord, cfg Config) bool {
	return New(cfg).Classify(r)
}
