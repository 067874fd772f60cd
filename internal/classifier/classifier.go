// Package classifier decides whether search box input is a street address or a
// natural-language property request.
package classifier

import (
	"regexp"
	"strings"
	"unicode"
)

// Mode is the search mode derived from raw input.
type Mode string

const (
	ModeAddress Mode = "address"
	ModeNatural Mode = "natural"
)

// Rule is one entry of the ordered rule list. The first rule whose Match
// returns true decides the mode.
type Rule struct {
	Name  string
	Match func(in Input) bool
	Mode  Mode
}

// Input is the pre-tokenized form of the text handed to every rule.
type Input struct {
	Raw   string
	Lower string
	Words []string
}

// Classifier evaluates a compiled rule list. It holds no mutable state and is
// safe for concurrent use.
type Classifier struct {
	rules    []Rule
	fallback Mode
}

// New compiles policy into the standard rule list:
//
//	empty → natural-marker → street-shape → leading-digit → locality → fragment-length
func New(policy Policy) *Classifier {
	markers := wordSet(policy.NaturalMarkers)
	localities := wordSet(policy.LocalityWords)
	patterns := make([]*regexp.Regexp, 0, len(policy.NaturalPatterns))
	for _, expr := range policy.NaturalPatterns {
		patterns = append(patterns, regexp.MustCompile(expr))
	}

	suffixes := make([]string, 0, len(policy.StreetSuffixes))
	for _, s := range policy.StreetSuffixes {
		suffixes = append(suffixes, regexp.QuoteMeta(strings.ToLower(strings.TrimSpace(s))))
	}
	streetWithSuffix := regexp.MustCompile(`^\d+[a-z]?\s+(?:[a-z0-9.'-]+\s+)*(?:` + strings.Join(suffixes, "|") + `)\b`)
	numberThenLocality := regexp.MustCompile(`^\d+[^,]*,\s*[a-z]`)

	rules := []Rule{
		{
			Name:  "empty",
			Match: func(in Input) bool { return len(in.Words) == 0 },
			Mode:  ModeAddress,
		},
		{
			Name: "natural-marker",
			Match: func(in Input) bool {
				if containsAny(in.Words, markers) {
					return true
				}
				for _, re := range patterns {
					if re.MatchString(in.Lower) {
						return true
					}
				}
				return false
			},
			Mode: ModeNatural,
		},
		{
			Name: "street-shape",
			Match: func(in Input) bool {
				return streetWithSuffix.MatchString(in.Lower) || numberThenLocality.MatchString(in.Lower)
			},
			Mode: ModeAddress,
		},
		{
			Name: "leading-digit",
			Match: func(in Input) bool {
				return unicode.IsDigit(rune(in.Lower[0]))
			},
			Mode: ModeAddress,
		},
		{
			Name: "locality",
			Match: func(in Input) bool {
				return len(in.Words) >= policy.LocalityMinWords && containsAny(in.Words, localities)
			},
			Mode: ModeNatural,
		},
		{
			Name: "fragment-length",
			Match: func(in Input) bool {
				return len(in.Words) <= policy.MaxFragmentWords
			},
			Mode: ModeAddress,
		},
	}

	return &Classifier{rules: rules, fallback: ModeNatural}
}

// WithRule returns a copy of c with r inserted before the rule named before.
// If no rule has that name, r is appended ahead of the fallback.
func (c *Classifier) WithRule(before string, r Rule) *Classifier {
	rules := make([]Rule, 0, len(c.rules)+1)
	inserted := false
	for _, existing := range c.rules {
		if !inserted && existing.Name == before {
			rules = append(rules, r)
			inserted = true
		}
		rules = append(rules, existing)
	}
	if !inserted {
		rules = append(rules, r)
	}
	return &Classifier{rules: rules, fallback: c.fallback}
}

// Classify maps text to a search mode.
func (c *Classifier) Classify(text string) Mode {
	mode, _ := c.Explain(text)
	return mode
}

// Explain returns the mode together with the name of the rule that decided it.
// The fallback is reported as "fallback".
func (c *Classifier) Explain(text string) (Mode, string) {
	in := newInput(text)
	for _, r := range c.rules {
		if r.Match(in) {
			return r.Mode, r.Name
		}
	}
	return c.fallback, "fallback"
}

// Rules lists rule names in evaluation order.
func (c *Classifier) Rules() []string {
	names := make([]string, len(c.rules))
	for i, r := range c.rules {
		names[i] = r.Name
	}
	return names
}

var defaultClassifier = New(DefaultPolicy())

// Classify classifies text with the default policy.
func Classify(text string) Mode {
	return defaultClassifier.Classify(text)
}

func newInput(text string) Input {
	lower := strings.ToLower(strings.TrimSpace(text))
	return Input{
		Raw:   text,
		Lower: lower,
		Words: tokenize(lower),
	}
}

// tokenize splits on anything that is not a letter or digit, so "$300K" yields
// "300k" and "St," yields "st".
func tokenize(lower string) []string {
	return strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func containsAny(words []string, set map[string]struct{}) bool {
	for _, w := range words {
		if _, ok := set[w]; ok {
			return true
		}
	}
	return false
}
