// Package privacy screens selected text for secrets before it leaves the machine.
package privacy

import (
	"regexp"
	"strings"
)

type Category string

const (
	CreditCard  Category = "credit_card"
	APIKey      Category = "api_key"
	Password    Category = "password"
	OtherSecret Category = "other_secret"
)

// Verdict is the outcome of Classify. Category is empty when Allowed.
type Verdict struct {
	Allowed  bool
	Category Category
	// Label names the rule that matched, for log lines.
	Label string
}

type rule struct {
	category Category
	label    string
	re       *regexp.Regexp
	// find, when set, replaces re and returns ascending non-overlapping spans.
	find     func(string) [][]int
}

func newRule(c Category, label, pattern string) rule {
	return rule{category: c, label: label, re: regexp.MustCompile(`(?i)` + pattern)}
}

var cardRule = rule{
	category: CreditCard,
	label:    "card number",
	find:     cardSpans,
}

// A digit run of at least 13 digits with single space or dash separators.
var digitRun = regexp.MustCompile(`\b\d(?:[ -]?\d){12,}\b`)

var baseRules = []rule{
	cardRule,

	newRule(APIKey, "openai key", `\bsk-[a-z0-9_-]{20,}`),
	newRule(APIKey, "github token", `\bgh[pousr]_[a-z0-9]{36,}\b`),
	newRule(APIKey, "aws access key", `\bAKIA[0-9A-Z]{16}\b`),
	newRule(APIKey, "bearer token", `\bbearer\s+[a-z0-9\-_.=]{20,}`),
	newRule(APIKey, "jwt", `\beyJ[a-z0-9_-]+\.eyJ[a-z0-9_-]+\.[a-z0-9_-]+`),
	newRule(APIKey, "api key assignment", `\bapi[_-]?key\s*[:=]\s*['"][^'"]+['"]`),
	newRule(APIKey, "access token assignment", `\baccess[_-]?token\s*[:=]\s*['"][^'"]+['"]`),
	newRule(APIKey, "secret key assignment", `\bsecret[_-]?key\s*[:=]\s*['"][^'"]+['"]`),

	newRule(Password, "password assignment", `\b(?:password|passwd|pwd|pass)\s*[:=]\s*['"][^'"]{6,}['"]`),

	newRule(OtherSecret, "private key block", `-----BEGIN (?:RSA |DSA |EC |OPENSSH |ENCRYPTED )?PRIVATE KEY-----`),
	newRule(OtherSecret, "private key assignment", `\bprivate[_-]?key\s*[:=]\s*['"][^'"]+['"]`),
	newRule(OtherSecret, "database url", `\b(?:mysql|postgres(?:ql)?|mongodb(?:\+srv)?|redis)://[^\s:/@]+:[^\s@]+@`),
	newRule(OtherSecret, "national id", `\b[1-9]\d{5}(?:18|19|20)\d{2}(?:0[1-9]|1[0-2])(?:0[1-9]|[12]\d|3[01])\d{3}[\dx]\b`),
}

var strictRules = []rule{
	newRule(OtherSecret, "email address", `\b[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}\b`),
	newRule(OtherSecret, "mobile number", `\b1[3-9]\d{9}\b`),
	newRule(OtherSecret, "phone number", `(?:\+?1[-.\s]?)?\(?\b\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`),
	newRule(OtherSecret, "bitcoin address", `\b[13][a-km-zA-HJ-NP-Z1-9]{25,34}\b`),
	newRule(OtherSecret, "ethereum address", `\b0x[a-f0-9]{40}\b`),
}

// Filter classifies text against a fixed rule set. The zero value is not
// usable; call New.
type Filter struct {
	rules []rule
}

// New returns a filter. Strict mode additionally blocks personal contact
// details and wallet addresses.
func New(strict bool) *Filter {
	rules := append([]rule(nil), baseRules...)
	if strict {
		rules = append(rules, strictRules...)
	}
	return &Filter{rules: rules}
}

// Classify reports whether text may be sent to the model. The first matching
// rule decides the category.
func (f *Filter) Classify(text string) Verdict {
	if strings.TrimSpace(text) == "" {
		return Verdict{Allowed: true}
	}
	for _, r := range f.rules {
		if r.matches(text) {
			return Verdict{Category: r.category, Label: r.label}
		}
	}
	return Verdict{Allowed: true}
}

// Match is one sensitive span found in a text.
type Match struct {
	Category   Category
	Label      string
	Start, End int
}

// Find returns every span any rule matches, in rule order.
func (f *Filter) Find(text string) []Match {
	var out []Match
	for _, r := range f.rules {
		for _, loc := range r.spans(text) {
			out = append(out, Match{Category: r.category, Label: r.label, Start: loc[0], End: loc[1]})
		}
	}
	return out
}

// Redact replaces every sensitive span with a [REDACTED-<category>] marker.
func (f *Filter) Redact(text string) string {
	for _, r := range f.rules {
		marker := "[REDACTED-" + string(r.category) + "]"
		if r.find == nil {
			text = r.re.ReplaceAllLiteralString(text, marker)
			continue
		}
		spans := r.find(text)
		if len(spans) == 0 {
			continue
		}
		var b strings.Builder
		last := 0
		for _, sp := range spans {
			b.WriteString(text[last:sp[0]])
			b.WriteString(marker)
			last = sp[1]
		}
		b.WriteString(text[last:])
		text = b.String()
	}
	return text
}

func (r rule) spans(text string) [][]int {
	if r.find != nil {
		return r.find(text)
	}
	return r.re.FindAllStringIndex(text, -1)
}

func (r rule) matches(text string) bool {
	if r.find != nil {
		return len(r.find(text)) > 0
	}
	return r.re.MatchString(text)
}

// cardSpans returns Luhn-valid card numbers. Candidates start and end on digit
// group boundaries, so an unrelated leading number cannot hide a card. A group
// longer than a card is tried at every digit.
func cardSpans(text string) [][]int {
	var out [][]int
	for _, run := range digitRun.FindAllStringIndex(text, -1) {
		groups := digitGroups(text[run[0]:run[1]], run[0])
		for i := 0; i < len(groups); {
			span, next, ok := cardAt(text, groups, i)
			if !ok {
				i++
				continue
			}
			out = append(out, span)
			i = next
		}
	}
	return out
}

// digitGroups splits a digit run into [start, end) groups, offset by base.
func digitGroups(run string, base int) [][2]int {
	var groups [][2]int
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		if end-start > 19 {
			for i := start; i < end; i++ {
				groups = append(groups, [2]int{base + i, base + i + 1})
			}
		} else {
			groups = append(groups, [2]int{base + start, base + end})
		}
		start = -1
	}
	for i := 0; i < len(run); i++ {
		if run[i] >= '0' && run[i] <= '9' {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(run))
	return groups
}

// cardAt finds the longest valid card starting at groups[i].
func cardAt(text string, groups [][2]int, i int) (span []int, next int, ok bool) {
	digits, best := 0, -1
	for j := i; j < len(groups); j++ {
		digits += groups[j][1] - groups[j][0]
		if digits > 19 {
			break
		}
		if digits >= 13 && luhnValid(text[groups[i][0]:groups[j][1]]) {
			best = j
		}
	}
	if best < 0 {
		return nil, 0, false
	}
	return []int{groups[i][0], groups[best][1]}, best + 1, true
}

// luhnValid checks a card candidate of 13 to 19 digits, separators ignored.
func luhnValid(candidate string) bool {
	var digits []int
	for _, c := range candidate {
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, int(c-'0'))
		case c == ' ' || c == '-':
		default:
			return false
		}
	}
	if len(digits) < 13 || len(digits) > 19 {
		return false
	}
	sum := 0
	for i := len(digits) - 1; i >= 0; i-- {
		d := digits[i]
		if (len(digits)-1-i)%2 == 1 {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
	}
	return sum%10 == 0
}
