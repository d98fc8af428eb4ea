// Package analysis provides lightweight lexical analysis of user prompts:
// keyword extraction and domain classification. Both are deterministic and
// make no model calls.
package analysis

import "strings"

// stopWords are filler tokens excluded from keyword extraction.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "help": {}, "me": {}, "please": {},
}

// domainRule pairs a domain name with its trigger terms. Order matters:
// the first matching rule wins, so earlier domains take precedence when a
// prompt mentions terms from several.
type domainRule struct {
	name  string
	terms []string
}

// domainRules is the classification table. Coding stays first.
var domainRules = []domainRule{
	{"coding", []string{"code", "programming", "function", "variable", "debug", "api", "database", "algorithm"}},
	{"writing", []string{"write", "essay", "article", "content", "blog", "story", "grammar"}},
	{"business", []string{"business", "strategy", "marketing", "sales", "revenue", "customer", "market"}},
	{"design", []string{"design", "ui", "ux", "interface", "layout", "color", "typography"}},
	{"data", []string{"data", "analysis", "statistics", "chart", "visualization", "dataset"}},
}

// GeneralDomain is returned when no rule matches.
const GeneralDomain = "general"

// ExtractKeywords returns the lowercased tokens of the prompt longer than
// three characters, excluding stop words. Duplicates are preserved in order
// of appearance; callers dedupe as needed.
func ExtractKeywords(prompt string) []string {
	var keywords []string
	for _, tok := range strings.Fields(strings.ToLower(prompt)) {
		if len(tok) <= 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		keywords = append(keywords, tok)
	}
	return keywords
}

// DetectDomain classifies the prompt into one of the known domains, or
// GeneralDomain if nothing matches. Matching is substring-based on the
// lowercased prompt, first rule wins.
func DetectDomain(prompt string) string {
	lower := strings.ToLower(prompt)
	for _, rule := range domainRules {
		for _, term := range rule.terms {
			if strings.Contains(lower, term) {
				return rule.name
			}
		}
	}
	return GeneralDomain
}

// Domains returns the names of all known domains in precedence order.
func Domains() []string {
	names := make([]string, len(domainRules))
	for i, r := range domainRules {
		names[i] = r.name
	}
	return names
}
