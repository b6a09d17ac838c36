package sensitive

import "strings"

// DefaultKeywords is the built-in presence list, checked in order.
func DefaultKeywords() []string {
	return []string{
		"suicide", "suicidal", "kill myself", "killing myself", "kill me",
		"want to die", "end my life", "hurt myself", "cutting myself",
		"overdose", "hang myself", "gun", "shoot", "murder", "rape", "abuse",
		"depression", "anxiety",
	}
}

// DefaultSevereStems are substrings that make a matched keyword severe.
func DefaultSevereStems() []string {
	return []string{"suicid", "kill", "die", "end my life"}
}

// KeywordDetector flags text containing any listed term. Only the first term
// found, in list order, is reported.
type KeywordDetector struct {
	terms       []string
	severeStems []string
}

// NewKeywordDetector builds a detector from an ordered term list.
func NewKeywordDetector(terms, severeStems []string) *KeywordDetector {
	d := &KeywordDetector{}
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			d.terms = append(d.terms, t)
		}
	}
	for _, s := range severeStems {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			d.severeStems = append(d.severeStems, s)
		}
	}
	return d
}

// DefaultKeywordDetector returns a detector over the built-in list.
func DefaultKeywordDetector() *KeywordDetector {
	return NewKeywordDetector(DefaultKeywords(), DefaultSevereStems())
}

// Classify implements Classifier. Unflagged text is low; a matched keyword is
// severe when it contains a severe stem and moderate otherwise.
func (d *KeywordDetector) Classify(text string) Result {
	lower := strings.ToLower(text)
	for _, term := range d.terms {
		if !strings.Contains(lower, term) {
			continue
		}
		severity := SeverityModerate
		for _, stem := range d.severeStems {
			if strings.Contains(term, stem) {
				severity = SeveritySevere
				break
			}
		}
		return Result{
			Matches:    []Match{{Tag: term, Term: term}},
			Severity:   severity,
			Flagged:    true,
			Keyword:    term,
			PrimaryTag: term,
		}
	}
	return Result{Matches: []Match{}, Severity: SeverityLow}
}
