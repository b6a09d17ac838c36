package sensitive

import "strings"

// LexiconEntry groups terms that share a tag and weight. Higher weight means
// more severe.
type LexiconEntry struct {
	Tag    string   `yaml:"tag" json:"tag"`
	Weight int      `yaml:"weight" json:"weight"`
	Terms  []string `yaml:"terms" json:"terms"`
}

// Thresholds are inclusive lower bounds for the severe and moderate buckets.
type Thresholds struct {
	Severe   int
	Moderate int
}

// DefaultThresholds returns severe >= 9, moderate >= 5.
func DefaultThresholds() Thresholds {
	return Thresholds{Severe: 9, Moderate: 5}
}

// Bucket maps a score to its severity.
func (t Thresholds) Bucket(score int) Severity {
	switch {
	case score >= t.Severe:
		return SeveritySevere
	case score >= t.Moderate:
		return SeverityModerate
	default:
		return SeverityLow
	}
}

// DefaultLexicon returns the built-in weighted table.
func DefaultLexicon() []LexiconEntry {
	return []LexiconEntry{
		{Tag: "suicide", Weight: 10, Terms: []string{"suicide", "end my life", "kill myself", "self harm", "self-harm", "hang myself", "die", "i want to die"}},
		{Tag: "self_harm", Weight: 9, Terms: []string{"cutting", "cut myself", "hurt myself", "bleeding on purpose"}},
		{Tag: "violence", Weight: 8, Terms: []string{"violence", "attack", "hurt someone", "fight", "assault"}},
		{Tag: "abuse", Weight: 8, Terms: []string{"abuse", "domestic violence", "beaten", "harassed", "molested"}},
		{Tag: "sexual_violence", Weight: 9, Terms: []string{"rape", "sexual assault", "forced", "coerced"}},
		{Tag: "bullying", Weight: 6, Terms: []string{"bully", "ragging", "tease", "humiliate"}},
		{Tag: "harassment", Weight: 6, Terms: []string{"harass", "stalk", "threaten"}},
		{Tag: "extremism", Weight: 8, Terms: []string{"extremist", "radicalize", "terror", "bomb"}},
		{Tag: "drugs", Weight: 5, Terms: []string{"overdose", "opioids", "heroin", "cocaine", "mdma"}},
		{Tag: "panic", Weight: 5, Terms: []string{"panic", "panic attack", "breathless", "heart racing"}},
		{Tag: "anxiety", Weight: 4, Terms: []string{"anxious", "anxiety", "worry", "nervous"}},
		{Tag: "depression", Weight: 5, Terms: []string{"depressed", "depression", "cant get up", "empty"}},
		{Tag: "lonely", Weight: 3, Terms: []string{"lonely", "alone", "isolated"}},
		{Tag: "stress", Weight: 2, Terms: []string{"stress", "stressed", "pressure"}},
		{Tag: "exam", Weight: 2, Terms: []string{"exam", "exams", "test", "results"}},
	}
}

// Lexicon is the weighted classifier.
type Lexicon struct {
	entries    []LexiconEntry
	thresholds Thresholds
}

// NewLexicon builds a Lexicon. Terms are lower-cased once here.
func NewLexicon(entries []LexiconEntry, thresholds Thresholds) *Lexicon {
	normalized := make([]LexiconEntry, len(entries))
	for i, e := range entries {
		terms := make([]string, 0, len(e.Terms))
		for _, term := range e.Terms {
			if term = strings.ToLower(strings.TrimSpace(term)); term != "" {
				terms = append(terms, term)
			}
		}
		normalized[i] = LexiconEntry{Tag: e.Tag, Weight: e.Weight, Terms: terms}
	}
	return &Lexicon{entries: normalized, thresholds: thresholds}
}

// Thresholds returns the bucketing thresholds in use.
func (l *Lexicon) Thresholds() Thresholds {
	return l.thresholds
}

// Classify reports every matching term in table order. The score is the
// highest matched weight, so co-occurring low-weight terms never raise it.
func (l *Lexicon) Classify(text string) Result {
	lower := strings.ToLower(text)
	result := Result{Matches: []Match{}}

	var decisive *Match
	for _, entry := range l.entries {
		for _, term := range entry.Terms {
			if !strings.Contains(lower, term) {
				continue
			}
			result.Matches = append(result.Matches, Match{Tag: entry.Tag, Weight: entry.Weight, Term: term})
			if entry.Weight > result.Score || decisive == nil {
				result.Score = max(result.Score, entry.Weight)
				m := result.Matches[len(result.Matches)-1]
				decisive = &m
			}
		}
	}

	result.Severity = l.thresholds.Bucket(result.Score)
	result.Flagged = result.Severity != SeverityLow
	if decisive != nil {
		result.Keyword = decisive.Term
		result.PrimaryTag = decisive.Tag
	}
	return result
}
