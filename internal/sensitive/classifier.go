// Package sensitive detects crisis-indicating language in chat text.
//
// Two detectors share the Classifier interface: a weighted Lexicon whose
// score is the maximum matched weight, and a KeywordDetector that only
// reports the first term present. They are configured independently and are
// not guaranteed to agree on the same input.
package sensitive

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Severity is the escalation bucket assigned to a piece of text.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityModerate Severity = "moderate"
	SeveritySevere   Severity = "severe"
	// SeverityHigh is only used for policy blocks (personal contact details)
	// sent back to the author; classifiers never produce it.
	SeverityHigh Severity = "high"
)

// Match is a single term hit.
type Match struct {
	Tag    string `json:"tag"`
	Weight int    `json:"weight"`
	Term   string `json:"term"`
}

// Result is the outcome of classifying one text.
type Result struct {
	Matches  []Match  `json:"matches"`
	Score    int      `json:"score"`
	Severity Severity `json:"severity"`
	Flagged  bool     `json:"flagged"`
	// Keyword is the term that decided the severity, empty when not flagged.
	Keyword string `json:"keyword,omitempty"`
	// PrimaryTag is the tag of the deciding match.
	PrimaryTag string `json:"primaryTag,omitempty"`
}

// Tags returns the distinct tags of r's matches in match order.
func (r Result) Tags() []string {
	seen := make(map[string]struct{}, len(r.Matches))
	tags := make([]string, 0, len(r.Matches))
	for _, m := range r.Matches {
		if _, ok := seen[m.Tag]; ok {
			continue
		}
		seen[m.Tag] = struct{}{}
		tags = append(tags, m.Tag)
	}
	return tags
}

// Classifier maps text to tagged matches and a severity. Implementations are
// pure and total: every string, including "", has a result.
type Classifier interface {
	Classify(text string) Result
}

// Kind selects a Classifier implementation.
type Kind string

const (
	KindLexicon Kind = "lexicon"
	KindKeyword Kind = "keyword"
)

// Options configures New.
type Options struct {
	LexiconPath  string
	KeywordsPath string
	Thresholds   Thresholds
}

// New builds the classifier of the given kind, loading rule tables from disk
// when a path is set and falling back to the built-in tables otherwise.
func New(kind Kind, opts Options) (Classifier, error) {
	switch kind {
	case KindLexicon:
		entries := DefaultLexicon()
		if opts.LexiconPath != "" {
			loaded, err := LoadLexicon(opts.LexiconPath)
			if err != nil {
				return nil, err
			}
			entries = loaded
		}
		thresholds := opts.Thresholds
		if thresholds == (Thresholds{}) {
			thresholds = DefaultThresholds()
		}
		return NewLexicon(entries, thresholds), nil
	case KindKeyword, "":
		if opts.KeywordsPath != "" {
			table, err := LoadKeywords(opts.KeywordsPath)
			if err != nil {
				return nil, err
			}
			return NewKeywordDetector(table.Terms, table.SevereStems), nil
		}
		return DefaultKeywordDetector(), nil
	default:
		return nil, fmt.Errorf("sensitive: unknown classifier kind %q", kind)
	}
}

type lexiconFile struct {
	Entries []LexiconEntry `yaml:"entries"`
}

// LoadLexicon reads a weighted rule table from a YAML file of the form
//
//	entries:
//	  - tag: suicide
//	    weight: 10
//	    terms: [suicide, end my life]
func LoadLexicon(path string) ([]LexiconEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sensitive: read lexicon: %w", err)
	}
	var file lexiconFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("sensitive: parse lexicon: %w", err)
	}
	if len(file.Entries) == 0 {
		return nil, fmt.Errorf("sensitive: lexicon %s has no entries", path)
	}
	for i, e := range file.Entries {
		if e.Tag == "" || len(e.Terms) == 0 {
			return nil, fmt.Errorf("sensitive: lexicon entry %d needs a tag and terms", i)
		}
	}
	return file.Entries, nil
}

// KeywordTable is the on-disk form of a presence detector table.
type KeywordTable struct {
	Terms       []string `yaml:"terms"`
	SevereStems []string `yaml:"severeStems"`
}

// LoadKeywords reads a presence-detector table from a YAML file.
func LoadKeywords(path string) (KeywordTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return KeywordTable{}, fmt.Errorf("sensitive: read keywords: %w", err)
	}
	var table KeywordTable
	if err := yaml.Unmarshal(raw, &table); err != nil {
		return KeywordTable{}, fmt.Errorf("sensitive: parse keywords: %w", err)
	}
	if len(table.Terms) == 0 {
		return KeywordTable{}, fmt.Errorf("sensitive: keyword table %s has no terms", path)
	}
	if len(table.SevereStems) == 0 {
		table.SevereStems = DefaultSevereStems()
	}
	return table, nil
}
