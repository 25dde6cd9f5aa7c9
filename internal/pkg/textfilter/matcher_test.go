package textfilter

import (
	"reflect"
	"testing"
)

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "lowercase",
			input:    "HELLO WORLD",
			expected: "hello world",
		},
		{
			name:     "unicode diacritics",
			input:    "café résumé",
			expected: "cafe resume",
		},
		{
			name:     "turkish text",
			input:    "Bu SINIF güzel",
			expected: "bu sinif guzel",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
		{
			name:     "punctuation preserved",
			input:    "Hey! What?",
			expected: "hey! what?",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := NormalizeText(tt.input)
			if result != tt.expected {
				t.Errorf("NormalizeText(%q) = %q; want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestMatcher_WholeWordOnly(t *testing.T) {
	m := NewMatcher()
	m.Build([]Rule{
		{Term: "sinif", Category: "spam"},
		{Term: "class", Category: "spam"},
	})

	tests := []struct {
		name  string
		text  string
		terms []string
	}{
		{
			name:  "whole word matches",
			text:  "bu sinif güzel",
			terms: []string{"sinif"},
		},
		{
			name:  "suffix does not match",
			text:  "siniflar",
			terms: nil,
		},
		{
			name:  "prefix does not match",
			text:  "birsinif",
			terms: nil,
		},
		{
			name:  "embedded does not match",
			text:  "classroom",
			terms: nil,
		},
		{
			name:  "word at start of text",
			text:  "class is over",
			terms: []string{"class"},
		},
		{
			name:  "word at end of text",
			text:  "first class",
			terms: []string{"class"},
		},
		{
			name:  "punctuation is a boundary",
			text:  "what a class!",
			terms: []string{"class"},
		},
		{
			name:  "case insensitive",
			text:  "CLASS dismissed",
			terms: []string{"class"},
		},
		{
			name:  "empty text",
			text:  "",
			terms: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.MatchedTerms(tt.text)
			if !reflect.DeepEqual(got, tt.terms) {
				t.Errorf("MatchedTerms(%q) = %v; want %v", tt.text, got, tt.terms)
			}
		})
	}
}

func TestMatcher_Phrases(t *testing.T) {
	m := NewMatcher()
	m.Build([]Rule{
		{Term: "free money", Category: "spam"},
		{Term: "money", Category: "spam"},
	})

	matches := m.Search("get free money now")
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches (phrase and word), got %d: %v", len(matches), matches)
	}

	terms := m.MatchedTerms("get free money now")
	want := []string{"free money", "money"}
	if !reflect.DeepEqual(terms, want) {
		t.Errorf("MatchedTerms = %v; want %v", terms, want)
	}
}

func TestMatcher_DeduplicatesRepeatedTerms(t *testing.T) {
	m := NewMatcher()
	m.Build([]Rule{{Term: "spam", Category: "spam"}})

	terms := m.MatchedTerms("spam spam spam")
	if !reflect.DeepEqual(terms, []string{"spam"}) {
		t.Errorf("expected deduplicated terms, got %v", terms)
	}
}

func TestMatcher_DiacriticFolding(t *testing.T) {
	m := NewMatcher()
	m.Build([]Rule{{Term: "güzel", Category: "test"}})

	if !m.HasMatch("cok guzel bir gun") {
		t.Error("expected diacritic-folded rule to match plain text")
	}
	if !m.HasMatch("çok güzel bir gün") {
		t.Error("expected rule to match accented text")
	}
}

func TestMatcher_RebuildReplacesRules(t *testing.T) {
	m := NewMatcher()
	m.Build([]Rule{{Term: "old", Category: "test"}})
	if !m.HasMatch("the old rule") {
		t.Fatal("expected match before rebuild")
	}

	m.Build([]Rule{{Term: "new", Category: "test"}})
	if m.HasMatch("the old rule") {
		t.Error("expected old rule to be gone after rebuild")
	}
	if !m.HasMatch("the new rule") {
		t.Error("expected new rule to match after rebuild")
	}
	if m.Size() != 1 {
		t.Errorf("expected size 1, got %d", m.Size())
	}
}

func TestMatcher_CategoryAndPosition(t *testing.T) {
	m := NewMatcher()
	m.Build([]Rule{{Term: "bad", Category: "profanity"}})

	matches := m.Search("this is bad")
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Category != "profanity" {
		t.Errorf("expected category profanity, got %s", matches[0].Category)
	}
	if matches[0].Position != 8 {
		t.Errorf("expected position 8, got %d", matches[0].Position)
	}
}
