package textfilter

import (
	"sync"
)

// Match is one whole-word occurrence of a registered term.
type Match struct {
	Term     string
	Category string
	Position int // rune index of the first rune of the match
}

// Rule is a registered term with its category.
type Rule struct {
	Term     string
	Category string
}

type node struct {
	children map[rune]*node
	failLink *node
	output   []outputPattern
}

type outputPattern struct {
	rule    Rule
	length  int // pattern length in runes, after normalization
	matched string
}

func newNode() *node {
	return &node{children: make(map[rune]*node)}
}

// Matcher finds registered terms in text using an Aho-Corasick automaton.
// A candidate only counts as a match when it occurs as a whole word: the
// runes adjacent to it must not be word runes, so "sinif" never matches
// inside "siniflar". Matching is case-insensitive and diacritic-folded.
type Matcher struct {
	root *node
	size int
	mu   sync.RWMutex
}

// NewMatcher creates an empty Matcher.
func NewMatcher() *Matcher {
	return &Matcher{root: newNode()}
}

// Build replaces the automaton contents with the given rules.
func (m *Matcher) Build(rules []Rule) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.root = newNode()
	m.size = 0
	for _, r := range rules {
		m.addRule(r)
	}
	m.buildFailLinks()
}

// Size returns the number of terms in the automaton.
func (m *Matcher) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *Matcher) addRule(r Rule) {
	normalized := []rune(NormalizeText(r.Term))
	if len(normalized) == 0 {
		return
	}

	cur := m.root
	for _, ch := range normalized {
		if _, ok := cur.children[ch]; !ok {
			cur.children[ch] = newNode()
		}
		cur = cur.children[ch]
	}
	cur.output = append(cur.output, outputPattern{
		rule:    r,
		length:  len(normalized),
		matched: string(normalized),
	})
	m.size++
}

func (m *Matcher) buildFailLinks() {
	queue := make([]*node, 0)
	for _, child := range m.root.children {
		child.failLink = m.root
		queue = append(queue, child)
	}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for ch, child := range cur.children {
			queue = append(queue, child)

			fail := cur.failLink
			for fail != nil && fail.children[ch] == nil {
				fail = fail.failLink
			}
			if fail == nil {
				child.failLink = m.root
			} else {
				child.failLink = fail.children[ch]
				child.output = append(child.output, child.failLink.output...)
			}
		}
	}
}

// Search returns every whole-word match of a registered term in text.
// It is a pure function of (text, registered rules).
func (m *Matcher) Search(text string) []Match {
	m.mu.RLock()
	defer m.mu.RUnlock()

	input := []rune(NormalizeText(text))
	var matches []Match

	cur := m.root
	for i, ch := range input {
		for cur != m.root && cur.children[ch] == nil {
			cur = cur.failLink
		}
		if next, ok := cur.children[ch]; ok {
			cur = next
		}

		for _, out := range cur.output {
			start := i - out.length + 1
			if start > 0 && isWordRune(input[start-1]) {
				continue
			}
			if i+1 < len(input) && isWordRune(input[i+1]) {
				continue
			}
			matches = append(matches, Match{
				Term:     out.rule.Term,
				Category: out.rule.Category,
				Position: start,
			})
		}
	}
	return matches
}

// MatchedTerms returns the distinct registered terms occurring in text,
// in first-occurrence order.
func (m *Matcher) MatchedTerms(text string) []string {
	seen := make(map[string]struct{})
	var terms []string
	for _, match := range m.Search(text) {
		if _, ok := seen[match.Term]; ok {
			continue
		}
		seen[match.Term] = struct{}{}
		terms = append(terms, match.Term)
	}
	return terms
}

// HasMatch reports whether text contains at least one registered term.
func (m *Matcher) HasMatch(text string) bool {
	return len(m.Search(text)) > 0
}
