package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"forumguard/internal/conf"
	"forumguard/internal/pkg/textfilter"

	"github.com/go-kratos/kratos/v2/log"
)

// ErrEmptyTerm is returned when a term rule has no term.
var ErrEmptyTerm = errors.New("term must not be empty")

// TermKind distinguishes blocking terms from flag-for-review terms.
type TermKind string

const (
	// TermKindBlock terms reject the post outright.
	TermKindBlock TermKind = "block"
	// TermKindFlag terms approve the post but mark it for review.
	TermKindFlag TermKind = "flag"
)

// ParseTermKind validates a kind string.
func ParseTermKind(s string) (TermKind, error) {
	switch TermKind(s) {
	case TermKindBlock, TermKindFlag:
		return TermKind(s), nil
	}
	return "", fmt.Errorf("invalid term kind %q", s)
}

// TermRule is a persisted moderation term.
type TermRule struct {
	ID        int64     `json:"id"`
	Term      string    `json:"term"`
	Category  string    `json:"category"`
	Kind      TermKind  `json:"kind"`
	AddedBy   string    `json:"added_by"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TermRepo persists term rules.
type TermRepo interface {
	Create(ctx context.Context, rule *TermRule) (*TermRule, error)
	Delete(ctx context.Context, term string, kind TermKind) error
	List(ctx context.Context, kind TermKind, category string, limit, offset int32) ([]*TermRule, error)
	ListAll(ctx context.Context) ([]*TermRule, error)
	Count(ctx context.Context, kind TermKind, category string) (int64, error)
}

// RegistryUsecase maintains the term registry and the compiled matchers
// the text classifier runs against. The matchers always hold the union
// of the configured terms and the persisted ones; persisted rules win on
// a term registered both ways.
type RegistryUsecase struct {
	repo    TermRepo
	static  *conf.Moderation
	blocked *textfilter.Matcher
	flagged *textfilter.Matcher
	log     *log.Helper
}

// NewRegistryUsecase creates the registry and compiles the matchers. A
// failed initial load from storage degrades to the configured terms only;
// the next successful Rebuild picks the persisted rules up.
func NewRegistryUsecase(repo TermRepo, mc *conf.Moderation, logger log.Logger) *RegistryUsecase {
	uc := &RegistryUsecase{
		repo:    repo,
		static:  mc,
		blocked: textfilter.NewMatcher(),
		flagged: textfilter.NewMatcher(),
		log:     log.NewHelper(logger),
	}
	if _, err := uc.Rebuild(context.Background()); err != nil {
		uc.log.Warnf("initial term registry load failed, serving configured terms only: %v", err)
		uc.compile(nil)
	}
	return uc
}

// staticRules returns the configured terms as rules.
func (uc *RegistryUsecase) staticRules() []*TermRule {
	rules := make([]*TermRule, 0, len(uc.static.ProfanityTerms)+len(uc.static.SpamTerms))
	for _, t := range uc.static.ProfanityTerms {
		rules = append(rules, &TermRule{Term: t.Term, Category: t.Category, Kind: TermKindBlock})
	}
	for _, t := range uc.static.SpamTerms {
		rules = append(rules, &TermRule{Term: t.Term, Category: t.Category, Kind: TermKindFlag})
	}
	return rules
}

// compile rebuilds both matchers from the configured terms plus persisted,
// deduplicated on (term, kind) with persisted rules taking precedence.
func (uc *RegistryUsecase) compile(persisted []*TermRule) int {
	type key struct {
		term string
		kind TermKind
	}
	merged := make(map[key]*TermRule)
	for _, r := range uc.staticRules() {
		merged[key{strings.ToLower(r.Term), r.Kind}] = r
	}
	for _, r := range persisted {
		merged[key{strings.ToLower(r.Term), r.Kind}] = r
	}

	var blockRules, flagRules []textfilter.Rule
	for _, r := range merged {
		rule := textfilter.Rule{Term: r.Term, Category: r.Category}
		if r.Kind == TermKindFlag {
			flagRules = append(flagRules, rule)
		} else {
			blockRules = append(blockRules, rule)
		}
	}
	uc.blocked.Build(blockRules)
	uc.flagged.Build(flagRules)
	return len(merged)
}

// Rebuild reloads persisted rules and recompiles the matchers, returning
// the number of active terms.
func (uc *RegistryUsecase) Rebuild(ctx context.Context) (int, error) {
	persisted, err := uc.repo.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load term rules: %w", err)
	}
	total := uc.compile(persisted)
	uc.log.Infof("term registry rebuilt: %d terms (%d persisted)", total, len(persisted))
	return total, nil
}

// AddTerm registers a new term and recompiles the matchers.
func (uc *RegistryUsecase) AddTerm(ctx context.Context, term, category string, kind TermKind, addedBy string) (*TermRule, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, ErrEmptyTerm
	}
	rule, err := uc.repo.Create(ctx, &TermRule{
		Term:     term,
		Category: category,
		Kind:     kind,
		AddedBy:  addedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create term rule: %w", err)
	}
	if _, err := uc.Rebuild(ctx); err != nil {
		uc.log.Errorf("term %q saved but matcher rebuild failed: %v", term, err)
	}
	return rule, nil
}

// RemoveTerm deletes a persisted term and recompiles the matchers. A term
// that only exists in configuration cannot be removed at runtime.
func (uc *RegistryUsecase) RemoveTerm(ctx context.Context, term string, kind TermKind) error {
	if err := uc.repo.Delete(ctx, strings.TrimSpace(term), kind); err != nil {
		return fmt.Errorf("failed to delete term rule: %w", err)
	}
	if _, err := uc.Rebuild(ctx); err != nil {
		uc.log.Errorf("term %q deleted but matcher rebuild failed: %v", term, err)
	}
	return nil
}

// ListTerms pages through persisted term rules.
func (uc *RegistryUsecase) ListTerms(ctx context.Context, kind TermKind, category string, limit, offset int32) ([]*TermRule, int64, error) {
	rules, err := uc.repo.List(ctx, kind, category, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list term rules: %w", err)
	}
	total, err := uc.repo.Count(ctx, kind, category)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count term rules: %w", err)
	}
	return rules, total, nil
}

// MatchBlocked returns the distinct blocking terms found whole-word in
// text, in first-occurrence order.
func (uc *RegistryUsecase) MatchBlocked(text string) []string {
	return uc.blocked.MatchedTerms(text)
}

// MatchFlagged returns the distinct flag-for-review terms found
// whole-word in text.
func (uc *RegistryUsecase) MatchFlagged(text string) []string {
	return uc.flagged.MatchedTerms(text)
}
