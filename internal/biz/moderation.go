package biz

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"forumguard/internal/conf"
	"forumguard/internal/pkg/hash"
	"forumguard/internal/pkg/memcache"
	"forumguard/internal/pkg/vision"

	"github.com/go-kratos/kratos/v2/log"
)

// ErrMissingImageURL is returned when an image moderation request carries
// no image reference.
var ErrMissingImageURL = errors.New("image url is required")

// VisionAPIName is the quota ledger name of the paid safe-search API.
const VisionAPIName = "vision"

// ReasonCode explains a verdict. Every code the service can emit is
// listed here; clients must treat unknown codes as informational.
type ReasonCode string

const (
	ReasonProfanity         ReasonCode = "PROFANITY_DETECTED"
	ReasonSpam              ReasonCode = "SPAM_SUSPECTED"
	ReasonAdult             ReasonCode = "ADULT_CONTENT"
	ReasonRacy              ReasonCode = "RACY_CONTENT"
	ReasonViolence          ReasonCode = "VIOLENT_CONTENT"
	ReasonKnownBadImage     ReasonCode = "KNOWN_BAD_IMAGE"
	ReasonClassifierError   ReasonCode = "CLASSIFIER_ERROR"
	ReasonQuotaAutoApproved ReasonCode = "QUOTA_AUTO_APPROVED"
	ReasonQuotaFallbackWarn ReasonCode = "QUOTA_FALLBACK_WARN"
)

// Verdict is a moderation decision. Allowed=false always carries at
// least one reason code; auto-approvals caused by quota state disclose
// themselves the same way so the caller can tell a scanned pass from an
// unscanned one.
type Verdict struct {
	RequestID   string             `json:"request_id"`
	Allowed     bool               `json:"allowed"`
	Flagged     bool               `json:"flagged"`
	ReasonCodes []ReasonCode       `json:"reason_codes,omitempty"`
	Terms       []string           `json:"terms,omitempty"`
	Scores      map[string]float64 `json:"scores,omitempty"`
	Message     string             `json:"message"`
	CacheHit    bool               `json:"cache_hit"`
	ProcessedAt time.Time          `json:"processed_at"`
}

// ImageAnnotator classifies an image by URL.
type ImageAnnotator interface {
	AnnotateURL(ctx context.Context, imageURL string) (*vision.Annotation, error)
}

// NewResultCache builds the process-local classification result cache
// from configuration.
func NewResultCache(mc *conf.Moderation) *memcache.Cache[vision.Scores] {
	return memcache.New[vision.Scores](
		time.Duration(mc.CacheTTLHours)*time.Hour,
		mc.CacheMaxEntries,
	)
}

// ModerationUsecase orchestrates text and image moderation: local term
// matching, the result cache, the bad-image registry, quota admission,
// and the paid classifier.
type ModerationUsecase struct {
	quota      *QuotaUsecase
	registry   *RegistryUsecase
	badImages  *BadImageUsecase
	annotator  ImageAnnotator
	cache      *memcache.Cache[vision.Scores]
	thresholds vision.Thresholds
	log        *log.Helper

	now func() time.Time
}

// NewModerationUsecase creates a ModerationUsecase.
func NewModerationUsecase(
	quota *QuotaUsecase,
	registry *RegistryUsecase,
	badImages *BadImageUsecase,
	annotator ImageAnnotator,
	cache *memcache.Cache[vision.Scores],
	mc *conf.Moderation,
	logger log.Logger,
) *ModerationUsecase {
	return &ModerationUsecase{
		quota:     quota,
		registry:  registry,
		badImages: badImages,
		annotator: annotator,
		cache:     cache,
		thresholds: vision.Thresholds{
			Adult:    mc.Thresholds.Adult,
			Racy:     mc.Thresholds.Racy,
			Violence: mc.Thresholds.Violence,
		},
		log: log.NewHelper(logger),
		now: time.Now,
	}
}

// ModerateText classifies a post body against the term registry. It is
// free, deterministic, and never consults external services: empty text
// is trivially clean, blocking terms reject, flag terms approve with a
// review mark.
func (uc *ModerationUsecase) ModerateText(ctx context.Context, requestID, text string) (*Verdict, error) {
	v := &Verdict{
		RequestID:   requestID,
		Allowed:     true,
		ProcessedAt: uc.now().UTC(),
	}
	if strings.TrimSpace(text) == "" {
		v.Message = "Content approved."
		return v, nil
	}

	// Block and flag are independent checks: a post can trip both at once.
	blocked := uc.registry.MatchBlocked(text)
	flagged := uc.registry.MatchFlagged(text)

	if len(blocked) > 0 {
		v.Allowed = false
		v.ReasonCodes = append(v.ReasonCodes, ReasonProfanity)
		v.Terms = append(v.Terms, blocked...)
		v.Message = fmt.Sprintf("Post blocked: contains prohibited terms: %s.", strings.Join(blocked, ", "))
		uc.log.WithContext(ctx).Infof("text %s blocked: %d prohibited terms", requestID, len(blocked))
	}
	if len(flagged) > 0 {
		v.Flagged = true
		v.ReasonCodes = append(v.ReasonCodes, ReasonSpam)
		v.Terms = append(v.Terms, flagged...)
		if v.Allowed {
			v.Message = fmt.Sprintf("Post approved but flagged for review: possible spam terms: %s.", strings.Join(flagged, ", "))
		}
	}
	if v.Allowed && !v.Flagged {
		v.Message = "Content approved."
	}
	return v, nil
}

// ModerateImage classifies an image by URL. The decision ladder is:
// cached result, known-bad fingerprint, quota admission, paid
// classifier. A classifier failure blocks the image (fail closed); an
// exhausted or disabled quota approves it unscanned and says so.
func (uc *ModerationUsecase) ModerateImage(ctx context.Context, requestID, imageURL string) (*Verdict, error) {
	if strings.TrimSpace(imageURL) == "" {
		return nil, ErrMissingImageURL
	}

	cacheKey := hash.HashTextSha256(imageURL)
	if scores, ok := uc.cache.Lookup(cacheKey); ok {
		return uc.scoresVerdict(requestID, scores, true, nil), nil
	}

	var knownPHash int64
	if uc.badImages != nil && uc.badImages.Enabled() {
		match, phash := uc.badImages.Check(ctx, imageURL)
		knownPHash = phash
		if match != nil {
			uc.log.WithContext(ctx).Infof("image %s matched known-bad fingerprint %d (%s)", requestID, match.PHash, match.Category)
			return uc.knownBadVerdict(requestID, match), nil
		}
	}

	adm, err := uc.quota.CheckAdmission(ctx, VisionAPIName)
	if err != nil {
		return nil, err
	}
	if !adm.Allowed {
		return uc.autoApprovedVerdict(requestID, adm.Reason), nil
	}

	ann, err := uc.annotator.AnnotateURL(ctx, imageURL)
	if err != nil {
		uc.log.WithContext(ctx).Errorf("image classification failed for %s: %v", requestID, err)
		return &Verdict{
			RequestID:   requestID,
			Allowed:     false,
			ReasonCodes: []ReasonCode{ReasonClassifierError},
			Message:     "Image rejected: safety classification unavailable, please retry later.",
			ProcessedAt: uc.now().UTC(),
		}, nil
	}

	if err := uc.quota.RecordUsage(ctx, VisionAPIName, 1); err != nil {
		uc.log.WithContext(ctx).Errorf("usage not recorded for %s after paid call: %v", requestID, err)
	}

	uc.cache.Store(cacheKey, ann.Scores)

	var warn []ReasonCode
	if adm.Reason == AdmissionFallbackWarn {
		warn = []ReasonCode{ReasonQuotaFallbackWarn}
	}
	v := uc.scoresVerdict(requestID, ann.Scores, false, warn)

	if !v.Allowed && uc.badImages != nil {
		cats := ann.Scores.UnsafeCategories(uc.thresholds)
		uc.badImages.Record(ctx, knownPHash, cats[0], maxScore(ann.Scores, cats), imageURL, "moderation")
	}
	return v, nil
}

func categoryReason(category string) ReasonCode {
	switch category {
	case "adult":
		return ReasonAdult
	case "racy":
		return ReasonRacy
	default:
		return ReasonViolence
	}
}

func maxScore(s vision.Scores, categories []string) float64 {
	m := s.Map()
	var max float64
	for _, c := range categories {
		if m[c] > max {
			max = m[c]
		}
	}
	return max
}

func (uc *ModerationUsecase) scoresVerdict(requestID string, scores vision.Scores, cacheHit bool, extra []ReasonCode) *Verdict {
	v := &Verdict{
		RequestID:   requestID,
		Scores:      scores.Map(),
		CacheHit:    cacheHit,
		ProcessedAt: uc.now().UTC(),
	}
	cats := scores.UnsafeCategories(uc.thresholds)
	if len(cats) == 0 {
		v.Allowed = true
		v.ReasonCodes = extra
		v.Message = "Image approved."
		return v
	}
	v.Allowed = false
	for _, c := range cats {
		v.ReasonCodes = append(v.ReasonCodes, categoryReason(c))
	}
	v.ReasonCodes = append(v.ReasonCodes, extra...)
	v.Message = fmt.Sprintf("Image rejected: unsafe content detected (%s).", strings.Join(cats, ", "))
	return v
}

func (uc *ModerationUsecase) knownBadVerdict(requestID string, match *BadImage) *Verdict {
	reasons := []ReasonCode{ReasonKnownBadImage}
	if match.Category != "" {
		reasons = append(reasons, categoryReason(match.Category))
	}
	return &Verdict{
		RequestID:   requestID,
		Allowed:     false,
		ReasonCodes: reasons,
		Scores:      map[string]float64{match.Category: match.NSFWScore},
		Message:     "Image rejected: matches previously removed content.",
		ProcessedAt: uc.now().UTC(),
	}
}

// autoApprovedVerdict is the unscanned pass: quota state prevented the
// paid call, so the image goes through with an explicit disclosure
// instead of a silent (and unaffordable) scan.
func (uc *ModerationUsecase) autoApprovedVerdict(requestID, admissionReason string) *Verdict {
	return &Verdict{
		RequestID:   requestID,
		Allowed:     true,
		Flagged:     true,
		ReasonCodes: []ReasonCode{ReasonQuotaAutoApproved, ReasonCode(admissionReason)},
		Message:     "Image approved without safety scan: classifier quota unavailable.",
		ProcessedAt: uc.now().UTC(),
	}
}
