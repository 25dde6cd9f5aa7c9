package vision

// Likelihood is the five-point ordinal scale returned by the safe-search
// API for each category.
type Likelihood string

const (
	LikelihoodVeryUnlikely Likelihood = "VERY_UNLIKELY"
	LikelihoodUnlikely     Likelihood = "UNLIKELY"
	LikelihoodPossible     Likelihood = "POSSIBLE"
	LikelihoodLikely       Likelihood = "LIKELY"
	LikelihoodVeryLikely   Likelihood = "VERY_LIKELY"
	LikelihoodUnknown      Likelihood = "UNKNOWN"
)

// Score maps the ordinal label to a fixed numeric confidence. Unknown or
// missing labels map to the neutral midpoint, never to "safe".
func (l Likelihood) Score() float64 {
	switch l {
	case LikelihoodVeryLikely:
		return 0.95
	case LikelihoodLikely:
		return 0.75
	case LikelihoodPossible:
		return 0.50
	case LikelihoodUnlikely:
		return 0.25
	case LikelihoodVeryUnlikely:
		return 0.05
	default:
		return 0.50
	}
}

// SafeSearch holds the categorical labels for one image.
type SafeSearch struct {
	Adult    Likelihood `json:"adult"`
	Spoof    Likelihood `json:"spoof"`
	Medical  Likelihood `json:"medical"`
	Violence Likelihood `json:"violence"`
	Racy     Likelihood `json:"racy"`
}

// Scores holds the numeric per-category confidences in [0,1].
type Scores struct {
	Adult    float64 `json:"adult"`
	Racy     float64 `json:"racy"`
	Violence float64 `json:"violence"`
	Medical  float64 `json:"medical"`
	Spoof    float64 `json:"spoof"`
}

// Scores converts the categorical labels to numeric confidences.
func (s SafeSearch) Scores() Scores {
	return Scores{
		Adult:    s.Adult.Score(),
		Racy:     s.Racy.Score(),
		Violence: s.Violence.Score(),
		Medical:  s.Medical.Score(),
		Spoof:    s.Spoof.Score(),
	}
}

// Thresholds are the per-category unsafe cutoffs. A score equal to the
// threshold counts as unsafe.
type Thresholds struct {
	Adult    float64
	Racy     float64
	Violence float64
}

// DefaultThresholds returns the default safety thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Adult:    0.6,
		Racy:     0.7,
		Violence: 0.7,
	}
}

// Unsafe reports whether any gated category meets or exceeds its threshold.
func (s Scores) Unsafe(t Thresholds) bool {
	return s.Adult >= t.Adult || s.Racy >= t.Racy || s.Violence >= t.Violence
}

// UnsafeCategories returns the names of the categories meeting or exceeding
// their thresholds, in a fixed order.
func (s Scores) UnsafeCategories(t Thresholds) []string {
	var cats []string
	if s.Adult >= t.Adult {
		cats = append(cats, "adult")
	}
	if s.Racy >= t.Racy {
		cats = append(cats, "racy")
	}
	if s.Violence >= t.Violence {
		cats = append(cats, "violence")
	}
	return cats
}

// Map returns the scores as a category-keyed map for verdict reporting.
func (s Scores) Map() map[string]float64 {
	return map[string]float64{
		"adult":    s.Adult,
		"racy":     s.Racy,
		"violence": s.Violence,
		"medical":  s.Medical,
		"spoof":    s.Spoof,
	}
}
