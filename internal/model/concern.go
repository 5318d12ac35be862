package model

import "strings"

// Concern identifies a skin, health or environmental dimension a caller cares about.
type Concern string

const (
	ConcernAcne              Concern = "acne"
	ConcernSensitiveSkin     Concern = "sensitive_skin"
	ConcernFragranceFree     Concern = "fragrance_free"
	ConcernEco               Concern = "eco"
	ConcernAntiAging         Concern = "anti_aging"
	ConcernHyperpigmentation Concern = "hyperpigmentation"
)

// CanonicalConcerns lists every recognized concern in evaluation order.
// Notes are always emitted in this order so output is reproducible.
var CanonicalConcerns = []Concern{
	ConcernAcne,
	ConcernSensitiveSkin,
	ConcernFragranceFree,
	ConcernEco,
	ConcernAntiAging,
	ConcernHyperpigmentation,
}

var concernLabels = map[Concern]string{
	ConcernAcne:              "Acne",
	ConcernSensitiveSkin:     "Sensitive skin",
	ConcernFragranceFree:     "Fragrance-free",
	ConcernEco:               "Eco",
	ConcernAntiAging:         "Anti-aging",
	ConcernHyperpigmentation: "Hyperpigmentation",
}

// ParseConcern maps caller input ("Sensitive-Skin", " eco ") to a Concern.
// The second return value is false for unrecognized identifiers.
func ParseConcern(raw string) (Concern, bool) {
	s := strings.ToLower(strings.TrimSpace(raw))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	c := Concern(s)
	_, ok := concernLabels[c]
	return c, ok
}

// Label returns a human-readable name for the concern.
func (c Concern) Label() string {
	if l, ok := concernLabels[c]; ok {
		return l
	}
	return string(c)
}
