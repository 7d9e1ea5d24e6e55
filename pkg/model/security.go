package model

import "fmt"

// Feature is one of the fixed, named security capabilities.
type Feature int

const (
	FeatureFirewall Feature = iota
	FeatureIntrusionDetection
	FeaturePrivacy
	FeatureHardening

	numFeatures
)

// Features lists every feature in declaration order.
var Features = [numFeatures]Feature{
	FeatureFirewall,
	FeatureIntrusionDetection,
	FeaturePrivacy,
	FeatureHardening,
}

var featureNames = [numFeatures]string{
	FeatureFirewall:           "firewall",
	FeatureIntrusionDetection: "intrusion-detection",
	FeaturePrivacy:            "privacy",
	FeatureHardening:          "hardening",
}

// NumFeatures is the size of the feature catalog.
const NumFeatures = int(numFeatures)

// String returns the canonical feature name.
func (f Feature) String() string {
	if f.Valid() {
		return featureNames[f]
	}
	return fmt.Sprintf("feature(%d)", int(f))
}

// Valid reports whether f is in the catalog.
func (f Feature) Valid() bool {
	return f >= 0 && f < numFeatures
}

// ParseFeature maps a feature name to its catalog entry. "ids" is accepted
// as an alias of intrusion-detection.
func ParseFeature(name string) (Feature, bool) {
	switch name {
	case "firewall":
		return FeatureFirewall, true
	case "intrusion-detection", "ids":
		return FeatureIntrusionDetection, true
	case "privacy":
		return FeaturePrivacy, true
	case "hardening":
		return FeatureHardening, true
	}
	return -1, false
}

// ToggleRequest asks for one feature to be put into the desired state.
type ToggleRequest struct {
	Feature string `json:"feature"`
	Enabled bool   `json:"enabled"`
}

// ToggleResult is the per-item outcome of a batch.
type ToggleResult struct {
	Feature any    `json:"feature"`
	Enabled any    `json:"enabled"`
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
}

// BatchResult aggregates a batch of toggles.
type BatchResult struct {
	OK      bool           `json:"ok"`
	Results []ToggleResult `json:"results"`
}
