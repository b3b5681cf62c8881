// ABOUTME: RepairInfo is the ephemeral per-turn result of repair detection
// ABOUTME: Repair types are ordered by priority, most specific first
package models

// RepairType names why a clarification turn is needed.
type RepairType string

const (
	RepairExplicit        RepairType = "explicit_correction"
	RepairLowConfidence   RepairType = "low_confidence"
	RepairNonsensical     RepairType = "nonsensical"
	RepairShortCorrection RepairType = "short_correction"
	RepairPattern         RepairType = "pattern_match"
	RepairGeneral         RepairType = "general"
	RepairNone            RepairType = ""
)

// RepairIndicator is one triggered repair signal.
type RepairIndicator string

const (
	IndicatorLowConfidence   RepairIndicator = "low_stt_confidence"
	IndicatorExplicit        RepairIndicator = "explicit_correction"
	IndicatorNonsensical     RepairIndicator = "nonsensical_token"
	IndicatorShortCorrection RepairIndicator = "short_after_reply"
	IndicatorChildSpeech     RepairIndicator = "child_speech_pattern"
	IndicatorPhonetic        RepairIndicator = "phonetic_confusion"
)

// RepairInfo describes whether and how to repair the conversation.
type RepairInfo struct {
	Needed      bool                     `json:"needed"`
	Indicators  map[RepairIndicator]bool `json:"indicators,omitempty"`
	Type        RepairType               `json:"type,omitempty"`
	Suggestions []string                 `json:"suggestions,omitempty"`
	Response    string                   `json:"response,omitempty"`
}

// Has reports whether an indicator fired.
func (r RepairInfo) Has(ind RepairIndicator) bool {
	return r.Indicators[ind]
}
