package captions

import (
	"strings"
)

// ReasonKind is the classification of a platform's playability reason.
type ReasonKind string

const (
	ReasonNoCaptions ReasonKind = "no_captions"
	ReasonNetwork    ReasonKind = "network"
	ReasonUnknown    ReasonKind = "unknown"
)

// ReasonClassifier classifies playability reasons based on keywords
type ReasonClassifier struct {
	networkKeywords    []string
	noCaptionsKeywords []string
}

// NewReasonClassifier creates a classifier with the built-in keyword lists
func NewReasonClassifier() *ReasonClassifier {
	return &ReasonClassifier{
		networkKeywords: []string{
			"unusual traffic", "try again later", "too many requests",
			"rate limit", "temporarily unavailable", "confirm you're not a bot",
		},
		noCaptionsKeywords: []string{
			"subtitles are disabled", "transcripts disabled", "no transcript",
			"private", "unavailable", "removed", "deleted", "terminated",
			"sign in", "age-restricted", "confirm your age",
			"inappropriate for some users", "members-only",
			"not available in your country", "live event",
		},
	}
}

// Classify maps a reason string to a ReasonKind
func (rc *ReasonClassifier) Classify(reason string) ReasonKind {
	reason = strings.ToLower(strings.TrimSpace(reason))
	if reason == "" {
		return ReasonUnknown
	}

	// Network keywords first: "temporarily unavailable" also contains "unavailable"
	for _, keyword := range rc.networkKeywords {
		if strings.Contains(reason, keyword) {
			return ReasonNetwork
		}
	}

	for _, keyword := range rc.noCaptionsKeywords {
		if strings.Contains(reason, keyword) {
			return ReasonNoCaptions
		}
	}

	return ReasonUnknown
}

// AddNetworkKeyword adds a keyword that marks a reason as transient
func (rc *ReasonClassifier) AddNetworkKeyword(keyword string) {
	rc.networkKeywords = append(rc.networkKeywords, strings.ToLower(keyword))
}

// AddNoCaptionsKeyword adds a keyword that marks a reason as permanent
func (rc *ReasonClassifier) AddNoCaptionsKeyword(keyword string) {
	rc.noCaptionsKeywords = append(rc.noCaptionsKeywords, strings.ToLower(keyword))
}
