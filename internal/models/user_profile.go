// ABOUTME: UserProfile represents the child's context and preferences
// ABOUTME: Interests merge with set-union semantics so repeated merges are idempotent
package models

import (
	"slices"
	"strings"
	"time"
)

// DefaultAge is used when a profile does not record an age.
const DefaultAge = 6

// AgeGroup buckets ages for token budgets and game eligibility.
type AgeGroup int

const (
	AgeGroupYoung  AgeGroup = iota // 6 and under
	AgeGroupMiddle                 // 7 to 9
	AgeGroupOlder                  // 10 and over
)

func (g AgeGroup) String() string {
	switch g {
	case AgeGroupYoung:
		return "young"
	case AgeGroupMiddle:
		return "middle"
	case AgeGroupOlder:
		return "older"
	default:
		return "unknown"
	}
}

// UserProfile represents user context and preferences
type UserProfile struct {
	UserID      string    `json:"user_id"`
	Name        string    `json:"name"`
	Age         int       `json:"age"`
	Location    string    `json:"location,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
	Language    string    `json:"language,omitempty"`
	Interests   []string  `json:"interests,omitempty"`
	Preferences []string  `json:"preferences,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewUserProfile returns the fresh profile used for unknown users.
func NewUserProfile(userID string) *UserProfile {
	return &UserProfile{
		UserID:      userID,
		Name:        "friend",
		Age:         DefaultAge,
		Language:    "en",
		Interests:   []string{},
		Preferences: []string{},
	}
}

// EffectiveAge returns the age, falling back to DefaultAge.
func (up *UserProfile) EffectiveAge() int {
	if up == nil || up.Age <= 0 {
		return DefaultAge
	}
	return up.Age
}

// AgeGroup buckets the profile's age.
func (up *UserProfile) AgeGroup() AgeGroup {
	age := up.EffectiveAge()
	switch {
	case age <= 6:
		return AgeGroupYoung
	case age <= 9:
		return AgeGroupMiddle
	default:
		return AgeGroupOlder
	}
}

// DisplayName returns the child's name or a friendly default.
func (up *UserProfile) DisplayName() string {
	if up == nil || strings.TrimSpace(up.Name) == "" {
		return "friend"
	}
	return up.Name
}

// MergeInterests adds interests without duplicates (case-insensitive) and
// reports how many were new.
func (up *UserProfile) MergeInterests(interests []string) int {
	added := 0
	for _, interest := range interests {
		interest = strings.TrimSpace(interest)
		if interest == "" || containsFold(up.Interests, interest) {
			continue
		}
		up.Interests = append(up.Interests, interest)
		added++
	}
	return added
}

// MergePreferences adds preferences without duplicates.
func (up *UserProfile) MergePreferences(prefs []string) {
	for _, pref := range prefs {
		if pref != "" && !slices.Contains(up.Preferences, pref) {
			up.Preferences = append(up.Preferences, pref)
		}
	}
}

// containsFold checks if a string slice contains a string, ignoring case
func containsFold(slice []string, item string) bool {
	for _, s := range slice {
		if strings.EqualFold(s, item) {
			return true
		}
	}
	return false
}
