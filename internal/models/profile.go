// internal/models/profile.go
package models

// PreferenceProfile holds a user's declared matching criteria. It is
// read-only input to the scoring engine; the preferences UI owns mutation.
type PreferenceProfile struct {
	UserID     string   `json:"userId"`
	Topics     []string `json:"topics"`
	FundingMin float64  `json:"fundingMin"`
	FundingMax float64  `json:"fundingMax"`
	Agencies   []string `json:"agencies"`

	// DeadlineToleranceDays of 0 means any deadline is acceptable.
	DeadlineToleranceDays int `json:"deadlineToleranceDays"`

	AcceptUnspecifiedFunding  bool `json:"acceptUnspecifiedFunding"`
	AcceptUnspecifiedDeadline bool `json:"acceptUnspecifiedDeadline"`
}

// DefaultProfile is the profile used when a user has never saved
// preferences. A missing profile is not an error condition.
func DefaultProfile(userID string) *PreferenceProfile {
	return &PreferenceProfile{
		UserID:                    userID,
		Topics:                    []string{},
		FundingMin:                0,
		FundingMax:                0, // 0 max means unbounded
		Agencies:                  []string{},
		DeadlineToleranceDays:     0,
		AcceptUnspecifiedFunding:  true,
		AcceptUnspecifiedDeadline: true,
	}
}
