package linking

// Validation reasons.
const (
	ReasonNoData     = "noData"
	ReasonNoSettings = "noSettings"
)

// Validation is the tagged result of ValidateLinkingData.
type Validation struct {
	Valid  bool
	Reason string
}

// Err returns nil for a valid result and a *ValidationError otherwise.
func (v Validation) Err() error {
	if v.Valid {
		return nil
	}
	return &ValidationError{Reason: v.Reason}
}

// ValidateLinkingData checks the preconditions of a linking pass. Missing
// data is reported before missing settings.
func ValidateLinkingData(hasEvents, hasSchedules, hasSettings bool) Validation {
	if !hasEvents && !hasSchedules {
		return Validation{Reason: ReasonNoData}
	}
	if !hasSettings {
		return Validation{Reason: ReasonNoSettings}
	}
	return Validation{Valid: true}
}
