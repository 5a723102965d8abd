// Package models defines flow type definitions to avoid circular imports.
package models

// TopState is the conversation-level mode.
type TopState string

// ProfileStep is the last question asked within the profile dialog.
type ProfileStep string

// PreferenceStep is the last question asked within the preference dialog.
type PreferenceStep string

// Top state constants.
const (
	TopStateIdle       TopState = "idle"
	TopStateProfile    TopState = "profile-dialog"
	TopStatePreference TopState = "preference-dialog"
	TopStateFileUpload TopState = "file-upload"
	TopStateHelp       TopState = "help"
)

// Profile dialog steps.
const (
	ProfileStepNone            ProfileStep = "none"
	ProfileStepAwaitingName    ProfileStep = "awaiting-name"
	ProfileStepAwaitingAge     ProfileStep = "awaiting-age"
	ProfileStepAwaitingAddress ProfileStep = "awaiting-address"
)

// Preference dialog steps.
const (
	PreferenceStepNone                    PreferenceStep = "none"
	PreferenceStepAwaitingSlot            PreferenceStep = "awaiting-slot"
	PreferenceStepAwaitingNoMeetingPeriod PreferenceStep = "awaiting-no-meeting-period"
	PreferenceStepAwaitingTransportation  PreferenceStep = "awaiting-transportation"
)

// IsValid reports whether s is a known profile step.
func (s ProfileStep) IsValid() bool {
	switch s {
	case ProfileStepNone, ProfileStepAwaitingName, ProfileStepAwaitingAge, ProfileStepAwaitingAddress:
		return true
	}
	return false
}

// IsValid reports whether s is a known preference step.
func (s PreferenceStep) IsValid() bool {
	switch s {
	case PreferenceStepNone, PreferenceStepAwaitingSlot, PreferenceStepAwaitingNoMeetingPeriod, PreferenceStepAwaitingTransportation:
		return true
	}
	return false
}
