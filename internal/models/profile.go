package models

import "time"

// MeetingSlot is the preferred meeting length.
type MeetingSlot string

// NoMeetingPeriod is the part of the day the user wants kept free.
type NoMeetingPeriod string

// Transportation is how the user travels to meetings.
type Transportation string

// Meeting slot values offered by the preference dialog.
const (
	MeetingSlotHalfHour MeetingSlot = "half hour"
	MeetingSlotOneHour  MeetingSlot = "one hour"
	MeetingSlotTwoHours MeetingSlot = "two hours"
	MeetingSlotNone     MeetingSlot = "none"
)

// No-meeting period values offered by the preference dialog.
const (
	NoMeetingBefore8AM   NoMeetingPeriod = "before 8am"
	NoMeetingDuringLunch NoMeetingPeriod = "during lunch time"
	NoMeetingAfter5PM    NoMeetingPeriod = "after 5pm"
	NoMeetingPeriodNone  NoMeetingPeriod = "none"
)

// Transportation values offered by the preference dialog.
const (
	TransportationCar     Transportation = "car"
	TransportationBus     Transportation = "bus"
	TransportationBicycle Transportation = "bicycle"
	TransportationFoot    Transportation = "foot"
)

// Age bounds accepted by the profile dialog.
const (
	MinAge = 18
	MaxAge = 120
)

// UserProfile is the user-scoped record of accumulated answers.
//
// The preference fields hold whatever text the user sent for them; the preference
// dialog does not validate against the constants above.
type UserProfile struct {
	UserID          string          `json:"user_id"`
	Name            string          `json:"name,omitempty"`
	Age             int             `json:"age,omitempty"` // 0 until set, then MinAge..MaxAge
	Addr            string          `json:"addr,omitempty"`
	MeetingSlot     MeetingSlot     `json:"meeting_slot"`
	NoMeetingPeriod NoMeetingPeriod `json:"no_meeting_period"`
	Transportation  Transportation  `json:"transportation"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// NewUserProfile returns the default profile for a user.
func NewUserProfile(userID string) UserProfile {
	now := time.Now()
	return UserProfile{
		UserID:          userID,
		MeetingSlot:     MeetingSlotNone,
		NoMeetingPeriod: NoMeetingPeriodNone,
		Transportation:  TransportationFoot,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

// HasAge reports whether the age has been collected.
func (p UserProfile) HasAge() bool {
	return p.Age != 0
}
