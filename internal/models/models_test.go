package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestReceiptJSONTags(t *testing.T) {
	r := Receipt{To: "+123", Status: "sent", Time: 123456}
	if r.To != "+123" || r.Status != "sent" || r.Time != 123456 {
		t.Error("Receipt struct fields not set correctly")
	}
}

func TestEncodeDecodeFlow(t *testing.T) {
	tests := []struct {
		name string
		flow Flow
		top  TopState
		step string
	}{
		{"idle", Idle{}, TopStateIdle, ""},
		{"profile", ProfileDialog{Step: ProfileStepAwaitingAge}, TopStateProfile, "awaiting-age"},
		{"preference", PreferenceDialog{Step: PreferenceStepAwaitingSlot}, TopStatePreference, "awaiting-slot"},
		{"file", FileUpload{}, TopStateFileUpload, ""},
		{"help", Help{}, TopStateHelp, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			top, step := EncodeFlow(tt.flow)
			if top != tt.top || step != tt.step {
				t.Fatalf("EncodeFlow = (%s, %q), want (%s, %q)", top, step, tt.top, tt.step)
			}
			back, err := DecodeFlow(top, step)
			if err != nil {
				t.Fatalf("DecodeFlow error: %v", err)
			}
			if back != tt.flow {
				t.Errorf("round trip mismatch: got %#v, want %#v", back, tt.flow)
			}
		})
	}
}

func TestDecodeFlowRejectsUnknownValues(t *testing.T) {
	if _, err := DecodeFlow("bogus", ""); !errors.Is(err, ErrUnknownTopState) {
		t.Errorf("expected ErrUnknownTopState, got %v", err)
	}
	if _, err := DecodeFlow(TopStateProfile, "awaiting-slot"); !errors.Is(err, ErrUnknownStep) {
		t.Errorf("expected ErrUnknownStep, got %v", err)
	}
	f, err := DecodeFlow("", "")
	if err != nil || f != (Idle{}) {
		t.Errorf("empty top state should decode to Idle, got %#v, %v", f, err)
	}
}

func TestConversationFlowStepAccessors(t *testing.T) {
	cf := NewConversationFlow("c1")
	if cf.TopState() != TopStateIdle || cf.ProfileStep() != ProfileStepNone || cf.PreferenceStep() != PreferenceStepNone {
		t.Fatalf("new flow should be idle with no steps, got %s/%s/%s", cf.TopState(), cf.ProfileStep(), cf.PreferenceStep())
	}

	cf.Flow = PreferenceDialog{Step: PreferenceStepAwaitingTransportation}
	if cf.ProfileStep() != ProfileStepNone {
		t.Errorf("profile step should be none while in preference dialog, got %s", cf.ProfileStep())
	}
	if cf.PreferenceStep() != PreferenceStepAwaitingTransportation {
		t.Errorf("unexpected preference step %s", cf.PreferenceStep())
	}
}

func TestConversationFlowJSON(t *testing.T) {
	cf := NewConversationFlow("c1")
	cf.Flow = ProfileDialog{Step: ProfileStepAwaitingName}

	data, err := json.Marshal(cf)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal raw error: %v", err)
	}
	if raw["top_state"] != "profile-dialog" || raw["profile_step"] != "awaiting-name" || raw["preference_step"] != "none" {
		t.Errorf("unexpected JSON: %s", data)
	}

	var back ConversationFlow
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if back.Flow != cf.Flow || back.ConversationID != "c1" {
		t.Errorf("unexpected decoded flow: %#v", back)
	}
}

func TestNewUserProfileDefaults(t *testing.T) {
	p := NewUserProfile("u1")
	if p.MeetingSlot != MeetingSlotNone || p.NoMeetingPeriod != NoMeetingPeriodNone || p.Transportation != TransportationFoot {
		t.Errorf("unexpected defaults: %#v", p)
	}
	if p.HasAge() {
		t.Error("new profile should not have an age")
	}
}

func TestTurnValidate(t *testing.T) {
	if err := (Turn{UserID: "u"}).Validate(); !errors.Is(err, ErrEmptyConversationID) {
		t.Errorf("expected ErrEmptyConversationID, got %v", err)
	}
	if err := (Turn{ConversationID: "c"}).Validate(); !errors.Is(err, ErrEmptyUserID) {
		t.Errorf("expected ErrEmptyUserID, got %v", err)
	}
	if err := (Turn{ConversationID: "c", UserID: "u"}).Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
