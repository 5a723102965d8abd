// Package dialog implements the profile and preference dialogs as pure state machines.
//
// Each call consumes one incoming text for the active dialog and returns the updated flow,
// the updated profile and the messages to send. Nothing here touches storage or transport.
package dialog

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/BTreeMap/MeetingAssistant/internal/models"
	"github.com/BTreeMap/MeetingAssistant/internal/validate"
)

// Result is the outcome of one dialog step.
type Result struct {
	Flow     models.Flow
	Profile  models.UserProfile
	Messages []models.Message
}

func (r *Result) say(texts ...string) {
	for _, t := range texts {
		r.Messages = append(r.Messages, models.Text(t))
	}
}

// MenuCommand maps an idle-state command to the flow it enters and the section banner.
func MenuCommand(text string) (models.Flow, string, bool) {
	switch text {
	case CommandProfile:
		return models.ProfileDialog{Step: models.ProfileStepNone}, ProfileBanner, true
	case CommandPreference:
		return models.PreferenceDialog{Step: models.PreferenceStepNone}, PreferenceBanner, true
	case CommandFileUpload:
		return models.FileUpload{}, FileUploadBanner, true
	case CommandHelp:
		return models.Help{}, HelpBanner, true
	default:
		return nil, "", false
	}
}

// Continue feeds text into the active dialog. An Idle flow is returned unchanged with no
// messages; idle input is the router's business.
func Continue(flow models.Flow, profile models.UserProfile, text string) Result {
	switch f := flow.(type) {
	case models.ProfileDialog:
		return Profile(f.Step, profile, text)
	case models.PreferenceDialog:
		return Preference(f.Step, profile, text)
	case models.FileUpload:
		return Result{Flow: f, Profile: profile, Messages: []models.Message{models.Text(FileUploadPlaceholder)}}
	case models.Help:
		return Result{Flow: f, Profile: profile, Messages: []models.Message{models.Text(HelpPlaceholder)}}
	default:
		return Result{Flow: models.Idle{}, Profile: profile}
	}
}

// Profile advances the name/age/address dialog by one input.
func Profile(step models.ProfileStep, profile models.UserProfile, text string) Result {
	input := strings.TrimSpace(text)
	res := Result{Flow: models.ProfileDialog{Step: step}, Profile: profile}

	switch step {
	case models.ProfileStepNone:
		res.say(AskName)
		res.Flow = models.ProfileDialog{Step: models.ProfileStepAwaitingName}

	case models.ProfileStepAwaitingName:
		v := validate.Name(input)
		if !v.Valid {
			res.say(v.Message)
			break
		}
		res.Profile.Name = v.Value
		res.say(fmt.Sprintf(GreetNameFormat, res.Profile.Name), AskAge)
		res.Flow = models.ProfileDialog{Step: models.ProfileStepAwaitingAge}

	case models.ProfileStepAwaitingAge:
		v := validate.Age(input)
		if !v.Valid {
			res.say(v.Message)
			break
		}
		res.Profile.Age = v.Value
		res.say(fmt.Sprintf(ConfirmAgeFormat, res.Profile.Age), AskAddress)
		res.Flow = models.ProfileDialog{Step: models.ProfileStepAwaitingAddress}

	case models.ProfileStepAwaitingAddress:
		v := validate.Address(input)
		if !v.Valid {
			res.say(v.Message)
			break
		}
		res.Profile.Addr = v.Value
		res.say(
			fmt.Sprintf(ConfirmAddressFormat, res.Profile.Addr),
			fmt.Sprintf(ProfileCompleteFormat, res.Profile.Name),
			RunAgainText,
		)
		res.Flow = models.Idle{}
		res.Messages = append(res.Messages, WelcomeMenu())

	default:
		slog.Warn("Dialog Profile unknown step, restarting dialog", "step", step)
		return Profile(models.ProfileStepNone, profile, text)
	}

	slog.Debug("Dialog Profile step", "from", step, "to", res.Flow, "messages", len(res.Messages))
	return res
}

// Preference advances the meeting slot/no-meeting period/transportation dialog by one input.
// Every answer is stored as received and the dialog always moves forward.
func Preference(step models.PreferenceStep, profile models.UserProfile, text string) Result {
	res := Result{Flow: models.PreferenceDialog{Step: step}, Profile: profile}

	switch step {
	case models.PreferenceStepNone:
		res.Messages = append(res.Messages, meetingSlotPrompt())
		res.Flow = models.PreferenceDialog{Step: models.PreferenceStepAwaitingSlot}

	case models.PreferenceStepAwaitingSlot:
		res.Profile.MeetingSlot = models.MeetingSlot(text)
		res.say(fmt.Sprintf(ConfirmSlotFormat, res.Profile.MeetingSlot))
		res.Messages = append(res.Messages, noMeetingPeriodPrompt())
		res.Flow = models.PreferenceDialog{Step: models.PreferenceStepAwaitingNoMeetingPeriod}

	case models.PreferenceStepAwaitingNoMeetingPeriod:
		res.Profile.NoMeetingPeriod = models.NoMeetingPeriod(text)
		res.say(fmt.Sprintf(ConfirmNoMeetingFormat, res.Profile.NoMeetingPeriod))
		res.Messages = append(res.Messages, transportationPrompt())
		res.Flow = models.PreferenceDialog{Step: models.PreferenceStepAwaitingTransportation}

	case models.PreferenceStepAwaitingTransportation:
		res.Profile.Transportation = models.Transportation(text)
		res.say(fmt.Sprintf(ConfirmTransportFormat, res.Profile.Transportation))
		res.Flow = models.Idle{}
		res.Messages = append(res.Messages, WelcomeMenu())

	default:
		slog.Warn("Dialog Preference unknown step, restarting dialog", "step", step)
		return Preference(models.PreferenceStepNone, profile, text)
	}

	slog.Debug("Dialog Preference step", "from", step, "to", res.Flow, "messages", len(res.Messages))
	return res
}
