package dialog

import "github.com/BTreeMap/MeetingAssistant/internal/models"

// Menu commands sent back by the welcome card.
const (
	CommandProfile    = "Choice1"
	CommandPreference = "Choice2"
	CommandFileUpload = "Choice3"
	CommandHelp       = "Choice4"
)

// Fixed texts.
const (
	WelcomeText   = "Welcome to Meeting Assistant Bot. I will introduce you how to use it. First please fill in your information and upload your calendar."
	MenuTitle     = "You can find introduction and complete your personal information"
	NoAnswerText  = "No QnA Maker answers were found."
	AttachmentAck = "you have send a file."

	ProfileBanner    = "This is user profile section."
	PreferenceBanner = "This is personal preference section."
	FileUploadBanner = "This is uploaded attachment."
	HelpBanner       = "This is help section."

	FileUploadPlaceholder = "upload file state"
	HelpPlaceholder       = "help state"

	AskName      = "Let's get started. What is your name?"
	AskAge       = "How old are you?"
	AskAddress   = "what is your address?"
	RunAgainText = "Type anything to run the bot again."

	AskMeetingSlot     = "Let's get started. Which time slot during meetings do your prefer?"
	AskNoMeetingPeriod = "Next. Which time period you don't want meeting?"
	AskTransportation  = "Next. Which transportation you want to attend meetings?"
)

// Format strings for confirmations.
const (
	GreetNameFormat        = "Hi %s"
	ConfirmAgeFormat       = "I have your age as %d."
	ConfirmAddressFormat   = "Your address %s is saved."
	ProfileCompleteFormat  = "Thanks for completing the booking %s."
	ConfirmSlotFormat      = "You have selected %s for meeting slot"
	ConfirmNoMeetingFormat = "You have selected %s for no meeting period."
	ConfirmTransportFormat = "You have selected %s for meeting transportation."
)

// WelcomeMenu is the top-level card offering the four sections.
func WelcomeMenu() models.Message {
	return models.Card(MenuTitle,
		models.Choice{Label: "1. User profile", Value: CommandProfile},
		models.Choice{Label: "2. Personal preference", Value: CommandPreference},
		models.Choice{Label: "3. Upload calender file", Value: CommandFileUpload},
		models.Choice{Label: "4. help", Value: CommandHelp},
	)
}

// Greeting is sent when a user joins a conversation.
func Greeting() []models.Message {
	return []models.Message{models.Text(WelcomeText), WelcomeMenu()}
}

func meetingSlotPrompt() models.Message {
	return models.Card(AskMeetingSlot,
		models.Choice{Label: "HALF HOUR", Value: string(models.MeetingSlotHalfHour)},
		models.Choice{Label: "ONE HOUR", Value: string(models.MeetingSlotOneHour)},
		models.Choice{Label: "TWO HOURS", Value: string(models.MeetingSlotTwoHours)},
		models.Choice{Label: "NONE", Value: string(models.MeetingSlotNone)},
	)
}

func noMeetingPeriodPrompt() models.Message {
	return models.Card(AskNoMeetingPeriod,
		models.Choice{Label: "before 8am", Value: string(models.NoMeetingBefore8AM)},
		models.Choice{Label: "during lunch time", Value: string(models.NoMeetingDuringLunch)},
		models.Choice{Label: "after 5pm", Value: string(models.NoMeetingAfter5PM)},
		models.Choice{Label: "NONE", Value: "NONE"},
	)
}

func transportationPrompt() models.Message {
	return models.Card(AskTransportation,
		models.Choice{Label: "car", Value: string(models.TransportationCar)},
		models.Choice{Label: "bus", Value: string(models.TransportationBus)},
		models.Choice{Label: "bicycle", Value: string(models.TransportationBicycle)},
		models.Choice{Label: "foot", Value: string(models.TransportationFoot)},
	)
}
