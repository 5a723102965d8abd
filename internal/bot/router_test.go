package bot

import (
	"context"
	"errors"
	"testing"

	"github.com/BTreeMap/MeetingAssistant/internal/dialog"
	"github.com/BTreeMap/MeetingAssistant/internal/models"
	"github.com/BTreeMap/MeetingAssistant/internal/qna"
	"github.com/BTreeMap/MeetingAssistant/internal/store"
)

// fakeKB returns fixed answers and counts queries.
type fakeKB struct {
	answers []qna.Answer
	err     error
	queries []string
}

func (f *fakeKB) Query(ctx context.Context, text string) ([]qna.Answer, error) {
	f.queries = append(f.queries, text)
	return f.answers, f.err
}

// failingStore fails every save.
type failingStore struct {
	*store.InMemoryStore
}

func (failingStore) SaveConversationFlow(models.ConversationFlow) error {
	return errors.New("disk full")
}

// profileFailingStore fails profile saves only.
type profileFailingStore struct {
	*store.InMemoryStore
}

func (profileFailingStore) SaveUserProfile(models.UserProfile) error {
	return errors.New("disk full")
}

func newRouter(t *testing.T, kb qna.KnowledgeBase) (*Router, *store.InMemoryStore) {
	t.Helper()
	s := store.NewInMemoryStore()
	r, err := NewRouter(s, s, kb)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	return r, s
}

func turn(text string) models.Turn {
	return models.Turn{ConversationID: "conv-1", UserID: "user-1", Text: text}
}

func texts(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func expectTexts(t *testing.T, got []models.Message, want ...string) {
	t.Helper()
	g := texts(got)
	if len(g) != len(want) {
		t.Fatalf("messages = %q, want %q", g, want)
	}
	for i := range want {
		if g[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, g[i], want[i])
		}
	}
}

func storedFlow(t *testing.T, s *store.InMemoryStore) models.Flow {
	t.Helper()
	cf, err := s.GetConversationFlow("conv-1")
	if err != nil || cf == nil {
		t.Fatalf("GetConversationFlow = %v, %v", cf, err)
	}
	return cf.Flow
}

func TestNewRouter_MissingDependencies(t *testing.T) {
	s := store.NewInMemoryStore()
	if _, err := NewRouter(nil, s, nil); !errors.Is(err, ErrMissingConversationState) {
		t.Errorf("expected ErrMissingConversationState, got %v", err)
	}
	if _, err := NewRouter(s, nil, nil); !errors.Is(err, ErrMissingUserState) {
		t.Errorf("expected ErrMissingUserState, got %v", err)
	}
	if _, err := NewRouter(s, s, nil); err != nil {
		t.Errorf("nil knowledge base should be allowed, got %v", err)
	}
}

func TestHandleTurn_ProfileDialogFullRun(t *testing.T) {
	r, s := newRouter(t, nil)
	ctx := context.Background()

	msgs, err := r.HandleTurn(ctx, turn(dialog.CommandProfile))
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	expectTexts(t, msgs, dialog.ProfileBanner, dialog.AskName)
	if f := storedFlow(t, s); f != (models.ProfileDialog{Step: models.ProfileStepAwaitingName}) {
		t.Errorf("flow = %+v", f)
	}

	msgs, _ = r.HandleTurn(ctx, turn("Alice"))
	expectTexts(t, msgs, "Hi Alice", dialog.AskAge)

	msgs, _ = r.HandleTurn(ctx, turn("25"))
	expectTexts(t, msgs, "I have your age as 25.", dialog.AskAddress)

	msgs, _ = r.HandleTurn(ctx, turn("123 Main St"))
	expectTexts(t, msgs,
		"Your address 123 Main St is saved.",
		"Thanks for completing the booking Alice.",
		dialog.RunAgainText,
		dialog.MenuTitle,
	)
	if !msgs[3].HasChoices() {
		t.Error("last message should be the welcome menu")
	}

	if f := storedFlow(t, s); f != (models.Idle{}) {
		t.Errorf("flow after completion = %+v, want idle", f)
	}
	p, _ := s.GetUserProfile("user-1")
	if p == nil || p.Name != "Alice" || p.Age != 25 || p.Addr != "123 Main St" {
		t.Errorf("profile = %+v", p)
	}
}

func TestHandleTurn_InvalidAgeRepromptsWithoutAdvancing(t *testing.T) {
	r, s := newRouter(t, nil)
	ctx := context.Background()
	r.HandleTurn(ctx, turn(dialog.CommandProfile))
	r.HandleTurn(ctx, turn("Alice"))

	msgs, err := r.HandleTurn(ctx, turn("I am 12"))
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	expectTexts(t, msgs, "Please enter an age between 18 and 120.")
	if f := storedFlow(t, s); f != (models.ProfileDialog{Step: models.ProfileStepAwaitingAge}) {
		t.Errorf("flow = %+v, want awaiting-age", f)
	}
}

func TestHandleTurn_PreferenceEntryEmitsSlotPrompt(t *testing.T) {
	r, s := newRouter(t, nil)
	msgs, err := r.HandleTurn(context.Background(), turn(dialog.CommandPreference))
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	expectTexts(t, msgs, dialog.PreferenceBanner, dialog.AskMeetingSlot)
	if n := len(msgs[1].Choices); n != 4 {
		t.Errorf("slot prompt has %d options, want 4", n)
	}
	if f := storedFlow(t, s); f != (models.PreferenceDialog{Step: models.PreferenceStepAwaitingSlot}) {
		t.Errorf("flow = %+v", f)
	}
}

func TestHandleTurn_PreferenceStoresRawValues(t *testing.T) {
	r, s := newRouter(t, nil)
	ctx := context.Background()
	r.HandleTurn(ctx, turn(dialog.CommandPreference))
	r.HandleTurn(ctx, turn("one hour"))
	r.HandleTurn(ctx, turn("whenever"))
	msgs, _ := r.HandleTurn(ctx, turn("bus"))
	expectTexts(t, msgs, "You have selected bus for meeting transportation.", dialog.MenuTitle)

	p, _ := s.GetUserProfile("user-1")
	if p.MeetingSlot != models.MeetingSlotOneHour || p.NoMeetingPeriod != "whenever" || p.Transportation != models.TransportationBus {
		t.Errorf("profile = %+v", p)
	}
	if f := storedFlow(t, s); f != (models.Idle{}) {
		t.Errorf("flow = %+v, want idle", f)
	}
}

func TestHandleTurn_StubSections(t *testing.T) {
	r, s := newRouter(t, nil)
	ctx := context.Background()

	msgs, _ := r.HandleTurn(ctx, turn(dialog.CommandFileUpload))
	expectTexts(t, msgs, dialog.FileUploadBanner)
	msgs, _ = r.HandleTurn(ctx, turn("anything"))
	expectTexts(t, msgs, dialog.FileUploadPlaceholder)
	if f := storedFlow(t, s); f != (models.FileUpload{}) {
		t.Errorf("flow = %+v, want file-upload", f)
	}
}

func TestHandleTurn_HelpSection(t *testing.T) {
	r, _ := newRouter(t, nil)
	ctx := context.Background()
	msgs, _ := r.HandleTurn(ctx, turn(dialog.CommandHelp))
	expectTexts(t, msgs, dialog.HelpBanner)
	msgs, _ = r.HandleTurn(ctx, turn("?"))
	expectTexts(t, msgs, dialog.HelpPlaceholder)
}

func TestHandleTurn_EmptyKnowledgeBaseFallback(t *testing.T) {
	kb := &fakeKB{}
	r, s := newRouter(t, kb)
	for i := 0; i < 2; i++ {
		msgs, err := r.HandleTurn(context.Background(), turn("xyz-unrecognized"))
		if err != nil {
			t.Fatalf("HandleTurn: %v", err)
		}
		expectTexts(t, msgs, "No QnA Maker answers were found.", dialog.MenuTitle)
		if !msgs[1].HasChoices() {
			t.Error("second message should be the welcome menu")
		}
	}
	if len(kb.queries) != 2 || kb.queries[0] != "xyz-unrecognized" {
		t.Errorf("queries = %q", kb.queries)
	}
	if f := storedFlow(t, s); f != (models.Idle{}) {
		t.Errorf("flow = %+v, want idle", f)
	}
}

func TestHandleTurn_KnowledgeBaseTopAnswer(t *testing.T) {
	kb := &fakeKB{answers: []qna.Answer{{Answer: "second", Score: 20}, {Answer: "best", Score: 90}}}
	r, _ := newRouter(t, kb)
	msgs, _ := r.HandleTurn(context.Background(), turn("how do I book?"))
	expectTexts(t, msgs, "best", dialog.MenuTitle)
}

func TestHandleTurn_KnowledgeBaseFailureDegrades(t *testing.T) {
	r, _ := newRouter(t, &fakeKB{err: qna.ErrLookupUnavailable})
	msgs, err := r.HandleTurn(context.Background(), turn("hello"))
	if err != nil {
		t.Fatalf("lookup failure should not be fatal, got %v", err)
	}
	expectTexts(t, msgs, dialog.NoAnswerText, dialog.MenuTitle)
}

func TestHandleTurn_AttachmentShortCircuits(t *testing.T) {
	kb := &fakeKB{}
	r, s := newRouter(t, kb)
	tr := turn("")
	tr.Attachments = []models.Attachment{{Name: "calendar.ics", ContentType: "text/calendar"}}

	msgs, err := r.HandleTurn(context.Background(), tr)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	expectTexts(t, msgs, "you have send a file.")
	if cf, _ := s.GetConversationFlow("conv-1"); cf != nil {
		t.Errorf("attachment turn stored a flow: %+v", cf)
	}
	if p, _ := s.GetUserProfile("user-1"); p != nil {
		t.Errorf("attachment turn stored a profile: %+v", p)
	}
	if len(kb.queries) != 0 {
		t.Error("attachment turn should not query the knowledge base")
	}
}

func TestHandleTurn_MembersAddedGreets(t *testing.T) {
	r, s := newRouter(t, nil)
	tr := turn("")
	tr.Kind = models.TurnKindMembersAdded
	msgs, err := r.HandleTurn(context.Background(), tr)
	if err != nil {
		t.Fatalf("HandleTurn: %v", err)
	}
	expectTexts(t, msgs, dialog.WelcomeText, dialog.MenuTitle)
	if cf, _ := s.GetConversationFlow("conv-1"); cf != nil {
		t.Error("greeting should not change state")
	}
}

func TestHandleTurn_MenuCommandsOnlyWhenIdle(t *testing.T) {
	r, s := newRouter(t, nil)
	ctx := context.Background()
	r.HandleTurn(ctx, turn(dialog.CommandProfile))

	// Choice2 while awaiting a name is just a name.
	msgs, _ := r.HandleTurn(ctx, turn(dialog.CommandPreference))
	expectTexts(t, msgs, "Hi Choice2", dialog.AskAge)
	if f := storedFlow(t, s); f != (models.ProfileDialog{Step: models.ProfileStepAwaitingAge}) {
		t.Errorf("flow = %+v", f)
	}
}

func TestHandleTurn_InvalidTurn(t *testing.T) {
	r, _ := newRouter(t, nil)
	_, err := r.HandleTurn(context.Background(), models.Turn{UserID: "u"})
	if !errors.Is(err, models.ErrEmptyConversationID) {
		t.Errorf("expected ErrEmptyConversationID, got %v", err)
	}
}

func TestHandleTurn_SaveFailureSurfaces(t *testing.T) {
	fs := failingStore{store.NewInMemoryStore()}
	r, err := NewRouter(fs, fs, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}
	msgs, err := r.HandleTurn(context.Background(), turn(dialog.CommandProfile))
	if err == nil {
		t.Fatal("expected save error")
	}
	if len(msgs) == 0 {
		t.Error("messages should still be returned with the save error")
	}
}

func TestHandleTurn_ProfileSaveFailureKeepsFlow(t *testing.T) {
	fs := profileFailingStore{store.NewInMemoryStore()}
	cf := models.NewConversationFlow("conv-1")
	cf.Flow = models.ProfileDialog{Step: models.ProfileStepAwaitingName}
	if err := fs.SaveConversationFlow(cf); err != nil {
		t.Fatalf("seed flow: %v", err)
	}
	r, err := NewRouter(fs, fs, nil)
	if err != nil {
		t.Fatalf("NewRouter: %v", err)
	}

	if _, err := r.HandleTurn(context.Background(), turn("Alice")); err == nil {
		t.Fatal("expected profile save error")
	}
	got, _ := fs.GetConversationFlow("conv-1")
	if got == nil || got.Flow != (models.ProfileDialog{Step: models.ProfileStepAwaitingName}) {
		t.Errorf("flow advanced past unsaved name: %+v", got)
	}
}
