package messaging

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/BTreeMap/MeetingAssistant/internal/models"
)

// ChoiceRenderer turns choice cards into numbered text for channels without buttons,
// and maps the user's reply back to the chosen option's value.
//
// Only the options of the most recently rendered message are remembered per recipient,
// so a plain question clears any earlier menu.
type ChoiceRenderer struct {
	mu      sync.Mutex
	pending map[string][]models.Choice
}

// NewChoiceRenderer creates an empty renderer.
func NewChoiceRenderer() *ChoiceRenderer {
	return &ChoiceRenderer{pending: make(map[string][]models.Choice)}
}

// Render formats msg for recipient and remembers its options.
func (r *ChoiceRenderer) Render(recipient string, msg models.Message) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !msg.HasChoices() {
		delete(r.pending, recipient)
		return msg.Text
	}
	r.pending[recipient] = append([]models.Choice(nil), msg.Choices...)

	var b strings.Builder
	b.WriteString(msg.Text)
	for i, c := range msg.Choices {
		b.WriteString("\n")
		if !strings.HasPrefix(c.Label, numberPrefix(i)) {
			b.WriteString(numberPrefix(i))
			b.WriteString(" ")
		}
		b.WriteString(c.Label)
	}
	return b.String()
}

// Resolve maps a reply to the value of the selected option. The reply may be the option
// number or its label (case-insensitive); anything else is returned unchanged.
func (r *ChoiceRenderer) Resolve(recipient, text string) string {
	r.mu.Lock()
	choices := r.pending[recipient]
	r.mu.Unlock()

	reply := strings.TrimSpace(text)
	if len(choices) == 0 || reply == "" {
		return text
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(reply, ".")); err == nil {
		if n >= 1 && n <= len(choices) {
			return choices[n-1].Value
		}
		return text
	}
	for i, c := range choices {
		label := strings.TrimSpace(strings.TrimPrefix(c.Label, numberPrefix(i)))
		if strings.EqualFold(reply, c.Label) || strings.EqualFold(reply, label) {
			return c.Value
		}
	}
	return text
}

func numberPrefix(i int) string {
	return fmt.Sprintf("%d.", i+1)
}
