package store

import (
	"database/sql"
	"fmt"

	"github.com/BTreeMap/MeetingAssistant/internal/models"
	"github.com/bytedance/sonic"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanConversationFlow scans a flow row: conversation_id, top_state, step, created_at, updated_at.
func scanConversationFlow(row rowScanner) (models.ConversationFlow, error) {
	var cf models.ConversationFlow
	var top string
	var step sql.NullString
	if err := row.Scan(&cf.ConversationID, &top, &step, &cf.CreatedAt, &cf.UpdatedAt); err != nil {
		return cf, err
	}
	flow, err := models.DecodeFlow(models.TopState(top), step.String)
	if err != nil {
		return cf, fmt.Errorf("decode flow for conversation %s: %w", cf.ConversationID, err)
	}
	cf.Flow = flow
	return cf, nil
}

// scanUserProfile scans a profile row: user_id, name, age, addr, meeting_slot,
// no_meeting_period, transportation, created_at, updated_at.
func scanUserProfile(row rowScanner) (models.UserProfile, error) {
	var p models.UserProfile
	var name, addr sql.NullString
	var age sql.NullInt64
	var slot, period, transport string
	err := row.Scan(&p.UserID, &name, &age, &addr, &slot, &period, &transport, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.Name = name.String
	p.Age = int(age.Int64)
	p.Addr = addr.String
	p.MeetingSlot = models.MeetingSlot(slot)
	p.NoMeetingPeriod = models.NoMeetingPeriod(period)
	p.Transportation = models.Transportation(transport)
	return p, nil
}

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// nilIfZero returns nil for an unset age.
func nilIfZero(n int) interface{} {
	if n == 0 {
		return nil
	}
	return n
}

// encodeAttachments serializes response attachments for a TEXT/JSONB column.
func encodeAttachments(atts []models.Attachment) (interface{}, error) {
	if len(atts) == 0 {
		return nil, nil
	}
	data, err := sonic.Marshal(atts)
	if err != nil {
		return nil, fmt.Errorf("marshal attachments: %w", err)
	}
	return string(data), nil
}

// decodeAttachments is the inverse of encodeAttachments; bad JSON yields no attachments.
func decodeAttachments(raw sql.NullString) []models.Attachment {
	if !raw.Valid || raw.String == "" {
		return nil
	}
	var atts []models.Attachment
	if err := sonic.UnmarshalString(raw.String, &atts); err != nil {
		return nil
	}
	return atts
}
