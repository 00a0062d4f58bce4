package notification

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTemplateEngine_BuiltIns(t *testing.T) {
	e := NewTemplateEngine()
	for _, id := range []string{TemplateAppointmentReminder, TemplateNoteReviewRequested, TemplateNoteReturned, TemplateNoteApproved} {
		_, _, err := e.Render(id, nil)
		assert.NoError(t, err, id)
	}
}

func TestTemplateEngine_Render(t *testing.T) {
	e := NewTemplateEngine()
	subject, body, err := e.Render(TemplateNoteReturned, map[string]string{
		"note_id":    "12",
		"supervisor": "Dr. Reyes",
		"note_type":  "progress",
		"comments":   "add risk assessment",
	})
	require.NoError(t, err)
	assert.Equal(t, "Note #12 was returned for changes", subject)
	assert.Contains(t, body, "Dr. Reyes returned your progress note")
	assert.Contains(t, body, "add risk assessment")
}

func TestTemplateEngine_MissingDataLeftAsIs(t *testing.T) {
	e := NewTemplateEngine()
	subject, _, err := e.Render(TemplateNoteApproved, nil)
	require.NoError(t, err)
	assert.Equal(t, "Note #{{note_id}} was approved", subject)
}

func TestTemplateEngine_Unknown(t *testing.T) {
	_, _, err := NewTemplateEngine().Render("nope", nil)
	assert.Error(t, err)
}

func TestTemplateEngine_RegisterOverrides(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: TemplateNoteApproved, Subject: "Approved {{note_id}}", Body: "ok"})
	subject, body, err := e.Render(TemplateNoteApproved, map[string]string{"note_id": "3"})
	require.NoError(t, err)
	assert.Equal(t, "Approved 3", subject)
	assert.Equal(t, "ok", body)
}
