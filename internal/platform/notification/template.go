// Package notification renders and delivers outbound mail.
package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template IDs used by the domain services.
const (
	TemplateAppointmentReminder = "appointment-reminder"
	TemplateNoteReviewRequested = "note-review-requested"
	TemplateNoteReturned        = "note-returned"
	TemplateNoteApproved        = "note-approved"
)

// Template is a subject and body with {{key}} placeholders.
type Template struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine returns an engine with the built-in templates registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range builtInTemplates {
		e.RegisterTemplate(t)
	}
	return e
}

var builtInTemplates = []Template{
	{
		ID:      TemplateAppointmentReminder,
		Name:    "Appointment Reminder",
		Subject: "Appointment reminder for {{client_name}}",
		Body:    "Dear {{client_name}}, this is a reminder of your {{appointment_type}} appointment on {{date}} at {{time}} with {{provider}}. Location: {{location}}.",
	},
	{
		ID:      TemplateNoteReviewRequested,
		Name:    "Note Review Requested",
		Subject: "Note #{{note_id}} is awaiting your review",
		Body:    "{{author}} submitted a {{note_type}} note for service date {{service_date}} for your review.",
	},
	{
		ID:      TemplateNoteReturned,
		Name:    "Note Returned",
		Subject: "Note #{{note_id}} was returned for changes",
		Body:    "{{supervisor}} returned your {{note_type}} note with the following comments: {{comments}}",
	},
	{
		ID:      TemplateNoteApproved,
		Name:    "Note Approved",
		Subject: "Note #{{note_id}} was approved",
		Body:    "{{supervisor}} approved your {{note_type}} note. It can now be signed.",
	},
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render substitutes data into the template. Placeholders without data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject, body = t.Subject, t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}
