package notification

import (
	"fmt"
	"strings"
	"sync"
)

// Template is a titled message with {{key}} placeholders.
type Template struct {
	ID      string
	Title   string
	Message string
}

type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewTemplateEngine returns an engine preloaded with the appointment event
// templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]Template)}
	for _, t := range []Template{
		{
			ID:      "appointment-booked",
			Title:   "New appointment",
			Message: "{{patient_name}} booked for {{date}} at {{time}} ({{duration}} min).",
		},
		{
			ID:      "appointment-rescheduled",
			Title:   "Appointment rescheduled",
			Message: "Appointment with {{patient_name}} moved to {{date}} at {{time}}.",
		},
		{
			ID:      "appointment-cancelled",
			Title:   "Appointment cancelled",
			Message: "Appointment with {{patient_name}} on {{date}} at {{time}} was cancelled.",
		},
	} {
		e.templates[t.ID] = t
	}
	return e
}

func (e *TemplateEngine) Register(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = t
}

// Render fills the template's placeholders from data. Unknown placeholders
// are left as-is.
func (e *TemplateEngine) Render(id string, data map[string]string) (title, message string, err error) {
	e.mu.RLock()
	t, ok := e.templates[id]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", id)
	}

	title, message = t.Title, t.Message
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		title = strings.ReplaceAll(title, placeholder, v)
		message = strings.ReplaceAll(message, placeholder, v)
	}
	return title, message, nil
}
