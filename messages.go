package followerwatch

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// MessageTemplates overrides the text of the messages sent for each kind of
// event. Each one is a text/template executed with a MessageData; an empty
// template keeps the built-in wording from Event.Message.
type MessageTemplates struct {
	Growth    string
	Target    string
	Milestone string
}

// MessageData is what a message template can refer to.
type MessageData struct {
	Account   string
	Platform  string
	Previous  int
	Current   int
	Delta     int
	Threshold int
}

// Messages renders events with MessageTemplates.
type Messages struct {
	templates map[EventKind]*template.Template
}

// NewMessages parses the non-empty templates in t.
func NewMessages(t MessageTemplates) (*Messages, error) {
	m := &Messages{templates: map[EventKind]*template.Template{}}
	for kind, text := range map[EventKind]string{
		EventGrowth:    t.Growth,
		EventTarget:    t.Target,
		EventMilestone: t.Milestone,
	} {
		if strings.TrimSpace(text) == "" {
			continue
		}
		tmpl, err := template.New(kind.String()).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s message template", kind)
		}
		m.templates[kind] = tmpl
	}
	return m, nil
}

// Render returns the message for ev, from its template if there is one.
func (m *Messages) Render(ev Event, account, platform string) (string, error) {
	tmpl, ok := m.templates[ev.Kind]
	if !ok {
		return ev.Message(account, platform), nil
	}
	var b strings.Builder
	err := tmpl.Execute(&b, MessageData{
		Account:   account,
		Platform:  platform,
		Previous:  ev.Previous,
		Current:   ev.Current,
		Delta:     ev.Delta,
		Threshold: ev.Threshold,
	})
	if err != nil {
		return "", errors.Wrapf(err, "error rendering %s message", ev.Kind)
	}
	return b.String(), nil
}
