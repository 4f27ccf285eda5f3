// Package templates renders TransitionEvents into notification text. Each
// transition kind has a subject and a body, both text/template sources.
package templates

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/hako/durafmt"

	"doorwatch/internal/types"
)

// Spec is the unparsed template pair for one transition kind.
type Spec struct {
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

// Defaults returns the stock template set. Subjects are kept byte-for-byte
// from the controller's first watchdog so existing mail filters still match.
func Defaults() map[types.TransitionKind]Spec {
	return map[types.TransitionKind]Spec{
		types.KindToError: {
			Subject: "[doord] An error has occured",
			Body:    "Offending log message:\n{{.Line}}\n",
		},
		types.KindToHealthy: {
			Subject: "[doord] Error has been fixed",
			Body: "Last line:\n{{.Line}}\n\nRemainder of log:\n{{.LogText}}" +
				"{{if .DroppedLines}}\n({{.DroppedLines}} earlier lines not kept){{end}}\n",
		},
		types.KindToDead: {
			Subject: "[doord] Missed Hearbeat",
			Body:    "The monitored instance has not been heard from for {{.SilenceSeconds}} seconds ({{.Silence}}).\n",
		},
		types.KindRecurrentError: {
			Subject: "[doord] An error is persistent",
			Body: "log messages:\n{{if .Log}}{{.LogText}}{{else}}(no new log lines since the last notice){{end}}" +
				"{{if .DroppedLines}}\n({{.DroppedLines}} earlier lines not kept){{end}}\n",
		},
	}
}

type compiled struct {
	subject *template.Template
	body    *template.Template
}

// templateData is what templates see.
type templateData struct {
	Kind           string
	From           string
	To             string
	OccurredAt     string
	Line           string
	Log            []string
	LogText        string
	DroppedLines   int
	Silence        string
	SilenceSeconds int64
}

// Renderer turns TransitionEvents into Notifications. It is immutable after
// construction and safe for concurrent use.
type Renderer struct {
	templates map[types.TransitionKind]compiled
}

// NewRenderer parses specs. Every kind in types.AllTransitionKinds must be
// present.
func NewRenderer(specs map[types.TransitionKind]Spec) (*Renderer, error) {
	r := &Renderer{templates: make(map[types.TransitionKind]compiled, len(specs))}

	for _, kind := range types.AllTransitionKinds {
		spec, ok := specs[kind]
		if !ok {
			return nil, types.NewAppError(types.ErrCodeTemplateMissing,
				fmt.Sprintf("no template for %s", kind), nil)
		}
		if strings.TrimSpace(spec.Subject) == "" {
			return nil, types.NewAppError(types.ErrCodeTemplateMissing,
				fmt.Sprintf("empty subject for %s", kind), nil)
		}

		subject, err := template.New(string(kind) + ".subject").Option("missingkey=error").Parse(spec.Subject)
		if err != nil {
			return nil, fmt.Errorf("renderer: parse subject for %s: %w", kind, err)
		}
		body, err := template.New(string(kind) + ".body").Option("missingkey=error").Parse(spec.Body)
		if err != nil {
			return nil, fmt.Errorf("renderer: parse body for %s: %w", kind, err)
		}
		r.templates[kind] = compiled{subject: subject, body: body}
	}

	return r, nil
}

// Render formats ev with the template for its kind.
func (r *Renderer) Render(ev types.TransitionEvent) (*types.Notification, error) {
	tmpl, ok := r.templates[ev.Kind]
	if !ok {
		return nil, types.NewAppError(types.ErrCodeTemplateMissing,
			fmt.Sprintf("no template for %s", ev.Kind), nil)
	}

	data := buildTemplateData(ev)

	var subject, body bytes.Buffer
	if err := tmpl.subject.Execute(&subject, data); err != nil {
		return nil, types.NewAppError(types.ErrCodeTemplateRender, "failed to render subject", err).
			WithDetails(map[string]any{"kind": string(ev.Kind)})
	}
	if err := tmpl.body.Execute(&body, data); err != nil {
		return nil, types.NewAppError(types.ErrCodeTemplateRender, "failed to render body", err).
			WithDetails(map[string]any{"kind": string(ev.Kind)})
	}

	return &types.Notification{
		EventID:    ev.ID,
		Kind:       ev.Kind,
		From:       ev.From,
		To:         ev.To,
		Subject:    strings.TrimSpace(subject.String()),
		Body:       body.String(),
		OccurredAt: ev.OccurredAt,
	}, nil
}

func buildTemplateData(ev types.TransitionEvent) templateData {
	c := ev.Context
	data := templateData{
		Kind:           string(ev.Kind),
		From:           ev.From.String(),
		To:             ev.To.String(),
		OccurredAt:     ev.OccurredAt.UTC().Format(time.RFC1123Z),
		Line:           c.Line,
		Log:            c.RecentLog,
		LogText:        strings.Join(c.RecentLog, "\n"),
		DroppedLines:   c.DroppedLines,
		SilenceSeconds: int64(c.Silence / time.Second),
	}
	if c.Silence > 0 {
		data.Silence = durafmt.Parse(c.Silence.Truncate(time.Second)).LimitFirstN(2).String()
	}
	return data
}
