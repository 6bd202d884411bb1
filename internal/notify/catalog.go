package notify

import (
	"bytes"
	_ "embed"
	"fmt"
	"text/template"

	"gopkg.in/yaml.v3"

	"leadsync_backend/internal/email"
)

//go:embed catalog.yaml
var catalogYAML []byte

const (
	ctaMeeting    = "meeting"
	ctaReschedule = "reschedule"
)

type entrySpec struct {
	Subject    string   `yaml:"subject"`
	Heading    string   `yaml:"heading"`
	Paragraphs []string `yaml:"paragraphs"`
	CTALabel   string   `yaml:"cta_label"`
	CTA        string   `yaml:"cta"`
	WhatsApp   struct {
		Template string   `yaml:"template"`
		Params   []string `yaml:"params"`
	} `yaml:"whatsapp"`
}

type entry struct {
	subject    *template.Template
	heading    *template.Template
	paragraphs []*template.Template
	ctaLabel   string
	cta        string
	waTemplate string
	waParams   []string
}

// Rendered is one catalog entry filled with a payload.
type Rendered struct {
	Subject          string
	HTML             string
	WhatsAppTemplate string
	WhatsAppParams   []string
}

// Catalog holds the parsed notification templates.
type Catalog struct {
	entries map[Kind]entry
}

// LoadCatalog parses the embedded catalog. Every Kind must have an entry.
func LoadCatalog() (*Catalog, error) {
	return parseCatalog(catalogYAML)
}

func parseCatalog(data []byte) (*Catalog, error) {
	var specs map[string]entrySpec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("parse notification catalog: %w", err)
	}

	c := &Catalog{entries: make(map[Kind]entry, len(specs))}
	for _, kind := range AllKinds() {
		spec, ok := specs[string(kind)]
		if !ok {
			return nil, fmt.Errorf("notification catalog: missing entry %q", kind)
		}
		e, err := compileEntry(string(kind), spec)
		if err != nil {
			return nil, err
		}
		c.entries[kind] = e
	}
	return c, nil
}

func compileEntry(name string, spec entrySpec) (entry, error) {
	parse := func(field, text string) (*template.Template, error) {
		t, err := template.New(name + "." + field).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("notification catalog %s.%s: %w", name, field, err)
		}
		return t, nil
	}

	var (
		e   entry
		err error
	)
	if e.subject, err = parse("subject", spec.Subject); err != nil {
		return entry{}, err
	}
	if e.heading, err = parse("heading", spec.Heading); err != nil {
		return entry{}, err
	}
	for i, p := range spec.Paragraphs {
		t, err := parse(fmt.Sprintf("paragraphs[%d]", i), p)
		if err != nil {
			return entry{}, err
		}
		e.paragraphs = append(e.paragraphs, t)
	}
	switch spec.CTA {
	case "", ctaMeeting, ctaReschedule:
	default:
		return entry{}, fmt.Errorf("notification catalog %s: unknown cta %q", name, spec.CTA)
	}
	for _, p := range spec.WhatsApp.Params {
		if _, ok := payloadFields[p]; !ok {
			return entry{}, fmt.Errorf("notification catalog %s: unknown whatsapp param %q", name, p)
		}
	}
	e.ctaLabel = spec.CTALabel
	e.cta = spec.CTA
	e.waTemplate = spec.WhatsApp.Template
	e.waParams = spec.WhatsApp.Params
	return e, nil
}

// Render fills the entry for kind with p.
func (c *Catalog) Render(kind Kind, p Payload) (Rendered, error) {
	e, ok := c.entries[kind]
	if !ok {
		return Rendered{}, fmt.Errorf("unknown notification kind %q", kind)
	}

	subject, err := execute(e.subject, p)
	if err != nil {
		return Rendered{}, err
	}
	heading, err := execute(e.heading, p)
	if err != nil {
		return Rendered{}, err
	}
	msg := email.Message{
		Title:    subject,
		Heading:  heading,
		Greeting: "Dear " + p.Name + ",",
		CTALabel: e.ctaLabel,
		Footer:   "You receive this email because you requested a strategy session.",
	}
	for _, t := range e.paragraphs {
		text, err := execute(t, p)
		if err != nil {
			return Rendered{}, err
		}
		msg.Paragraphs = append(msg.Paragraphs, text)
	}
	switch e.cta {
	case ctaMeeting:
		msg.CTAURL = p.MeetingURL
	case ctaReschedule:
		msg.CTAURL = p.RescheduleLink
	}

	html, err := email.Render(msg)
	if err != nil {
		return Rendered{}, err
	}

	params := make([]string, 0, len(e.waParams))
	for _, field := range e.waParams {
		params = append(params, payloadFields[field](p))
	}

	return Rendered{
		Subject:          subject,
		HTML:             html,
		WhatsAppTemplate: e.waTemplate,
		WhatsAppParams:   params,
	}, nil
}

func execute(t *template.Template, p Payload) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, p); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return buf.String(), nil
}
