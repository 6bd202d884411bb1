package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"sync"
)

//go:embed templates/*.html
var templateFS embed.FS

// Message is the content slotted into the shared email layout.
type Message struct {
	Title      string
	Heading    string
	Greeting   string
	Paragraphs []string
	CTALabel   string
	CTAURL     string
	Footer     string
}

var (
	layoutOnce sync.Once
	layout     *template.Template
	layoutErr  error
)

func loadLayout() (*template.Template, error) {
	layoutOnce.Do(func() {
		layout, layoutErr = template.New("base.html").ParseFS(templateFS, "templates/base.html", "templates/message.html")
		if layoutErr != nil {
			layoutErr = fmt.Errorf("parse email templates: %w", layoutErr)
		}
	})
	return layout, layoutErr
}

// Render wraps msg in the shared HTML layout.
func Render(msg Message) (string, error) {
	tmpl, err := loadLayout()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", msg); err != nil {
		return "", fmt.Errorf("execute email template: %w", err)
	}
	return buf.String(), nil
}
