package report

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"

	"alloctrack/internal/core"
	"alloctrack/internal/mail"
)

//go:embed templates/*.html.tmpl
var templateFS embed.FS

var summaryTemplate = template.Must(template.ParseFS(templateFS, "templates/summary.html.tmpl"))

const arrow = "↳ "

// Rendered holds both renderings of one summary document.
type Rendered struct {
	Text string
	HTML string
}

// Render formats doc. It only walks the document; no count is recomputed.
func Render(doc core.SummaryDocument) (Rendered, error) {
	var html bytes.Buffer
	if err := summaryTemplate.Execute(&html, doc); err != nil {
		return Rendered{}, fmt.Errorf("render summary html: %w", err)
	}
	return Rendered{Text: RenderText(doc), HTML: html.String()}, nil
}

// RenderText renders doc as indented plain text. Nested lines get two spaces
// per level and an arrow.
func RenderText(doc core.SummaryDocument) string {
	var b strings.Builder
	if doc.Title != "" {
		b.WriteString(doc.Title)
		b.WriteString("\n\n")
	}
	fmt.Fprintf(&b, "Total: %d\n", doc.Total)
	for _, l := range doc.Lines {
		writeLine(&b, l, 0)
	}
	return b.String()
}

func writeLine(b *strings.Builder, l core.SummaryLine, depth int) {
	if depth > 0 {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(arrow)
	}
	fmt.Fprintf(b, "%s: %d (%s)\n", l.Label, l.Count, l.Percentage)
	for _, c := range l.Children {
		writeLine(b, c, depth+1)
	}
}

// Message builds the mail payload for doc.
func Message(doc core.SummaryDocument, to []string, subject string) (mail.Message, error) {
	r, err := Render(doc)
	if err != nil {
		return mail.Message{}, err
	}
	if subject == "" {
		subject = doc.Title
	}
	return mail.Message{To: to, Subject: subject, Text: r.Text, HTML: r.HTML}, nil
}
