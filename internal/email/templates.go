package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title   string
	Heading string
}

type offerAcceptedEmailData struct {
	baseEmailData
	RequestTitle   string
	OwnerName      string
	ContactPhone   string
	PriceFormatted string
}

type offerSubmittedEmailData struct {
	baseEmailData
	RequestTitle   string
	ProviderName   string
	PriceFormatted string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

func formatCurrencySAR(cents int64) string {
	return fmt.Sprintf("%.2f ر.س", float64(cents)/100)
}
