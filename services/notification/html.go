package notification

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

var htmlLayout = template.Must(template.New("layout").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Subject}}</title></head>
<body style="font-family: Georgia, serif; line-height: 1.5; color: #2f3b2f; max-width: 600px">
{{- range .Paragraphs}}
<p>{{range $i, $line := .}}{{if $i}}<br>{{end}}{{$line}}{{end}}</p>
{{- end}}
{{- if .PaymentURL}}
<p><a href="{{.PaymentURL}}" style="background: #4a6b3a; color: #fff; padding: 10px 18px; text-decoration: none">Pay the balance</a></p>
{{- end}}
</body>
</html>
`))

type htmlView struct {
	Subject    string
	Paragraphs [][]string
	PaymentURL string
}

// renderHTML wraps a rendered plain-text body in the HTML layout. Blank lines
// separate paragraphs; every value is escaped by html/template.
func renderHTML(subject, body string, data EmailData) (string, error) {
	view := htmlView{Subject: subject, PaymentURL: data.PaymentURL}
	for _, para := range strings.Split(strings.TrimSpace(body), "\n\n") {
		var lines []string
		for _, l := range strings.Split(para, "\n") {
			if l = strings.TrimRight(l, " "); l != "" {
				lines = append(lines, strings.TrimLeft(l, " "))
			}
		}
		if len(lines) > 0 {
			view.Paragraphs = append(view.Paragraphs, lines)
		}
	}

	var buf bytes.Buffer
	if err := htmlLayout.Execute(&buf, view); err != nil {
		return "", fmt.Errorf("render html body: %w", err)
	}
	return buf.String(), nil
}
