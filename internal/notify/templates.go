package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
)

var bodyTemplates = template.Must(template.New("notify").Parse(`
{{define "signing_request"}}<!DOCTYPE html>
<html><body style="font-family:Helvetica,Arial,sans-serif;color:#1f2933">
<p>Hello {{.Name}},</p>
<p>{{if .SenderName}}{{.SenderName}} has asked you{{else}}You have been asked{{end}} to sign <strong>{{.DocumentTitle}}</strong>.</p>
<p><a href="{{.Link}}" style="background:#2563eb;color:#fff;padding:10px 18px;border-radius:4px;text-decoration:none">Review and sign</a></p>
<p style="font-size:12px;color:#6b7280">If the button does not work, open this link: {{.Link}}</p>
</body></html>{{end}}
{{define "completed"}}<!DOCTYPE html>
<html><body style="font-family:Helvetica,Arial,sans-serif;color:#1f2933">
<p>Hello {{.Name}},</p>
<p>Everyone has signed <strong>{{.DocumentTitle}}</strong>.</p>
{{if .Attached}}<p>The signed document is attached to this email.</p>{{end}}
{{if .Link}}<p><a href="{{.Link}}">View the document</a></p>{{end}}
</body></html>{{end}}
`))

type bodyData struct {
	Message
	Name     string
	Attached bool
}

// Subject returns the email subject line for a message.
func Subject(msg Message) string {
	title := strings.TrimSpace(msg.DocumentTitle)
	if title == "" {
		title = "a document"
	}
	switch msg.Kind {
	case KindCompleted:
		return fmt.Sprintf("Completed: %s", title)
	default:
		return fmt.Sprintf("Signature requested: %s", title)
	}
}

// RenderBody renders the HTML body of a message.
func RenderBody(msg Message, attached bool) (string, error) {
	var buf bytes.Buffer
	data := bodyData{Message: msg, Name: msg.Greeting(), Attached: attached}
	if err := bodyTemplates.ExecuteTemplate(&buf, string(msg.Kind), data); err != nil {
		return "", fmt.Errorf("render %s body: %w", msg.Kind, err)
	}
	return buf.String(), nil
}

func normalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}
