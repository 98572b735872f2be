package notification

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"text/template"
	"time"
)

type emailData struct {
	Username  string
	Link      string
	ExpiresAt string
}

type emailTemplate struct {
	subject string
	text    *template.Template
	html    *htmltemplate.Template
}

var verificationTemplate = emailTemplate{
	subject: "Email Verification",
	text: template.Must(template.New("verification.txt").Parse(
		`Hello, {{.Username}}!

Please click on the link to verify email: {{.Link}}
`)),
	html: htmltemplate.Must(htmltemplate.New("verification.html").Parse(
		`<p>Hello, {{.Username}}!</p>
<p>Please click on the link to verify email: <a href="{{.Link}}">{{.Link}}</a></p>
`)),
}

var resetTemplate = emailTemplate{
	subject: "Password Reset",
	text: template.Must(template.New("reset.txt").Parse(
		`Hello, {{.Username}}!

A password reset was requested for your account. Follow the link to choose a new password: {{.Link}}
The link expires at {{.ExpiresAt}}. If you did not request a reset, ignore this email.
`)),
	html: htmltemplate.Must(htmltemplate.New("reset.html").Parse(
		`<p>Hello, {{.Username}}!</p>
<p>A password reset was requested for your account. Follow the link to choose a new password: <a href="{{.Link}}">{{.Link}}</a></p>
<p>The link expires at {{.ExpiresAt}}. If you did not request a reset, ignore this email.</p>
`)),
}

func (t emailTemplate) render(data emailData) (subject, text, html string, err error) {
	var tb, hb bytes.Buffer
	if err := t.text.Execute(&tb, data); err != nil {
		return "", "", "", fmt.Errorf("render text body: %w", err)
	}
	if err := t.html.Execute(&hb, data); err != nil {
		return "", "", "", fmt.Errorf("render html body: %w", err)
	}
	return t.subject, tb.String(), hb.String(), nil
}

func formatExpiry(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04 MST")
}
