package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"

	"github.com/frostpeak/gatewarden/config"
)

const (
	mime = "MIME-version: 1.0;\nContent-Type: text/html; charset=\"UTF-8\";\n\n"
)

func parseTemplate(fileName string, data interface{}) (string, error) {
	t, err := template.ParseFiles(fileName)
	if err != nil {
		return "", err
	}
	buffer := new(bytes.Buffer)
	if err = t.Execute(buffer, data); err != nil {
		return "", err
	}
	return buffer.String(), nil
}

// Send renders the named template and mails it from the configured SMTP
// server. Used for the ops alert on lost approvals.
func Send(templateName string, templateData interface{}, subject string, recipient string, c config.SMTP) error {
	body, err := parseTemplate(templateName, templateData)
	if err != nil {
		return err
	}
	content := "To: " + recipient + "\r\nSubject: " + subject + "\r\n" + mime + "\r\n" + body
	addr := fmt.Sprintf("%s:%d", c.Server, c.Port)
	return smtp.SendMail(addr, smtp.PlainAuth("", c.Email, c.Password, c.Server), c.Email, []string{recipient}, []byte(content))
}
