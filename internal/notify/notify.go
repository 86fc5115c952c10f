// Package notify sends run-outcome mail to the operator.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"

	"github.com/example/teesched/internal/task"
)

// Mailer delivers one message. Nop is used when mail is not configured.
type Mailer interface {
	Send(subject, body string) error
}

// Nop discards messages.
type Nop struct{}

func (Nop) Send(string, string) error { return nil }

// SMTP sends through a plain SMTP relay. Addr is host:port.
type SMTP struct {
	Addr     string
	From     string
	To       string
	Username string
	Password string
}

func (m SMTP) Send(subject, body string) error {
	var msg strings.Builder
	fmt.Fprintf(&msg, "From: %s\r\n", m.From)
	fmt.Fprintf(&msg, "To: %s\r\n", m.To)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	msg.WriteString("\r\n")
	msg.WriteString(body)

	var auth smtp.Auth
	if m.Username != "" {
		host, _, _ := strings.Cut(m.Addr, ":")
		auth = smtp.PlainAuth("", m.Username, m.Password, host)
	}
	return smtp.SendMail(m.Addr, auth, m.From, []string{m.To}, []byte(msg.String()))
}

// Outcome renders the subject and body for a finished run. The body never
// contains credentials.
func Outcome(t task.Task, slotLabel string, runErr error) (subject, body string) {
	if runErr == nil {
		subject = fmt.Sprintf("Tee time acquired: course %d on %s", t.Params.Course, t.TargetDate)
		body = fmt.Sprintf("Task %s acquired a slot", t.ID)
		if slotLabel != "" {
			body += fmt.Sprintf(" at %s", slotLabel)
		}
		body += fmt.Sprintf(".\nCourse %d, %d players, %d holes, window %s-%s.\n",
			t.Params.Course, t.Params.Players, t.Params.Holes, t.Params.TimeStart, t.Params.TimeEnd)
		return subject, body
	}
	subject = fmt.Sprintf("Tee time acquisition failed: course %d on %s", t.Params.Course, t.TargetDate)
	body = fmt.Sprintf("Task %s failed: %v\nThe browser session was left open for inspection.\n", t.ID, runErr)
	return subject, body
}
