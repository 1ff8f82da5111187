package smtp

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Mailer delivers registration-code emails over plain SMTP.
type Mailer struct {
	host string
	port int
	user string
	pass string
}

func NewMailer(host string, port int, user, pass string) *Mailer {
	return &Mailer{host: host, port: port, user: user, pass: pass}
}

// SendRegistrationCode mails the confirmation code to the recipient.
func (m *Mailer) SendRegistrationCode(recipient string, code int) error {
	msg := buildRegistrationMessage(m.user, recipient, code)
	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.user, m.pass, m.host)
	if err := smtp.SendMail(addr, auth, m.user, []string{recipient}, msg); err != nil {
		return fmt.Errorf("failed to send registration email: %w", err)
	}
	return nil
}

func buildRegistrationMessage(from, to string, code int) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	b.WriteString("Subject: Registration confirmation\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=utf-8\r\n")
	b.WriteString("\r\n")
	fmt.Fprintf(&b, "<h1>You are registering at techzone</h1>Confirm your address by entering the code: %d\r\n", code)
	return []byte(b.String())
}
