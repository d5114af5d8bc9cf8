package main

import (
	"fmt"
	"net/smtp"
)

// smtpMailer sends one-time login codes over plain SMTP.
type smtpMailer struct {
	host     string
	port     int
	username string
	password string
	from     string
}

func (m *smtpMailer) Send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n",
		m.from, to, subject, body)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}
	return smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg))
}
