package utils

import (
	"crypto/tls"
	"fmt"
	"html"
	"net/smtp"

	"TrainAI/config"

	"github.com/jordan-wright/email"
)

// Mailer sends the "video ready" notification through SMTP.
type Mailer struct {
	cfg config.SMTPConfig
}

// NewMailer returns nil when SMTP is not configured.
func NewMailer(cfg config.SMTPConfig) *Mailer {
	if !cfg.Enabled() {
		return nil
	}
	return &Mailer{cfg: cfg}
}

// SendVideoReady tells an owner their recording finished uploading.
func (m *Mailer) SendVideoReady(to, fileName, videoURL string) error {
	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = []string{to}
	e.Subject = "Your training video is ready"
	e.HTML = []byte(fmt.Sprintf(`
		<h2>Upload complete</h2>
		<p>Your recording <strong>%s</strong> has been uploaded and is ready for processing.</p>
		<a href="%s">Open the video</a>
	`, html.EscapeString(SanitizeHeaderFilename(fileName)), html.EscapeString(videoURL)))

	addr := m.cfg.Host + ":" + m.cfg.Port
	auth := smtp.PlainAuth("", m.cfg.User, m.cfg.Pass, m.cfg.Host)
	tlsConfig := &tls.Config{ServerName: m.cfg.Host}

	if m.cfg.TLS || m.cfg.Port == "465" {
		return e.SendWithTLS(addr, auth, tlsConfig)
	}
	if m.cfg.StartTLS {
		return e.SendWithStartTLS(addr, auth, tlsConfig)
	}
	return e.Send(addr, auth)
}
