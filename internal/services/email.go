package services

import (
	"fmt"
	"html"
	"net/smtp"
	"sort"
	"strings"

	"callinsight-backend/internal/logger"
)

type EmailService struct {
	host        string
	port        string
	user        string
	pass        string
	from        string
	frontendURL string
	devMode     bool
	log         *logger.Logger
}

func NewEmailService(host, port, user, pass, from, frontendURL string, log *logger.Logger) *EmailService {
	if log == nil {
		log = logger.Discard()
	}
	devMode := host == "" || user == ""
	if devMode {
		log.Warn("email service running in dev mode, messages are logged instead of sent")
	}
	return &EmailService{
		host:        host,
		port:        port,
		user:        user,
		pass:        pass,
		from:        from,
		frontendURL: frontendURL,
		devMode:     devMode,
		log:         log,
	}
}

var anomalyLabels = map[string]string{
	"multiple_logins": "Concurrent logins from different IPs",
	"frequent_login":  "Login bursts in the last hour",
	"inactive":        "Salesperson accounts that never logged in",
}

// SendAnomalyDigestEmail summarises one detection pass by anomaly type.
func (s *EmailService) SendAnomalyDigestEmail(to, name string, counts map[string]int, total int) error {
	dashboardURL := fmt.Sprintf("%s/admin/activity", s.frontendURL)

	types := make([]string, 0, len(counts))
	for typ := range counts {
		types = append(types, typ)
	}
	sort.Strings(types)

	var rows strings.Builder
	for _, typ := range types {
		label := anomalyLabels[typ]
		if label == "" {
			label = typ
		}
		fmt.Fprintf(&rows, `<tr><td style="padding: 8px 0; color: #334155;">%s</td><td style="padding: 8px 0; text-align: right; font-weight: 600; color: #1e293b;">%d</td></tr>`,
			html.EscapeString(label), counts[typ])
	}

	subject := fmt.Sprintf("Account activity digest: %d anomalies flagged", total)
	body := fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"></head>
<body style="font-family: 'Segoe UI', Arial, sans-serif; margin: 0; padding: 0; background-color: #f8fafc;">
  <div style="max-width: 520px; margin: 40px auto; background: white; border-radius: 12px; box-shadow: 0 4px 24px rgba(0,0,0,0.08); overflow: hidden;">
    <div style="background: #0f172a; padding: 28px; text-align: center;">
      <h1 style="color: white; margin: 0; font-size: 22px; font-weight: 700;">CallInsight</h1>
      <p style="color: rgba(255,255,255,0.8); margin: 8px 0 0; font-size: 14px;">Account activity digest</p>
    </div>
    <div style="padding: 32px;">
      <p style="color: #64748b; font-size: 14px; line-height: 1.6; margin: 0 0 16px;">Hi %s, the last 30 days of sign-in activity produced %d flagged items.</p>
      <table style="width: 100%%; border-collapse: collapse; font-size: 14px;">%s</table>
      <a href="%s" style="display: inline-block; margin-top: 24px; background: #2563eb; color: white; text-decoration: none; padding: 12px 32px; border-radius: 8px; font-weight: 600; font-size: 14px;">
        Review activity
      </a>
    </div>
  </div>
</body>
</html>`, html.EscapeString(name), total, rows.String(), dashboardURL)

	return s.sendHTML(to, subject, body)
}

func (s *EmailService) sendHTML(to, subject, htmlBody string) error {
	if s.devMode {
		s.log.WithField("to", to).WithField("subject", subject).Info("dev email")
		s.log.Debug(htmlBody)
		return nil
	}

	headers := []string{
		fmt.Sprintf("From: %s", s.from),
		fmt.Sprintf("To: %s", to),
		fmt.Sprintf("Subject: %s", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/html; charset=UTF-8",
	}

	message := strings.Join(headers, "\r\n") + "\r\n\r\n" + htmlBody

	auth := smtp.PlainAuth("", s.user, s.pass, s.host)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)

	err := smtp.SendMail(addr, auth, s.from, []string{to}, []byte(message))
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", to, err)
	}

	s.log.WithField("to", to).WithField("subject", subject).Info("email sent")
	return nil
}
