package auth

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net"
	"net/http"
	"net/smtp"
	"strconv"
	"time"

	"github.com/jordan-wright/email"
	"github.com/rs/zerolog/log"

	"shaneshark.com/portfolio/internal/metrics"
)

// Mailer delivers verification codes by e-mail
type Mailer interface {
	SendCode(ctx context.Context, to, code string) error
}

// SMSSender delivers verification codes by text message
type SMSSender interface {
	SendCode(ctx context.Context, phone, code string) error
}

const codeMailSubject = "【ShaneShark】验证码通知"

//go:embed templates/verification-email.html
var codeMailHTML string

var codeMailTemplate = template.Must(template.New("verification").Parse(codeMailHTML))

func renderCodeMail(code string) ([]byte, error) {
	var buf bytes.Buffer
	if err := codeMailTemplate.Execute(&buf, struct{ Code string }{code}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// SMTPMailer sends the HTML code mail through an SMTP relay
type SMTPMailer struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

func (m *SMTPMailer) SendCode(ctx context.Context, to, code string) error {
	body, err := renderCodeMail(code)
	if err != nil {
		return fmt.Errorf("render code mail: %w", err)
	}

	e := email.NewEmail()
	e.From = m.From
	e.To = []string{to}
	e.Subject = codeMailSubject
	e.HTML = body

	var auth smtp.Auth
	if m.Username != "" {
		auth = smtp.PlainAuth("", m.Username, m.Password, m.Host)
	}

	start := time.Now()
	err = e.Send(net.JoinHostPort(m.Host, strconv.Itoa(m.Port)), auth)
	if err != nil {
		log.Error().Err(err).Str("to", to).Msg("Failed to send verification mail")
		return fmt.Errorf("send verification mail: %w", err)
	}

	log.Info().Str("to", to).Dur("duration", time.Since(start)).Msg("Verification mail sent")
	return nil
}

// LogMailer writes the code to the log instead of mailing it (dev mode)
type LogMailer struct{}

func (LogMailer) SendCode(ctx context.Context, to, code string) error {
	log.Warn().Str("to", to).Str("code", code).Msg("SMTP not configured, verification code logged instead")
	return nil
}

// HTTPSMSSender posts {name, code, targets} to a push gateway
type HTTPSMSSender struct {
	Endpoint string
	Name     string
	Client   *http.Client
}

// NewHTTPSMSSender returns a sender with the gateway's expected timeouts
func NewHTTPSMSSender(endpoint, name string) *HTTPSMSSender {
	return &HTTPSMSSender{
		Endpoint: endpoint,
		Name:     name,
		Client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPSMSSender) SendCode(ctx context.Context, phone, code string) error {
	if s.Endpoint == "" {
		log.Warn().Str("phone", phone).Str("code", code).Msg("SMS endpoint not configured, verification code logged instead")
		return nil
	}

	payload, err := json.Marshal(map[string]string{
		"name":    s.Name,
		"code":    code,
		"targets": phone,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := s.Client.Do(req)
	if err != nil {
		metrics.RecordUpstreamCall("sms", start, 0)
		return fmt.Errorf("send sms: %w", err)
	}
	defer resp.Body.Close()
	metrics.RecordUpstreamCall("sms", start, resp.StatusCode)

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Error().Int("status", resp.StatusCode).Str("phone", phone).Str("body", string(body)).Msg("SMS gateway rejected request")
		return fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}

	log.Info().Str("phone", phone).Msg("SMS sent")
	return nil
}
