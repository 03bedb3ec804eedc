// internal/services/notification_service.go
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
	texttemplate "text/template"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/javajoker/dealer-contracts/internal/config"
	"github.com/javajoker/dealer-contracts/internal/models"
)

type NotificationKind string

const (
	NotificationSigningInvitation NotificationKind = "signing_invitation"
	NotificationContractCompleted NotificationKind = "contract_completed"
)

// NotificationPayload is implemented only by the payload types in this file.
type NotificationPayload interface {
	Kind() NotificationKind
	notificationPayload()
}

type SigningInvitation struct {
	SignerName     string            `json:"signer_name"`
	Role           models.SignerRole `json:"role"`
	ContractName   string            `json:"contract_name"`
	DealershipName string            `json:"dealership_name"`
	SigningURL     string            `json:"signing_url"`
	ExpiresAt      time.Time         `json:"expires_at"`
}

func (SigningInvitation) Kind() NotificationKind { return NotificationSigningInvitation }
func (SigningInvitation) notificationPayload()   {}

type ContractCompleted struct {
	SignerName     string    `json:"signer_name"`
	ContractName   string    `json:"contract_name"`
	DealershipName string    `json:"dealership_name"`
	DocumentURL    string    `json:"document_url"`
	CompletedAt    time.Time `json:"completed_at"`
}

func (ContractCompleted) Kind() NotificationKind { return NotificationContractCompleted }
func (ContractCompleted) notificationPayload()   {}

// Message is a single delivery to one recipient over one channel.
type Message struct {
	DeliveryID  uuid.UUID
	TenantID    uuid.UUID
	ContractID  uuid.UUID
	SignatureID *uuid.UUID
	Recipient   string
	Channel     models.DeliveryChannel
	Payload     NotificationPayload
}

type DeliveryResult struct {
	ProviderMessageID string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) (*DeliveryResult, error)
}

type messageEnvelope struct {
	DeliveryID  uuid.UUID              `json:"delivery_id"`
	TenantID    uuid.UUID              `json:"tenant_id"`
	ContractID  uuid.UUID              `json:"contract_id"`
	SignatureID *uuid.UUID             `json:"signature_id,omitempty"`
	Recipient   string                 `json:"recipient"`
	Channel     models.DeliveryChannel `json:"channel"`
	Kind        NotificationKind       `json:"kind"`
	Payload     json.RawMessage        `json:"payload"`
}

func (m Message) MarshalJSON() ([]byte, error) {
	if m.Payload == nil {
		return nil, fmt.Errorf("message has no payload")
	}
	payload, err := json.Marshal(m.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageEnvelope{
		DeliveryID:  m.DeliveryID,
		TenantID:    m.TenantID,
		ContractID:  m.ContractID,
		SignatureID: m.SignatureID,
		Recipient:   m.Recipient,
		Channel:     m.Channel,
		Kind:        m.Payload.Kind(),
		Payload:     payload,
	})
}

func (m *Message) UnmarshalJSON(data []byte) error {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	var payload NotificationPayload
	switch env.Kind {
	case NotificationSigningInvitation:
		var p SigningInvitation
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		payload = p
	case NotificationContractCompleted:
		var p ContractCompleted
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return err
		}
		payload = p
	default:
		return fmt.Errorf("unknown notification kind %q", env.Kind)
	}

	*m = Message{
		DeliveryID:  env.DeliveryID,
		TenantID:    env.TenantID,
		ContractID:  env.ContractID,
		SignatureID: env.SignatureID,
		Recipient:   env.Recipient,
		Channel:     env.Channel,
		Payload:     payload,
	}
	return nil
}

type NotificationService struct {
	config *config.Config
	twilio *TwilioClient
}

type EmailTemplate struct {
	Subject string
	Body    string
	Text    string
}

func NewNotificationService(config *config.Config) *NotificationService {
	return &NotificationService{
		config: config,
		twilio: NewTwilioClient(config.Twilio),
	}
}

func (s *NotificationService) Send(ctx context.Context, msg Message) (*DeliveryResult, error) {
	if msg.Payload == nil {
		return nil, fmt.Errorf("message has no payload")
	}
	tmpl := s.getTemplate(msg.Payload.Kind())

	switch msg.Channel {
	case models.DeliveryChannelEmail:
		subject, err := s.renderText(tmpl.Subject, msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to render email subject: %w", err)
		}
		body, err := s.renderTemplate(tmpl.Body, msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to render email template: %w", err)
		}
		if err := s.sendEmail(msg.Recipient, subject, body); err != nil {
			return nil, err
		}
		return &DeliveryResult{}, nil

	case models.DeliveryChannelSMS, models.DeliveryChannelWhatsApp:
		body, err := s.renderText(tmpl.Text, msg.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to render message text: %w", err)
		}
		if !s.twilio.Configured() {
			logrus.WithFields(logrus.Fields{
				"channel":   msg.Channel,
				"recipient": msg.Recipient,
			}).Info("Twilio not configured, message not sent")
			return &DeliveryResult{}, nil
		}

		var sid string
		if msg.Channel == models.DeliveryChannelSMS {
			sid, err = s.twilio.SendSMS(ctx, msg.Recipient, body)
		} else {
			sid, err = s.twilio.SendWhatsApp(ctx, msg.Recipient, body)
		}
		if err != nil {
			return nil, err
		}
		return &DeliveryResult{ProviderMessageID: sid}, nil
	}

	return nil, fmt.Errorf("unsupported delivery channel %q", msg.Channel)
}

// Helper methods
func (s *NotificationService) sendEmail(to, subject, body string) error {
	if s.config.Email.SMTPHost == "" {
		logrus.WithFields(logrus.Fields{
			"to":      to,
			"subject": subject,
		}).Info("SMTP not configured, email not sent")
		return nil
	}

	auth := smtp.PlainAuth("", s.config.Email.SMTPUsername, s.config.Email.SMTPPassword, s.config.Email.SMTPHost)

	from := s.config.Email.FromEmail
	if s.config.Email.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.Email.FromName, s.config.Email.FromEmail)
	}
	msg := []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=\"UTF-8\"\r\n\r\n%s", from, to, subject, body))

	addr := fmt.Sprintf("%s:%s", s.config.Email.SMTPHost, s.config.Email.SMTPPort)
	return smtp.SendMail(addr, auth, s.config.Email.FromEmail, []string{to}, msg)
}

func (s *NotificationService) renderTemplate(templateStr string, data interface{}) (string, error) {
	tmpl, err := template.New("email").Funcs(templateFuncs).Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return buf.String(), nil
}

func (s *NotificationService) renderText(templateStr string, data interface{}) (string, error) {
	tmpl, err := texttemplate.New("text").Funcs(texttemplate.FuncMap(templateFuncs)).Parse(templateStr)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}

	return strings.TrimSpace(buf.String()), nil
}

var templateFuncs = template.FuncMap{
	"date": func(t time.Time) string { return t.Format("January 2, 2006") },
}

func (s *NotificationService) getTemplate(kind NotificationKind) EmailTemplate {
	templates := map[NotificationKind]EmailTemplate{
		NotificationSigningInvitation: {
			Subject: "Please sign: {{.ContractName}}",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.SignerName}},</h2>
	<p>{{.DealershipName}} has asked you to sign "{{.ContractName}}".</p>
	<p><a href="{{.SigningURL}}">Review and sign</a></p>
	<p>This link expires on {{date .ExpiresAt}}.</p>
	<p>Best regards,<br>{{.DealershipName}}</p>
</body>
</html>`,
			Text: `{{.DealershipName}}: please sign "{{.ContractName}}" before {{date .ExpiresAt}}: {{.SigningURL}}`,
		},
		NotificationContractCompleted: {
			Subject: "Completed: {{.ContractName}}",
			Body: `
<!DOCTYPE html>
<html>
<body>
	<h2>Hello {{.SignerName}},</h2>
	<p>All parties have signed "{{.ContractName}}".</p>
	<p><a href="{{.DocumentURL}}">Download the signed document</a></p>
	<p>Best regards,<br>{{.DealershipName}}</p>
</body>
</html>`,
			Text: `{{.DealershipName}}: "{{.ContractName}}" is fully signed. Download: {{.DocumentURL}}`,
		},
	}

	return templates[kind]
}
