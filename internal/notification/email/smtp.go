// Package email renders and delivers notification emails over SMTP.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	gomail "github.com/wneessen/go-mail"

	"salesdesk_backend/platform/config"
)

// Sender delivers the notification emails the event handlers produce.
type Sender interface {
	SendAssignmentEmail(ctx context.Context, toEmail, ownerName, recordName, module, ruleName string) error
	SendStageChangedEmail(ctx context.Context, toEmail, ownerName, recordName, stageName string, terminal bool) error
}

// SMTPSender implements Sender over a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates an SMTPSender from the email configuration.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		host:      cfg.GetSMTPHost(),
		port:      cfg.GetSMTPPort(),
		username:  cfg.GetSMTPUsername(),
		password:  cfg.GetSMTPPassword(),
		fromName:  cfg.GetEmailFromName(),
		fromEmail: cfg.GetEmailFromAddress(),
	}
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	client, err := gomail.NewClient(s.host,
		gomail.WithPort(s.port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.username),
		gomail.WithPassword(s.password),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(15*time.Second),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendAssignmentEmail(ctx context.Context, toEmail, ownerName, recordName, module, ruleName string) error {
	subject := fmt.Sprintf(subjectAssignmentFmt, recordName)
	content, err := renderEmailTemplate("assignment.html", assignmentEmailData{
		baseEmailData: baseEmailData{
			Title:   "Record toegewezen",
			Heading: "Record toegewezen",
		},
		OwnerName:  ownerName,
		RecordName: recordName,
		Module:     module,
		RuleName:   ruleName,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendStageChangedEmail(ctx context.Context, toEmail, ownerName, recordName, stageName string, terminal bool) error {
	subject := fmt.Sprintf(subjectStageChangedFmt, recordName, stageName)
	content, err := renderEmailTemplate("stage_changed.html", stageChangedEmailData{
		baseEmailData: baseEmailData{
			Title:   "Fase gewijzigd",
			Heading: "Fase gewijzigd",
		},
		OwnerName:  ownerName,
		RecordName: recordName,
		StageName:  stageName,
		Terminal:   terminal,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

var _ Sender = (*SMTPSender)(nil)
