// Package email sends transactional mail over SMTP using RTL Arabic
// templates rendered from embedded HTML.
package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"marketplace_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

const (
	subjectOfferAcceptedFmt  = "تم قبول عرضك على \"%s\""
	subjectOfferSubmittedFmt = "عرض جديد على طلبك \"%s\""
)

// Sender delivers marketplace notification emails.
type Sender interface {
	SendOfferAcceptedEmail(ctx context.Context, toEmail, requestTitle, ownerName, contactPhone string, priceCents int64) error
	SendOfferSubmittedEmail(ctx context.Context, toEmail, requestTitle, providerName string, priceCents int64) error
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

// NewSMTPSender creates a sender from the email configuration. It returns
// nil when email delivery is disabled; callers treat a nil sender as a
// no-op channel.
func NewSMTPSender(cfg config.EmailConfig) *SMTPSender {
	if !cfg.GetEmailEnabled() || cfg.GetSMTPHost() == "" {
		return nil
	}
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

// SendOfferAcceptedEmail notifies a provider that their offer was accepted,
// including the request owner's contact details.
func (s *SMTPSender) SendOfferAcceptedEmail(ctx context.Context, toEmail, requestTitle, ownerName, contactPhone string, priceCents int64) error {
	subject := fmt.Sprintf(subjectOfferAcceptedFmt, requestTitle)
	content, err := renderEmailTemplate("offer_accepted.html", offerAcceptedEmailData{
		baseEmailData: baseEmailData{
			Title:   "تم قبول عرضك",
			Heading: "تم قبول عرضك",
		},
		RequestTitle:   requestTitle,
		OwnerName:      ownerName,
		ContactPhone:   contactPhone,
		PriceFormatted: formatCurrencySAR(priceCents),
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

// SendOfferSubmittedEmail notifies a request owner about a new offer.
func (s *SMTPSender) SendOfferSubmittedEmail(ctx context.Context, toEmail, requestTitle, providerName string, priceCents int64) error {
	subject := fmt.Sprintf(subjectOfferSubmittedFmt, requestTitle)
	content, err := renderEmailTemplate("offer_submitted.html", offerSubmittedEmailData{
		baseEmailData: baseEmailData{
			Title:   "عرض جديد",
			Heading: "عرض جديد على طلبك",
		},
		RequestTitle:   requestTitle,
		ProviderName:   providerName,
		PriceFormatted: formatCurrencySAR(priceCents),
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}
