package ingestion

import (
	"context"

	"github.com/pterm/pterm"
)

// Mailer delivers the asset requested through an email4link form
type Mailer interface {
	SendAsset(ctx context.Context, email, href string) error
}

// LogMailer only logs the delivery. It is used until a real transport is configured.
type LogMailer struct {
	logger *pterm.Logger
}

func NewLogMailer(logger *pterm.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendAsset(ctx context.Context, email, href string) error {
	m.logger.Info("Email4link delivery requested", m.logger.Args("email", email, "href", href))
	return nil
}
