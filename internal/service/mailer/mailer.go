// Package mailer delivers verification codes to email owners.
package mailer

import (
	"context"

	"github.com/nkiryanov/contestgate/internal/logger"
)

type Mailer interface {
	SendAuthCode(ctx context.Context, email string, code string) error
}

// LogMailer writes a notice to the log instead of sending email
// The code itself is logged only when ShowCode is set (development)
type LogMailer struct {
	logger   logger.Logger
	showCode bool
}

func NewLogMailer(l logger.Logger, showCode bool) *LogMailer {
	if l == nil {
		l = logger.NewNoOpLogger()
	}
	return &LogMailer{logger: l.WithGroup("mailer"), showCode: showCode}
}

func (m *LogMailer) SendAuthCode(_ context.Context, email string, code string) error {
	if m.showCode {
		m.logger.Info("Auth code sent", "to", email, "code", code)
		return nil
	}

	m.logger.Info("Auth code sent", "to", email)
	return nil
}
