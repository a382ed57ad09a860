package auth

import (
	"context"
	"log/slog"
)

// Mailer は認証メールの送信インターフェース。
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// LogMailer は送信の代わりにメール内容を構造化ログへ出力するMailer。
type LogMailer struct {
	logger *slog.Logger
}

// NewLogMailer はLogMailerを生成する。
func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

// Send はメールをログに記録する。
func (m *LogMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.InfoContext(ctx, "mail queued",
		slog.String("to", to),
		slog.String("subject", subject),
		slog.String("body", body),
	)
	return nil
}

// compile-time interface check
var _ Mailer = (*LogMailer)(nil)
