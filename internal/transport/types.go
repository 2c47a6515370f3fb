// Package transport defines the outbound notification surface. The core
// depends only on the ability to send a text message somewhere; Telegram
// is the single adapter today.
package transport

import "context"

type ChatTarget struct {
	ChatID int64
}

type SendOptions struct {
	ParseMode      string
	DisablePreview bool
}

// Sender delivers one text notification. Implementations must be safe
// for concurrent use; callers treat failures as best-effort.
type Sender interface {
	SendText(ctx context.Context, to ChatTarget, text string, opt *SendOptions) error
}
