package payment

import (
	"context"
	"log/slog"
	"time"
)

// Processor decorates a Gateway with structured logging. It never logs the
// method token.
type Processor struct {
	gateway Gateway
	logger  *slog.Logger
}

func NewProcessor(gateway Gateway, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{gateway: gateway, logger: logger.With(slog.String("component", "payment"))}
}

func (p *Processor) Authorize(ctx context.Context, amountMinor int64, currency string, method Method, details map[string]any) (Authorization, error) {
	start := time.Now()
	auth, err := p.gateway.Authorize(ctx, amountMinor, currency, method, details)
	p.log(ctx, "payment authorize", err,
		slog.Int64("amount_minor", amountMinor),
		slog.String("currency", currency),
		slog.String("method_label", method.Label),
		slog.String("status", auth.Status),
		slog.String("authorization_id", auth.AuthorizationID),
		slog.Duration("duration", time.Since(start)),
	)
	return auth, err
}

func (p *Processor) Capture(ctx context.Context, authorizationID string) (CaptureResult, error) {
	start := time.Now()
	res, err := p.gateway.Capture(ctx, authorizationID)
	p.log(ctx, "payment capture", err,
		slog.String("authorization_id", authorizationID),
		slog.String("status", res.Status),
		slog.String("payment_id", res.PaymentID),
		slog.Duration("duration", time.Since(start)),
	)
	return res, err
}

func (p *Processor) Refund(ctx context.Context, paymentID string, amountMinor *int64) (RefundResult, error) {
	start := time.Now()
	res, err := p.gateway.Refund(ctx, paymentID, amountMinor)
	p.log(ctx, "payment refund", err,
		slog.String("payment_id", paymentID),
		slog.String("status", res.Status),
		slog.Duration("duration", time.Since(start)),
	)
	return res, err
}

func (p *Processor) log(ctx context.Context, msg string, err error, attrs ...slog.Attr) {
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		p.logger.LogAttrs(ctx, slog.LevelError, msg, attrs...)
		return
	}
	p.logger.LogAttrs(ctx, slog.LevelInfo, msg, attrs...)
}
