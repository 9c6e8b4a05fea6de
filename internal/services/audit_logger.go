package services

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Outcome is the result of one ledger operation, handed to an OutcomeSink.
type Outcome struct {
	Operation string
	OwnerID   string
	EntityID  string
	Amount    decimal.Decimal
	Currency  string
	Err       error
}

// Succeeded reports whether the operation committed.
func (o Outcome) Succeeded() bool {
	return o.Err == nil
}

// OutcomeSink receives operation outcomes. Formatting and delivery to users
// belong to the sink's owner.
type OutcomeSink interface {
	Report(ctx context.Context, outcome Outcome)
}

// AuditLogger is the default sink: one structured audit event per outcome.
type AuditLogger struct {
	logger zerolog.Logger
}

func NewAuditLogger(logger zerolog.Logger) *AuditLogger {
	return &AuditLogger{logger: logger.With().Str("component", "audit").Logger()}
}

func (a *AuditLogger) Report(ctx context.Context, o Outcome) {
	event := a.logger.Info()
	status := "SUCCESS"
	if o.Err != nil {
		event = a.logger.Warn().Err(o.Err).
			Str("error_code", CodeOf(o.Err)).
			Str("error_kind", KindOf(o.Err).String())
		status = "FAILED"
	}
	event = event.
		Str("event_type", o.Operation).
		Str("owner_id", o.OwnerID).
		Str("status", status)
	if o.EntityID != "" {
		event = event.Str("entity_id", o.EntityID)
	}
	if !o.Amount.IsZero() {
		event = event.Str("amount", o.Amount.String()).Str("currency", o.Currency)
	}
	event.Msg("AUDIT")
}

// discardSink drops outcomes; used when no sink is configured.
type discardSink struct{}

func (discardSink) Report(context.Context, Outcome) {}

func sinkOrDiscard(sink OutcomeSink) OutcomeSink {
	if sink == nil {
		return discardSink{}
	}
	return sink
}
