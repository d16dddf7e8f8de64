package service

import (
	"context"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "session-auth/internal/identity/service"

// Stage is the point a session-establishing call has reached.
type Stage string

const (
	StageInit            Stage = "init"
	StageCredentialCheck Stage = "credential_check"
	StageTokenIssuance   Stage = "token_issuance"
	StageLedgerPersist   Stage = "ledger_persist"
	StageComplete        Stage = "complete"
)

type instruments struct {
	tracer     trace.Tracer
	operations metric.Int64Counter
}

func newInstruments() instruments {
	meter := otel.Meter(instrumentationName)
	ops, err := meter.Int64Counter("auth.operations",
		metric.WithDescription("Authentication operations by operation and outcome."),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		log.Warn().Err(err).Msg("identity: create auth.operations counter")
	}
	return instruments{tracer: otel.Tracer(instrumentationName), operations: ops}
}

// call tracks one SessionManager operation from Init to Complete or Failed.
type call struct {
	op    string
	stage Stage
	span  trace.Span
}

func (i instruments) begin(ctx context.Context, op string) (context.Context, *call) {
	ctx, span := i.tracer.Start(ctx, "SessionManager."+op, trace.WithAttributes(attribute.String("auth.operation", op)))
	return ctx, &call{op: op, stage: StageInit, span: span}
}

func (c *call) enter(s Stage) {
	c.stage = s
	c.span.AddEvent(string(s))
}

// finish records the outcome. Infrastructure failures and invariant violations
// are logged with the stage they happened in; client errors only at debug.
func (i instruments) finish(ctx context.Context, c *call, err error) {
	defer c.span.End()
	outcome := "success"
	if err == nil {
		c.enter(StageComplete)
	} else {
		outcome = "failure"
		reason := Reason(err)
		c.span.SetAttributes(attribute.String("auth.failed_stage", string(c.stage)), attribute.String("auth.reason", reason))
		if IsClientError(err) {
			log.Debug().Str("op", c.op).Str("stage", string(c.stage)).Str("reason", reason).Msg("identity: operation rejected")
		} else {
			c.span.RecordError(err)
			c.span.SetStatus(codes.Error, reason)
			log.Error().Err(err).Str("op", c.op).Str("stage", string(c.stage)).Msg("identity: operation failed")
		}
	}
	if i.operations != nil {
		i.operations.Add(ctx, 1, metric.WithAttributes(
			attribute.String("operation", c.op),
			attribute.String("outcome", outcome),
			attribute.String("reason", Reason(err)),
		))
	}
}
