package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/ttauveron/gcp-iam-watcher/internal/destination"
	"github.com/ttauveron/gcp-iam-watcher/internal/event"
	"github.com/ttauveron/gcp-iam-watcher/internal/platform/metrics"
)

// Outcome tags the result of processing one raw message. The transport layer
// translates it into ack/redeliver semantics.
type Outcome int

const (
	// OutcomeProcessed: a recognized record was handled to completion,
	// including the case where it produced nothing to notify.
	OutcomeProcessed Outcome = iota
	// OutcomeDropped: unparsable payload or unrecognized shape. Acknowledge,
	// never redeliver.
	OutcomeDropped
	// OutcomeTransientFailure: an unexpected error after the shape was
	// recognized. The transport should trigger redelivery.
	OutcomeTransientFailure
)

type recordKind int

const (
	kindUnknown recordKind = iota
	kindAsset
	kindAudit
)

// Processor classifies decoded records, runs the matching delta engine, and
// dispatches any resulting event. Messages are processed strictly one at a
// time; a mutex serializes concurrent transports.
type Processor struct {
	assets *AssetEngine
	audits *AuditEngine
	dest   destination.Destination

	log     *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer

	mu sync.Mutex
}

func NewProcessor(assets *AssetEngine, audits *AuditEngine, dest destination.Destination, log *slog.Logger, m *metrics.Metrics) *Processor {
	return &Processor{
		assets:  assets,
		audits:  audits,
		dest:    dest,
		log:     log,
		metrics: m,
		tracer:  otel.Tracer("gcp-iam-watcher/engine"),
	}
}

// Process handles one raw decoded payload end to end.
func (p *Processor) Process(ctx context.Context, raw []byte) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	deliveryID := uuid.NewString()
	log := p.log.With("delivery_id", deliveryID)

	ctx, span := p.tracer.Start(ctx, "process_message",
		trace.WithAttributes(attribute.String("delivery_id", deliveryID)))
	defer span.End()

	kind := classify(raw)
	span.SetAttributes(attribute.Int("record_kind", int(kind)))

	var (
		ev  *event.IamChange
		err error
	)
	switch kind {
	case kindAsset:
		ev, err = p.assets.Reduce(ctx, raw)
	case kindAudit:
		ev, err = p.audits.Extract(raw)
	default:
		if !json.Valid(raw) {
			log.Warn("non-JSON payload received, ignoring", "payload_prefix", prefix(raw, 200))
		} else {
			log.Warn("unrecognized message format, ignoring")
		}
		p.metrics.IncDropped()
		return OutcomeDropped
	}

	if err != nil {
		log.Error("processing failed, message will be redelivered", "error", err)
		p.metrics.IncTransientFailure()
		return OutcomeTransientFailure
	}

	if ev != nil {
		p.metrics.AddGroupsEmitted(len(ev.Changes))
		p.metrics.IncEventsDispatched()
		if err := p.dest.Send(ctx, ev); err != nil {
			// The composite contains per-sink failures itself; an error here
			// is unexpected but still must not fail the message.
			log.Error("dispatch error", "error", err)
		}
	}

	p.metrics.IncProcessed()
	return OutcomeProcessed
}

// classify inspects a record's shape without mutating it. A record carrying a
// mapping-typed asset field is an asset-feed record; the audit signature is
// only consulted afterwards, so the order is deterministic even for a record
// that superficially matches both.
func classify(raw []byte) recordKind {
	var probe struct {
		Asset        json.RawMessage `json:"asset"`
		ProtoPayload struct {
			ServiceName string `json:"serviceName"`
			MethodName  string `json:"methodName"`
		} `json:"protoPayload"`
		Resource struct {
			Type string `json:"type"`
		} `json:"resource"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return kindUnknown
	}

	if isJSONObject(probe.Asset) {
		return kindAsset
	}
	if probe.ProtoPayload.ServiceName == gcsServiceName &&
		probe.ProtoPayload.MethodName == gcsSetIamMethod &&
		probe.Resource.Type == gcsBucketType {
		return kindAudit
	}
	return kindUnknown
}

func isJSONObject(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func prefix(raw []byte, n int) string {
	if len(raw) > n {
		raw = raw[:n]
	}
	return string(raw)
}
