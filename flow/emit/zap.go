package emit

import "go.uber.org/zap"

// ZapEmitter bridges events into a zap structured logger. Node transitions
// log at Info; transitions into FAILED log at Warn so failures stand out in
// aggregated logs without the engine itself deciding severity policy.
type ZapEmitter struct {
	log *zap.Logger
}

// NewZapEmitter wraps a zap logger. A nil logger defaults to zap.NewNop().
func NewZapEmitter(log *zap.Logger) *ZapEmitter {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapEmitter{log: log}
}

// Emit logs one event with structured fields.
func (z *ZapEmitter) Emit(event Event) {
	fields := []zap.Field{
		zap.String("run_id", event.RunID),
		zap.String("to", event.To),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.NodeID != "" {
		fields = append(fields, zap.String("node_id", event.NodeID))
	}
	if event.From != "" {
		fields = append(fields, zap.String("from", event.From))
	}
	if len(event.Meta) > 0 {
		fields = append(fields, zap.Any("meta", event.Meta))
	}

	msg := event.Msg
	if msg == "" {
		msg = "status transition"
	}
	if event.To == "FAILED" {
		z.log.Warn(msg, fields...)
		return
	}
	z.log.Info(msg, fields...)
}
