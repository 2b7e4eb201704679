package log

import (
	"github.com/rs/zerolog"
)

// ZerologAdapter writes protocol events to a zerolog.Logger at debug
// level, errors at warn level.
type ZerologAdapter struct {
	logger zerolog.Logger
}

// NewZerologAdapter returns an adapter writing to logger.
func NewZerologAdapter(logger zerolog.Logger) *ZerologAdapter {
	return &ZerologAdapter{logger: logger}
}

// Log writes the event.
func (a *ZerologAdapter) Log(event Event) {
	e := a.logger.Debug()
	if event.Error != nil {
		e = a.logger.Warn()
	}
	e = e.Str("conn_id", event.ConnectionID).
		Str("direction", event.Direction.String()).
		Str("layer", event.Layer.String()).
		Str("category", event.Category.String())

	if event.RemoteAddr != "" {
		e = e.Str("remote", event.RemoteAddr)
	}

	switch {
	case event.Frame != nil:
		e = e.Int("frame_size", event.Frame.Size).
			Bool("truncated", event.Frame.Truncated)
	case event.Record != nil:
		e = e.Uint8("content_type", event.Record.ContentType).
			Uint16("epoch", event.Record.Epoch).
			Uint64("seq", event.Record.Seq).
			Int("length", event.Record.Length)
		if event.Record.Dropped != "" {
			e = e.Str("dropped", event.Record.Dropped)
		}
	case event.Handshake != nil:
		e = e.Str("msg", event.Handshake.Name).
			Uint16("msg_seq", event.Handshake.MessageSeq).
			Bool("retransmit", event.Handshake.Retransmit)
	case event.StateChange != nil:
		e = e.Str("old_state", event.StateChange.OldState).
			Str("new_state", event.StateChange.NewState)
		if event.StateChange.Reason != "" {
			e = e.Str("reason", event.StateChange.Reason)
		}
	case event.Alert != nil:
		e = e.Uint8("alert_level", event.Alert.Level).
			Str("alert", event.Alert.Name)
	case event.Timer != nil:
		e = e.Str("timer", event.Timer.Kind.String()).
			Int("attempt", event.Timer.Attempt).
			Dur("next", event.Timer.Next)
	case event.Error != nil:
		e = e.Str("error_layer", event.Error.Layer.String()).
			Str("error_msg", event.Error.Message).
			Str("error_context", event.Error.Context)
		if event.Error.Code != nil {
			e = e.Int("error_code", *event.Error.Code)
		}
	}

	e.Msg("protocol")
}

// Compile-time interface satisfaction check.
var _ Logger = (*ZerologAdapter)(nil)
