// Package sink provides state.Sink implementations: LogSink, a headless
// development backend that writes structured log lines for every render
// call (grounded on the teacher's observability.Logger, internal/
// observability/logging.go), and RecordingSink, a test double that
// captures render calls for assertions.
package sink

import (
	"context"

	"github.com/adaptlight/lampcore/internal/lamp/state"
	"github.com/adaptlight/lampcore/internal/observability"
)

// LogSink renders by logging, the default state.Sink when no physical LED
// strip is attached (spec.md §6 — the core never renders frames itself,
// it only notifies the sink).
type LogSink struct {
	logger *observability.Logger
}

// NewLogSink builds a LogSink. A nil logger is replaced with one that
// writes JSON lines to stdout at info level.
func NewLogSink(logger *observability.Logger) *LogSink {
	if logger == nil {
		logger = observability.NewLogger(observability.LogConfig{})
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) RenderStatic(r, g, b int) {
	s.logger.Info(context.Background(), "render static", "r", r, "g", g, "b", b)
}

func (s *LogSink) RenderAnimation(rExpr, gExpr, bExpr string, speedMs int) {
	s.logger.Info(context.Background(), "render animation",
		"r_expr", rExpr, "g_expr", gExpr, "b_expr", bExpr, "speed_ms", speedMs)
}

func (s *LogSink) RenderVoiceReactive(v state.VoiceReactive) {
	s.logger.Info(context.Background(), "render voice reactive",
		"colour_override", v.ColourOverride, "smoothing", v.Smoothing,
		"min_amp", v.MinAmp, "max_amp", v.MaxAmp)
}

func (s *LogSink) Clear() {
	s.logger.Info(context.Background(), "render clear")
}
