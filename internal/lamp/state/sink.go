package state

// Sink is the LED hardware collaborator contract (spec.md §6). The core
// never renders frames itself; it only notifies the sink.
type Sink interface {
	// RenderStatic renders a fixed RGB color.
	RenderStatic(r, g, b int)

	// RenderAnimation hands the sink per-frame color/animation expressions
	// to evaluate itself (the sink owns the animation thread). The engine
	// passes the raw expression strings (empty for literal channels, which
	// the sink should treat as a constant expression) plus the frame speed.
	RenderAnimation(rExpr, gExpr, bExpr string, speedMs int)

	// RenderVoiceReactive couples microphone RMS to brightness around a base color.
	RenderVoiceReactive(v VoiceReactive)

	// Clear is equivalent to RenderStatic(0, 0, 0).
	Clear()
}
