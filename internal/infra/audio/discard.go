package audio

// DiscardSink drops every frame. Used for headless deployments where the
// output channel is consumed elsewhere, and in tests.
type DiscardSink struct{}

// WriteFrame discards the frame.
func (DiscardSink) WriteFrame(frame []byte) error {
	return nil
}
