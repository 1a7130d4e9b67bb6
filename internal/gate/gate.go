// Package gate implements the transmit gate the send task consults
// before emitting a frame (spec section 4.4): either TDMA slotting or
// exponential backoff, selected statically per deployment. Neither
// mode uses carrier sense; the gate alone governs air time on the
// assumption of a half-duplex radio.
package gate

// Gate decides whether the send task may transmit right now.
type Gate interface {
	// Allowed reports whether a transmission may start at now.
	Allowed(now uint32) bool
	// OnSend records that a transmission was just made at now,
	// updating whatever internal state governs the next decision.
	OnSend(now uint32)
	// RecordDataSent notes that a DATA frame was sent and has not yet
	// been acknowledged. TDMA ignores this; backoff uses it to widen
	// its retry window.
	RecordDataSent()
	// RecordAck notes that an ACK was received for this node, which
	// resets backoff's retry window. TDMA ignores this.
	RecordAck()
	// ResetDelay zeroes whatever retry-delay state carries over
	// between sends, without otherwise touching the gate's slot or
	// unacked-message bookkeeping. Called on Wake, matching spec
	// section 4.7's "zeroes send_delay" cycle-reset step. TDMA
	// ignores this, since it has no send_delay concept.
	ResetDelay()
}
