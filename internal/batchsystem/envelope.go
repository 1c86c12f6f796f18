package batchsystem

// envelopeKind tags what an Envelope carries across a scheduler channel.
type envelopeKind int

const (
	envelopeNormal envelopeKind = iota
	envelopeControl
	// envelopeEmpty is the shutdown sentinel: not a real FSM, just a wakeup
	// that tells a blocked Poller to re-check its shutdown condition.
	envelopeEmpty
)

// Envelope is the sum type carried on a scheduler's channels: exactly one
// of Normal/Control is set, according to Kind. Control FSMs are always
// tagged envelopeControl — never silently repackaged as Normal — per
// spec.md §9's first Open Question.
type Envelope[N any, C any] struct {
	Kind    envelopeKind
	Normal  *N
	Control *C
}
