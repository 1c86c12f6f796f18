package wsgateway

// Priority tags an outbound Event for the backpressure-eviction logic in
// Connection.Send: when a session's outbound buffer is saturated, a
// low-priority event is dropped outright rather than waited on, while a
// high-priority one may evict an already-queued low-priority one.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

// Event is the message type this gateway's CellFsm instances carry through
// the router: one event addresses one user, fanned out to every session
// (browser tab, mobile client) currently attached to that user's cell.
type Event struct {
	Priority Priority
	Payload  []byte
}

func (e Event) GetPriority() Priority { return e.Priority }
