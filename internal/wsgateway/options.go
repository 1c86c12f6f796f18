package wsgateway

import "time"

// Option configures a Hub, mutating its direct fields. The teacher's
// options.go assumed a Hub.config wrapper that hub.go never actually
// declared; these options operate on the fields Hub really has.
type Option func(*Hub)

// WithEvictionInterval configures how often the idle-cell janitor runs.
func WithEvictionInterval(d time.Duration) Option {
	return func(h *Hub) { h.evictionInterval = d }
}

// WithIdleTimeout sets how long a sessionless cell survives before the
// evictor reclaims it.
func WithIdleTimeout(d time.Duration) Option {
	return func(h *Hub) { h.idleTimeout = d }
}

// WithMailboxSize sets the loose-bound capacity of each cell's event
// channel.
func WithMailboxSize(size int) Option {
	return func(h *Hub) { h.mailboxSize = size }
}
