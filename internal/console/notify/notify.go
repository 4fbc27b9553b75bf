// Package notify implements the console's transient status message surface.
//
// Single message slot, last shown wins. Every message expires after a fixed
// TTL; the expiry is keyed to the generation it was scheduled for, so a
// stale timer firing after an overwrite never clears the newer message.
package notify

import (
	"sync"
	"time"
)

// Kind classifies a message for rendering.
type Kind int

const (
	KindNone Kind = iota
	KindSuccess
	KindError
)

// Message is the current content of the notification slot.
// The zero Message means the slot is clear.
type Message struct {
	Text string
	Kind Kind
}

// Notifier holds one transient message and schedules its expiry.
type Notifier struct {
	mu       sync.Mutex
	ttl      time.Duration
	gen      uint64
	msg      Message
	onChange func(Message)

	// after schedules a callback; swapped in tests for deterministic expiry.
	after func(time.Duration, func())
}

// New creates a notifier. onChange fires on every slot change, including
// expiry to the zero Message; it must not call back into the notifier.
func New(ttl time.Duration, onChange func(Message)) *Notifier {
	return &Notifier{
		ttl:      ttl,
		onChange: onChange,
		after: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
	}
}

// Success shows a success message, overwriting any current one.
func (n *Notifier) Success(text string) {
	n.show(Message{Text: text, Kind: KindSuccess})
}

// Error shows an error message, overwriting any current one.
func (n *Notifier) Error(text string) {
	n.show(Message{Text: text, Kind: KindError})
}

// Current returns the message currently in the slot.
func (n *Notifier) Current() Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.msg
}

func (n *Notifier) show(msg Message) {
	n.mu.Lock()
	n.gen++
	gen := n.gen
	n.msg = msg
	onChange := n.onChange
	n.mu.Unlock()

	if onChange != nil {
		onChange(msg)
	}
	n.after(n.ttl, func() { n.expire(gen) })
}

// expire clears the slot only if it still holds the message the timer was
// scheduled for. Timers are never cancelled; superseded ones land here and
// do nothing.
func (n *Notifier) expire(gen uint64) {
	n.mu.Lock()
	if gen != n.gen {
		n.mu.Unlock()
		return
	}
	n.msg = Message{}
	onChange := n.onChange
	n.mu.Unlock()

	if onChange != nil {
		onChange(Message{})
	}
}
