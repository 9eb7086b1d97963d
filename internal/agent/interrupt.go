// internal/agent/interrupt.go
package agent

// InterruptToken carries an out-of-band interrupt request into the loop. A
// signal handler only calls Signal; the loop decides what the interrupt means
// at the points where it polls.
type InterruptToken struct {
	ch chan struct{}
}

func NewInterruptToken() *InterruptToken {
	return &InterruptToken{ch: make(chan struct{}, 1)}
}

// Signal records an interrupt. Repeated signals before the next poll collapse
// into one.
func (t *InterruptToken) Signal() {
	select {
	case t.ch <- struct{}{}:
	default:
	}
}

// Take consumes a pending interrupt, reporting whether there was one.
func (t *InterruptToken) Take() bool {
	select {
	case <-t.ch:
		return true
	default:
		return false
	}
}

// C is readable when an interrupt is pending. Receiving consumes it.
func (t *InterruptToken) C() <-chan struct{} { return t.ch }
