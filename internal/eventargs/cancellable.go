package eventargs

// Cancellable is embedded by carriers whose action handlers may veto. The
// zero value is allowed. Writes are last-writer-wins across handlers.
type Cancellable struct {
	denied bool
}

// IsAllowed reports whether the host should go ahead with the action.
func (c *Cancellable) IsAllowed() bool { return !c.denied }

// SetAllowed sets the Allowed flag.
func (c *Cancellable) SetAllowed(v bool) { c.denied = !v }
