package audit

import "github.com/jnwerner/vouch/internal/core"

// Noop is an auditor that discards everything.
type Noop struct{}

func NewNoop() *Noop {
	return &Noop{}
}

func (n *Noop) Log(core.AuditEntry) error {
	return nil
}

func (n *Noop) Close() error {
	return nil
}
