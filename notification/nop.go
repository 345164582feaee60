package notification

import "github.com/raykavin/intrabot/core"

// Nop is the default notifier when no channel is configured.
type Nop struct{}

func (Nop) Notify(string) {}

func (Nop) OnOrder(core.Order) {}

func (Nop) OnError(error) {}
