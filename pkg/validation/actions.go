package validation

import (
	"github.com/cuemby/holo/pkg/hash"
	"github.com/cuemby/holo/pkg/types"
)

// HandleEntryAspect is dispatched when an EntryAspect arrives from the
// network (publish or gossip fetch) and needs validating before it can
// be held.
type HandleEntryAspect struct {
	Aspect types.EntryAspect
}

func (HandleEntryAspect) ActionName() string { return "HandleEntryAspect" }

// ReceiveValidationPackage delivers the result of an earlier
// RequestValidationPackage call: either a usable package or an error
// (including Timeout), for the pending aspect keyed by HeaderAddress.
type ReceiveValidationPackage struct {
	HeaderAddress hash.Address
	Package       *types.ValidationPackage
	Err           error
}

func (ReceiveValidationPackage) ActionName() string { return "ReceiveValidationPackage" }

// Prune is dispatched periodically by the pending-queue ticker; it
// re-issues package requests for entries whose retry deadline has
// passed and drops entries whose retry budget is exhausted.
type Prune struct{}

func (Prune) ActionName() string { return "Prune" }
