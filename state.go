package coach

// EditPhase is the state of a session's edit pipeline. UI code reads the
// phase from Coordinator.Phase instead of inferring it from loading flags.
//
// Transitions: Idle → Editing → Regenerating → Reconciled, with any phase
// after Idle able to move to Failed. A new edit resets the phase to Editing.
type EditPhase int

const (
	PhaseIdle EditPhase = iota
	PhaseEditing
	PhaseRegenerating
	PhaseReconciled
	PhaseFailed
)

func (p EditPhase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseEditing:
		return "editing"
	case PhaseRegenerating:
		return "regenerating"
	case PhaseReconciled:
		return "reconciled"
	case PhaseFailed:
		return "failed"
	default:
		return "unknown"
	}
}
