package lifecycle

import "errors"

// ErrInvalidTransition is returned when the requested operation would move
// a VM to a state ValidTransitions doesn't allow from its current state.
var ErrInvalidTransition = errors.New("lifecycle: invalid state transition")

// ErrJobInProgress is returned when a second snapshot/clone/backup/migrate
// workflow is requested for a VM that already has one outstanding — §4.F
// serializes workflows per VM so a restore can't race a snapshot.
var ErrJobInProgress = errors.New("lifecycle: another workflow is already in progress for this VM")
