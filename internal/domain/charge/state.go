package charge

// chargeState implements the state pattern for the charge lifecycle. The
// provider only ever moves a charge forward: pending → active, and either of
// those → completed or failed. Terminal states reject everything.
type chargeState interface {
	Status() Status
	OnActivated(c *Charge) (chargeState, error)
	OnCompleted(c *Charge) (chargeState, error)
	OnFailed(c *Charge, reason string) (chargeState, error)
}

func stateFor(s Status) chargeState {
	switch s {
	case StatusPending:
		return pendingState{}
	case StatusActive:
		return activeState{}
	case StatusCompleted:
		return completedState{}
	case StatusFailed:
		return failedState{}
	}
	return nil
}

// CanTransition reports whether from → to is a legal forward move.
func CanTransition(from, to Status) bool {
	st := stateFor(from)
	if st == nil {
		return false
	}
	var err error
	probe := &Charge{Status: from}
	switch to {
	case StatusActive:
		_, err = st.OnActivated(probe)
	case StatusCompleted:
		_, err = st.OnCompleted(probe)
	case StatusFailed:
		_, err = st.OnFailed(probe, "")
	default:
		return false
	}
	return err == nil
}

// Activate moves a pending charge to active.
func (c *Charge) Activate() error {
	return c.apply(func(st chargeState) (chargeState, error) {
		return st.OnActivated(c)
	})
}

// Complete settles the charge. Only the reconciler's winning observer calls
// this, after the compare-and-set on the repository succeeded.
func (c *Charge) Complete() error {
	return c.apply(func(st chargeState) (chargeState, error) {
		return st.OnCompleted(c)
	})
}

// Fail terminates the charge with a provider-reported reason.
func (c *Charge) Fail(reason string) error {
	return c.apply(func(st chargeState) (chargeState, error) {
		return st.OnFailed(c, reason)
	})
}

func (c *Charge) apply(fn func(chargeState) (chargeState, error)) error {
	st := stateFor(c.Status)
	if st == nil {
		return ErrInvalidStateTransition
	}
	next, err := fn(st)
	if err != nil {
		return err
	}
	c.Status = next.Status()
	c.touch()
	return nil
}

type pendingState struct{}

func (pendingState) Status() Status { return StatusPending }

func (pendingState) OnActivated(c *Charge) (chargeState, error) {
	return activeState{}, nil
}

func (pendingState) OnCompleted(c *Charge) (chargeState, error) {
	// The provider may settle a charge without the poller ever observing the
	// intermediate active status.
	return completedState{}, nil
}

func (pendingState) OnFailed(c *Charge, reason string) (chargeState, error) {
	c.FailureReason = reason
	return failedState{}, nil
}

type activeState struct{}

func (activeState) Status() Status { return StatusActive }

func (activeState) OnActivated(*Charge) (chargeState, error) {
	return activeState{}, nil
}

func (activeState) OnCompleted(c *Charge) (chargeState, error) {
	return completedState{}, nil
}

func (activeState) OnFailed(c *Charge, reason string) (chargeState, error) {
	c.FailureReason = reason
	return failedState{}, nil
}

type completedState struct{}

func (completedState) Status() Status { return StatusCompleted }

func (completedState) OnActivated(*Charge) (chargeState, error) {
	return nil, ErrInvalidStateTransition
}

func (completedState) OnCompleted(*Charge) (chargeState, error) {
	return nil, ErrInvalidStateTransition
}

func (completedState) OnFailed(*Charge, string) (chargeState, error) {
	return nil, ErrInvalidStateTransition
}

type failedState struct{}

func (failedState) Status() Status { return StatusFailed }

func (failedState) OnActivated(*Charge) (chargeState, error) {
	return nil, ErrInvalidStateTransition
}

func (failedState) OnCompleted(*Charge) (chargeState, error) {
	return nil, ErrInvalidStateTransition
}

func (failedState) OnFailed(*Charge, string) (chargeState, error) {
	return nil, ErrInvalidStateTransition
}
