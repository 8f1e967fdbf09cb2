package memory

// Method names a hypervisor call recorded in the journal.
type Method string

// Journaled methods.
const (
	MethodMachines        Method = "Client.Machines"
	MethodFindMachine     Method = "Client.FindMachine"
	MethodNewSession      Method = "Client.NewSession"
	MethodState           Method = "Machine.State"
	MethodSessionState    Method = "Machine.SessionState"
	MethodGuestProperties Method = "Machine.GuestProperties"
	MethodLock            Method = "Machine.Lock"
	MethodLaunchProcess   Method = "Machine.LaunchProcess"
	MethodFindSnapshot    Method = "Machine.FindSnapshot"
	MethodSessionStatus   Method = "Session.State"
	MethodUnlock          Method = "Session.Unlock"
	MethodPowerDown       Method = "Session.PowerDown"
	MethodRestoreSnapshot Method = "Session.RestoreSnapshot"
	MethodWait            Method = "Operation.WaitForCompletion"
)

// Mutating reports whether the method changes machine or session state.
func (m Method) Mutating() bool {
	switch m {
	case MethodLock, MethodLaunchProcess, MethodUnlock, MethodPowerDown, MethodRestoreSnapshot:
		return true
	default:
		return false
	}
}

// Call is one journaled hypervisor call.
type Call struct {
	Method  Method
	Machine string
	Session string
}

// Fail queues err as the result of the next call to method.
// The failed call has no effect. Multiple faults are consumed in order.
func (h *Hypervisor) Fail(method Method, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults[method] = append(h.faults[method], err)
}

// FailCompletion makes the next operation started by method complete with err.
func (h *Hypervisor) FailCompletion(method Method, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opFaults[method] = append(h.opFaults[method], err)
}

// Calls returns a copy of the journal.
func (h *Hypervisor) Calls() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()

	calls := make([]Call, len(h.journal))
	copy(calls, h.journal)
	return calls
}

// CallCount returns how many times method was called.
func (h *Hypervisor) CallCount(method Method) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	n := 0
	for _, c := range h.journal {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Mutations returns the journaled calls that change state.
func (h *Hypervisor) Mutations() []Call {
	h.mu.Lock()
	defer h.mu.Unlock()

	var calls []Call
	for _, c := range h.journal {
		if c.Method.Mutating() {
			calls = append(calls, c)
		}
	}
	return calls
}

// ResetCalls clears the journal.
func (h *Hypervisor) ResetCalls() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.journal = nil
}
