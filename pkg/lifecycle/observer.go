package lifecycle

import "mercator-hq/smartproxy/pkg/admission"

// Observer receives machine notifications. Implementations must be
// fast or hand off to their own goroutine; callbacks run on the
// machine's writer goroutine.
type Observer interface {
	// StateChanged fires after every transition.
	StateChanged(from, to State, reason string)

	// IntentAdmitted fires when an intent is enqueued.
	IntentAdmitted(intent *admission.Intent, queueLen int)

	// IntentReleased fires when an intent is handed to a forwarder.
	IntentReleased(intent *admission.Intent)

	// IntentFailed fires when an intent is failed with an
	// HTTP-equivalent response.
	IntentFailed(intent *admission.Intent, failure admission.Failure)

	// PowerCommand fires when a power verb completes.
	PowerCommand(verb string, err error)
}

// NopObserver is an Observer that ignores everything. Embed it to
// implement only the callbacks of interest.
type NopObserver struct{}

func (NopObserver) StateChanged(from, to State, reason string)                       {}
func (NopObserver) IntentAdmitted(intent *admission.Intent, queueLen int)            {}
func (NopObserver) IntentReleased(intent *admission.Intent)                          {}
func (NopObserver) IntentFailed(intent *admission.Intent, failure admission.Failure) {}
func (NopObserver) PowerCommand(verb string, err error)                              {}
