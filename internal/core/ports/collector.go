package ports

// Collector records client-side protocol metrics. Implementations must be
// safe for concurrent use.
type Collector interface {
	RecordEventSent(event string)
	RecordEventReceived(event string)
	RecordEditBroadcast()
	RecordEditSuppressed()
	RecordAutosaveFailure()
	RecordPeerLinkOpened()
	RecordPeerLinkClosed()
	SetCallState(state string)
}
