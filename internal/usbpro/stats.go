package usbpro

// Stats is a snapshot of the engine counters.
type Stats struct {
	FramesReceived  uint64 `json:"framesReceived"`
	FramesDropped   uint64 `json:"framesDropped"`
	FramesSent      uint64 `json:"framesSent"`
	RequestsOK      uint64 `json:"requestsOk"`
	RequestsFailed  uint64 `json:"requestsFailed"`
	PendingRequests int    `json:"pendingRequests"`
}

// statsObserver counts events before passing them on.
type statsObserver struct {
	stats *Stats
	next  Observer
}

func (o statsObserver) FrameReceived(label Label) {
	o.stats.FramesReceived++
	o.next.FrameReceived(label)
}

func (o statsObserver) FrameDropped(label Label, reason string) {
	o.stats.FramesDropped++
	o.next.FrameDropped(label, reason)
}

func (o statsObserver) FrameSent(label Label) {
	o.stats.FramesSent++
	o.next.FrameSent(label)
}

func (o statsObserver) RequestFinished(kind string, ok bool) {
	if ok {
		o.stats.RequestsOK++
	} else {
		o.stats.RequestsFailed++
	}
	o.next.RequestFinished(kind, ok)
}

func (o statsObserver) PendingRequests(n int) {
	o.next.PendingRequests(n)
}

// Stats returns the counters collected since the engine was created.
func (e *Engine) Stats() Stats {
	s := e.stats
	s.PendingRequests = e.params.Len() + e.serials.Len()
	return s
}
