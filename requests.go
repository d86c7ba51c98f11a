package jingle

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RequestError reports a failed correlated request. Source names the exchange
// the request belonged to: offer, answer, transportinfo, terminate, colibri...
type RequestError struct {
	Source string
	Err    error
}

func (e *RequestError) Error() string {
	return e.Source + ": " + e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// requestTracker correlates outgoing requests with their responses. Every
// method must be called on the dispatcher.
type requestTracker struct {
	log        *logrus.Entry
	messenger  Messenger
	dispatcher Dispatcher
	timeout    time.Duration
	pending    map[string]Timer
	closed     bool
}

func newRequestTracker(log *logrus.Entry, messenger Messenger, dispatcher Dispatcher, timeout time.Duration) *requestTracker {
	return &requestTracker{
		log:        log,
		messenger:  messenger,
		dispatcher: dispatcher,
		timeout:    timeout,
		pending:    make(map[string]Timer),
	}
}

// send issues iq. At most one of onResult and onError is called, and neither is
// called once the tracker is closed.
func (r *requestTracker) send(iq *IQ, onResult func(*IQ), onError func(error)) string {
	if r.closed {
		r.log.WithField("id", iq.ID).Warn("request tracker closed, dropping request")
		return ""
	}
	if iq.ID == "" {
		iq.ID = uuid.NewString()
	}
	id := iq.ID
	r.trace(iq)
	fail := func(err error) {
		if r.finish(id) && onError != nil {
			onError(err)
		}
	}
	r.pending[id] = r.dispatcher.AfterFunc(r.timeout, func() {
		fail(fmt.Errorf("%w, id = %v", ErrRequestTimeout, id))
	})
	r.messenger.SendRequest(iq,
		func(res *IQ) {
			r.dispatcher.Post(func() {
				if r.finish(id) && onResult != nil {
					onResult(res)
				}
			})
		},
		func(err error) {
			r.dispatcher.Post(func() {
				fail(err)
			})
		},
		r.timeout,
	)
	return id
}

// notify sends iq without expecting a correlated response.
func (r *requestTracker) notify(iq *IQ) {
	if r.closed {
		return
	}
	if iq.ID == "" {
		iq.ID = uuid.NewString()
	}
	r.trace(iq)
	if err := r.messenger.Send(iq); err != nil {
		r.log.WithError(err).Warn("send failed")
	}
}

func (r *requestTracker) trace(iq *IQ) {
	if r.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		r.log.WithField("stanza", marshalIQ(r.log, iq)).Debug("➡")
	}
}

func (r *requestTracker) finish(id string) bool {
	timer, ok := r.pending[id]
	if !ok {
		return false
	}
	delete(r.pending, id)
	timer.Stop()
	return true
}

func (r *requestTracker) inFlight() int {
	return len(r.pending)
}

func (r *requestTracker) close() {
	for id, timer := range r.pending {
		timer.Stop()
		delete(r.pending, id)
	}
	r.closed = true
}
