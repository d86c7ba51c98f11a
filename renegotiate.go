package jingle

import (
	"time"

	"github.com/sirupsen/logrus"
)

// renegotiator merges queued source lines into the remote description of a
// transport once it is stable and connected. Every method must be called on
// the dispatcher.
type renegotiator struct {
	log        *logrus.Entry
	dispatcher Dispatcher
	transport  MediaTransport
	poll       time.Duration
	settle     time.Duration
	// forceSendRecv turns the first a=recvonly of each section into a=sendrecv.
	forceSendRecv bool
	onApplied     func(answer RTCSessionDescription)

	add     map[int][]string
	remove  map[int][]string
	wait    bool
	timer   Timer
	stopped bool
}

func newRenegotiator(log *logrus.Entry, dispatcher Dispatcher, transport MediaTransport, poll, settle time.Duration, forceSendRecv bool) *renegotiator {
	return &renegotiator{
		log:           log,
		dispatcher:    dispatcher,
		transport:     transport,
		poll:          poll,
		settle:        settle,
		forceSendRecv: forceSendRecv,
		add:           make(map[int][]string),
		remove:        make(map[int][]string),
		wait:          true,
	}
}

func (r *renegotiator) queueAdd(idx int, lines []string) {
	if len(lines) > 0 {
		r.add[idx] = append(r.add[idx], lines...)
	}
}

func (r *renegotiator) queueRemove(idx int, lines []string) {
	if len(lines) > 0 {
		r.remove[idx] = append(r.remove[idx], lines...)
	}
}

func (r *renegotiator) pending() bool {
	return len(r.add) > 0 || len(r.remove) > 0
}

func (r *renegotiator) ready() bool {
	ice := r.transport.ICEConnectionState()
	return r.transport.SignalingState() == SignalingStable && (ice == ICEConnected || ice == ICECompleted)
}

func (r *renegotiator) schedule(d time.Duration) {
	r.timer = r.dispatcher.AfterFunc(d, func() {
		r.timer = nil
		r.modify()
	})
}

func (r *renegotiator) modify() {
	if r.stopped || !r.pending() {
		return
	}
	if r.transport.SignalingState() == SignalingClosed {
		return
	}
	if r.timer != nil {
		return
	}
	if !r.ready() {
		r.log.WithFields(logrus.Fields{
			"signaling": r.transport.SignalingState(),
			"ice":       r.transport.ICEConnectionState(),
		}).Debug("modify sources not yet")
		r.wait = true
		r.schedule(r.poll)
		return
	}
	if r.wait {
		r.wait = false
		r.schedule(r.settle)
		return
	}
	r.apply()
}

func (r *renegotiator) apply() {
	remote := r.transport.RemoteDescription()
	if remote == nil {
		r.log.Warn("modify sources without remote description")
		return
	}
	sdp := ParseSDP(remote.SDP)
	sdp.Session.Remove("a=msid-semantic:")
	if r.forceSendRecv {
		for _, media := range sdp.Media {
			media.ReplaceFirst("a=recvonly", "a=sendrecv")
		}
	}
	for idx, lines := range r.add {
		if idx >= len(sdp.Media) {
			r.log.WithField("mline", idx).Warn("no media section for added sources")
			continue
		}
		sdp.Media[idx].InsertSources(lines)
	}
	for idx, lines := range r.remove {
		if idx >= len(sdp.Media) {
			continue
		}
		for _, line := range lines {
			sdp.Media[idx].RemoveExact(line)
		}
	}
	r.add = make(map[int][]string)
	r.remove = make(map[int][]string)
	r.wait = true

	offer := RTCSessionDescription{Type: SDPOffer, SDP: sdp.Raw()}
	r.transport.SetRemoteDescription(offer,
		func() {
			r.dispatcher.Post(r.answer)
		},
		r.failure("modified setRemoteDescription failed"),
	)
}

func (r *renegotiator) answer() {
	if r.stopped {
		return
	}
	r.transport.CreateAnswer(
		func(answer RTCSessionDescription) {
			r.dispatcher.Post(func() {
				if r.stopped {
					return
				}
				r.transport.SetLocalDescription(answer,
					func() {
						r.dispatcher.Post(func() {
							if r.stopped {
								return
							}
							if r.onApplied != nil {
								r.onApplied(answer)
							}
							r.modify()
						})
					},
					r.failure("modified setLocalDescription failed"),
				)
			})
		},
		r.failure("modified createAnswer failed"),
	)
}

func (r *renegotiator) failure(msg string) func(error) {
	return func(err error) {
		r.dispatcher.Post(func() {
			r.log.WithError(err).Error(msg)
		})
	}
}

func (r *renegotiator) stop() {
	r.stopped = true
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}
