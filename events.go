package jingle

import (
	"github.com/sirupsen/logrus"
)

// Events are the application callbacks. All of them are optional and all of
// them run on the dispatcher.
type Events struct {
	OnIncomingCall             func(session *Session)
	OnCallTerminated           func(sid, reason, text string)
	OnRemoteStream             func(sid string, stream RemoteStream)
	OnICEConnectionStateChange func(sid string, state ICEConnectionState)
	OnICEUnreachable           func(sid string)
	OnAck                      func(sid, source string)
	OnRequestError             func(sid string, err *RequestError)
	OnRinging                  func(sid string)
	OnMute                     func(sid, content string, muted bool)
	OnConferenceEnded          func(conferenceID string)
}

type eventSink struct {
	log        *logrus.Entry
	dispatcher Dispatcher
	events     Events
}

func (e *eventSink) post(fn func()) {
	e.dispatcher.Post(func() {
		e.log.Info("⤵")
		defer e.log.Info("⤴")

		fn()
	})
}

func (e *eventSink) callOnIncomingCall(session *Session) {
	if e.events.OnIncomingCall == nil {
		return
	}
	e.post(func() {
		e.events.OnIncomingCall(session)
	})
}

func (e *eventSink) callOnCallTerminated(sid, reason, text string) {
	if e.events.OnCallTerminated == nil {
		return
	}
	e.post(func() {
		e.events.OnCallTerminated(sid, reason, text)
	})
}

func (e *eventSink) callOnRemoteStream(sid string, stream RemoteStream) {
	if e.events.OnRemoteStream == nil {
		return
	}
	e.post(func() {
		e.events.OnRemoteStream(sid, stream)
	})
}

func (e *eventSink) callOnICEConnectionStateChange(sid string, state ICEConnectionState) {
	if e.events.OnICEConnectionStateChange == nil {
		return
	}
	e.post(func() {
		e.events.OnICEConnectionStateChange(sid, state)
	})
}

func (e *eventSink) callOnICEUnreachable(sid string) {
	if e.events.OnICEUnreachable == nil {
		return
	}
	e.post(func() {
		e.events.OnICEUnreachable(sid)
	})
}

func (e *eventSink) callOnAck(sid, source string) {
	if e.events.OnAck == nil {
		return
	}
	e.post(func() {
		e.events.OnAck(sid, source)
	})
}

func (e *eventSink) callOnRequestError(sid string, err *RequestError) {
	if e.events.OnRequestError == nil {
		return
	}
	e.post(func() {
		e.events.OnRequestError(sid, err)
	})
}

func (e *eventSink) callOnRinging(sid string) {
	if e.events.OnRinging == nil {
		return
	}
	e.post(func() {
		e.events.OnRinging(sid)
	})
}

func (e *eventSink) callOnMute(sid, content string, muted bool) {
	if e.events.OnMute == nil {
		return
	}
	e.post(func() {
		e.events.OnMute(sid, content, muted)
	})
}

func (e *eventSink) callOnConferenceEnded(conferenceID string) {
	if e.events.OnConferenceEnded == nil {
		return
	}
	e.post(func() {
		e.events.OnConferenceEnded(conferenceID)
	})
}
