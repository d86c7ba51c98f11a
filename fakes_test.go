package jingle

import (
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

var testLog = logrus.WithField("test", true)

func sdpText(lines ...string) string {
	return strings.Join(lines, crlf) + crlf
}

var testOffer = sdpText(
	"v=0",
	"o=- 4611731400430051336 2 IN IP4 127.0.0.1",
	"s=-",
	"t=0 0",
	"a=group:BUNDLE audio video",
	"a=msid-semantic: WMS stream",
	"m=audio 9 UDP/TLS/RTP/SAVPF 111 0",
	"c=IN IP4 0.0.0.0",
	"a=rtcp:9 IN IP4 0.0.0.0",
	"a=ice-ufrag:aUfr",
	"a=ice-pwd:audiopasswordaudiopassword",
	"a=fingerprint:sha-256 AB:CD:EF:01",
	"a=setup:actpass",
	"a=mid:audio",
	"a=sendrecv",
	"a=rtcp-mux",
	"a=rtpmap:111 opus/48000/2",
	"a=fmtp:111 minptime=10;useinbandfec=1",
	"a=rtpmap:0 PCMU/8000",
	"a=ssrc:1111 cname:alice",
	"a=ssrc:1111 msid:stream audio0",
	"m=video 9 UDP/TLS/RTP/SAVPF 96",
	"c=IN IP4 0.0.0.0",
	"a=rtcp:9 IN IP4 0.0.0.0",
	"a=ice-ufrag:vUfr",
	"a=ice-pwd:videopasswordvideopassword",
	"a=fingerprint:sha-256 AB:CD:EF:01",
	"a=setup:actpass",
	"a=mid:video",
	"a=sendrecv",
	"a=rtcp-mux",
	"a=rtpmap:96 VP8/90000",
	"a=rtcp-fb:96 nack",
	"a=ssrc:2222 cname:alice",
)

const (
	hostCandidate  = "candidate:1 1 udp 2122260223 192.168.1.2 50000 typ host generation 0"
	srflxCandidate = "candidate:2 1 udp 1686052607 203.0.113.7 41000 typ srflx raddr 192.168.1.2 rport 50000 generation 0"
)

type fakeTimer struct {
	at      time.Duration
	seq     int
	fn      func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// fakeDispatcher runs posted callbacks on demand against a manual clock.
type fakeDispatcher struct {
	now    time.Duration
	seq    int
	queue  []func()
	timers []*fakeTimer
}

func (d *fakeDispatcher) Post(fn func()) {
	d.queue = append(d.queue, fn)
}

func (d *fakeDispatcher) AfterFunc(delay time.Duration, fn func()) Timer {
	d.seq++
	t := &fakeTimer{at: d.now + delay, seq: d.seq, fn: fn}
	d.timers = append(d.timers, t)
	return t
}

// run drains the queue, including callbacks posted while draining.
func (d *fakeDispatcher) run() {
	for len(d.queue) > 0 {
		fn := d.queue[0]
		d.queue = d.queue[1:]
		fn()
	}
}

// advance moves the clock forward, firing due timers in deadline order.
func (d *fakeDispatcher) advance(delta time.Duration) {
	target := d.now + delta
	d.run()
	for {
		next := d.nextTimer(target)
		if next == nil {
			break
		}
		d.now = next.at
		next.fired = true
		next.fn()
		d.run()
	}
	d.now = target
}

func (d *fakeDispatcher) nextTimer(limit time.Duration) *fakeTimer {
	var live []*fakeTimer
	for _, t := range d.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	d.timers = live
	sort.Slice(live, func(i, j int) bool {
		if live[i].at == live[j].at {
			return live[i].seq < live[j].seq
		}
		return live[i].at < live[j].at
	})
	if len(live) == 0 || live[0].at > limit {
		return nil
	}
	return live[0]
}

func (d *fakeDispatcher) pendingTimers() int {
	n := 0
	for _, t := range d.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeTransport answers every operation synchronously and tracks signaling
// state the way a peer connection would.
type fakeTransport struct {
	offer  string
	answer string

	local     *RTCSessionDescription
	remote    *RTCSessionDescription
	signaling SignalingState
	ice       ICEConnectionState

	setLocal   []RTCSessionDescription
	setRemote  []RTCSessionDescription
	candidates []ICECandidate
	remoteErr  error
	closed     bool

	onCandidate func(*ICECandidate)
	onStream    func(RemoteStream)
	onSignaling func(SignalingState)
	onICE       func(ICEConnectionState)
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{offer: testOffer, answer: testOffer, signaling: SignalingStable, ice: ICENew}
}

func (t *fakeTransport) CreateOffer(onSuccess func(RTCSessionDescription), onError func(error)) {
	onSuccess(RTCSessionDescription{Type: SDPOffer, SDP: t.offer})
}

func (t *fakeTransport) CreateAnswer(onSuccess func(RTCSessionDescription), onError func(error)) {
	if t.remote == nil {
		onError(errors.New("no remote offer"))
		return
	}
	onSuccess(RTCSessionDescription{Type: SDPAnswer, SDP: t.answer})
}

func (t *fakeTransport) SetLocalDescription(desc RTCSessionDescription, onSuccess func(), onError func(error)) {
	t.setLocal = append(t.setLocal, desc)
	t.local = &desc
	switch desc.Type {
	case SDPOffer:
		t.signaling = SignalingHaveLocalOffer
	case SDPPranswer:
		t.signaling = SignalingHaveLocalPranswer
	case SDPAnswer:
		t.signaling = SignalingStable
	}
	onSuccess()
}

func (t *fakeTransport) SetRemoteDescription(desc RTCSessionDescription, onSuccess func(), onError func(error)) {
	t.setRemote = append(t.setRemote, desc)
	if t.remoteErr != nil {
		onError(t.remoteErr)
		return
	}
	t.remote = &desc
	switch desc.Type {
	case SDPOffer:
		t.signaling = SignalingHaveRemoteOffer
	case SDPPranswer:
		t.signaling = SignalingHaveRemotePranswer
	case SDPAnswer:
		t.signaling = SignalingStable
	}
	onSuccess()
}

func (t *fakeTransport) AddICECandidate(candidate ICECandidate) error {
	t.candidates = append(t.candidates, candidate)
	return nil
}

func (t *fakeTransport) LocalDescription() *RTCSessionDescription  { return t.local }
func (t *fakeTransport) RemoteDescription() *RTCSessionDescription { return t.remote }
func (t *fakeTransport) SignalingState() SignalingState            { return t.signaling }
func (t *fakeTransport) ICEConnectionState() ICEConnectionState    { return t.ice }

func (t *fakeTransport) OnICECandidate(fn func(*ICECandidate))                  { t.onCandidate = fn }
func (t *fakeTransport) OnAddStream(fn func(RemoteStream))                      { t.onStream = fn }
func (t *fakeTransport) OnSignalingStateChange(fn func(SignalingState))         { t.onSignaling = fn }
func (t *fakeTransport) OnICEConnectionStateChange(fn func(ICEConnectionState)) { t.onICE = fn }

func (t *fakeTransport) Close() error {
	t.closed = true
	t.signaling = SignalingClosed
	return nil
}

func (t *fakeTransport) connect() {
	t.signaling = SignalingStable
	t.ice = ICEConnected
}

type fakeFactory struct {
	transports []*fakeTransport
	err        error
}

func (f *fakeFactory) NewMediaTransport(TransportConfig) (MediaTransport, error) {
	if f.err != nil {
		return nil, f.err
	}
	t := newFakeTransport()
	f.transports = append(f.transports, t)
	return t, nil
}

func (f *fakeFactory) last() *fakeTransport {
	return f.transports[len(f.transports)-1]
}

type sentRequest struct {
	iq       *IQ
	onResult func(*IQ)
	onError  func(error)
}

// fakeMessenger records outgoing stanzas; responses are injected by tests.
type fakeMessenger struct {
	requests []*sentRequest
	sent     []*IQ
	match    func(*IQ) bool
	handle   func(*IQ)
}

func (m *fakeMessenger) SendRequest(iq *IQ, onResult func(*IQ), onError func(error), timeout time.Duration) string {
	m.requests = append(m.requests, &sentRequest{iq: iq, onResult: onResult, onError: onError})
	return iq.ID
}

func (m *fakeMessenger) Send(iq *IQ) error {
	m.sent = append(m.sent, iq)
	return nil
}

func (m *fakeMessenger) RegisterHandler(match func(*IQ) bool, handle func(*IQ)) {
	m.match, m.handle = match, handle
}

func (m *fakeMessenger) deliver(iq *IQ) {
	if m.match != nil && m.match(iq) {
		m.handle(iq)
	}
}

// jingleRequests returns the recorded requests carrying action.
func (m *fakeMessenger) jingleRequests(action Action) []*sentRequest {
	var found []*sentRequest
	for _, r := range m.requests {
		if r.iq.Jingle != nil && r.iq.Jingle.Action() == action {
			found = append(found, r)
		}
	}
	return found
}

func (m *fakeMessenger) colibriRequests() []*sentRequest {
	var found []*sentRequest
	for _, r := range m.requests {
		if r.iq.Conference != nil {
			found = append(found, r)
		}
	}
	return found
}

func (r *sentRequest) ack() {
	r.onResult(r.iq.Result())
}

type recorder struct {
	acks        []string
	errors      []*RequestError
	terminated  []string
	incoming    []*Session
	unreachable int
	ringing     []string
	mutes       []string
	ended       []string
}

func (r *recorder) events() Events {
	return Events{
		OnIncomingCall: func(s *Session) { r.incoming = append(r.incoming, s) },
		OnCallTerminated: func(sid, reason, text string) {
			r.terminated = append(r.terminated, sid+":"+reason)
		},
		OnICEUnreachable: func(string) { r.unreachable++ },
		OnAck:            func(sid, source string) { r.acks = append(r.acks, source) },
		OnRequestError:   func(sid string, err *RequestError) { r.errors = append(r.errors, err) },
		OnRinging:        func(sid string) { r.ringing = append(r.ringing, sid) },
		OnMute: func(sid, content string, muted bool) {
			if muted {
				r.mutes = append(r.mutes, "mute:"+content)
			} else {
				r.mutes = append(r.mutes, "unmute:"+content)
			}
		},
		OnConferenceEnded: func(id string) { r.ended = append(r.ended, id) },
	}
}

type testEnv struct {
	dispatcher *fakeDispatcher
	messenger  *fakeMessenger
	factory    *fakeFactory
	recorder   *recorder
	env        *environment
}

func newTestEnv(cfg Config) *testEnv {
	te := &testEnv{
		dispatcher: &fakeDispatcher{},
		messenger:  &fakeMessenger{},
		factory:    &fakeFactory{},
		recorder:   &recorder{},
	}
	te.env = &environment{
		cfg:        cfg,
		dispatcher: te.dispatcher,
		messenger:  te.messenger,
		factory:    te.factory,
		events:     &eventSink{log: testLog, dispatcher: te.dispatcher, events: te.recorder.events()},
	}
	return te
}

func (te *testEnv) manager(jid string) *Manager {
	m := NewManager(jid, te.messenger, te.factory, te.dispatcher, nil, te.env.cfg, te.recorder.events())
	m.env = te.env
	m.Start()
	return m
}
