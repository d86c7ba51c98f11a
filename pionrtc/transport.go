package pionrtc

import (
	jingle "github.com/Connect-Club/connectclub-jingle"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// Transport adapts a pion peer connection to jingle.MediaTransport. pion
// operations are synchronous; their callbacks run before the method returns.
type Transport struct {
	log *logrus.Entry
	pc  *webrtc.PeerConnection
}

var _ jingle.MediaTransport = (*Transport)(nil)

func newTransport(log *logrus.Entry, pc *webrtc.PeerConnection) *Transport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Transport{log: log, pc: pc}
}

func (t *Transport) PeerConnection() *webrtc.PeerConnection {
	return t.pc
}

func (t *Transport) CreateOffer(onSuccess func(jingle.RTCSessionDescription), onError func(error)) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		onError(err)
		return
	}
	onSuccess(fromPion(offer))
}

func (t *Transport) CreateAnswer(onSuccess func(jingle.RTCSessionDescription), onError func(error)) {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		onError(err)
		return
	}
	onSuccess(fromPion(answer))
}

func (t *Transport) SetLocalDescription(desc jingle.RTCSessionDescription, onSuccess func(), onError func(error)) {
	if err := t.pc.SetLocalDescription(toPion(desc)); err != nil {
		onError(err)
		return
	}
	onSuccess()
}

func (t *Transport) SetRemoteDescription(desc jingle.RTCSessionDescription, onSuccess func(), onError func(error)) {
	if err := t.pc.SetRemoteDescription(toPion(desc)); err != nil {
		onError(err)
		return
	}
	onSuccess()
}

func (t *Transport) AddICECandidate(candidate jingle.ICECandidate) error {
	init := webrtc.ICECandidateInit{Candidate: candidate.Candidate}
	if candidate.SDPMid != "" {
		mid := candidate.SDPMid
		init.SDPMid = &mid
	}
	if candidate.SDPMLineIndex >= 0 {
		idx := uint16(candidate.SDPMLineIndex)
		init.SDPMLineIndex = &idx
	}
	return t.pc.AddICECandidate(init)
}

func (t *Transport) LocalDescription() *jingle.RTCSessionDescription {
	return fromPionPtr(t.pc.LocalDescription())
}

func (t *Transport) RemoteDescription() *jingle.RTCSessionDescription {
	return fromPionPtr(t.pc.RemoteDescription())
}

func (t *Transport) SignalingState() jingle.SignalingState {
	return signalingState(t.pc.SignalingState())
}

func (t *Transport) ICEConnectionState() jingle.ICEConnectionState {
	return iceConnectionState(t.pc.ICEConnectionState())
}

func (t *Transport) OnICECandidate(fn func(*jingle.ICECandidate)) {
	t.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			fn(nil)
			return
		}
		init := candidate.ToJSON()
		c := &jingle.ICECandidate{Candidate: init.Candidate, SDPMLineIndex: -1}
		if init.SDPMid != nil {
			c.SDPMid = *init.SDPMid
		}
		if init.SDPMLineIndex != nil {
			c.SDPMLineIndex = int(*init.SDPMLineIndex)
		}
		fn(c)
	})
}

func (t *Transport) OnAddStream(fn func(jingle.RemoteStream)) {
	t.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.log.WithFields(logrus.Fields{"kind": track.Kind().String(), "track": track.ID()}).Info("remote track")
		fn(jingle.RemoteStream{ID: track.StreamID(), TrackID: track.ID(), Kind: track.Kind().String()})
	})
}

func (t *Transport) OnSignalingStateChange(fn func(jingle.SignalingState)) {
	t.pc.OnSignalingStateChange(func(state webrtc.SignalingState) {
		fn(signalingState(state))
	})
}

func (t *Transport) OnICEConnectionStateChange(fn func(jingle.ICEConnectionState)) {
	t.pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		fn(iceConnectionState(state))
	})
}

func (t *Transport) Close() error {
	return t.pc.Close()
}

func toPion(desc jingle.RTCSessionDescription) webrtc.SessionDescription {
	return webrtc.SessionDescription{Type: webrtc.NewSDPType(string(desc.Type)), SDP: desc.SDP}
}

func fromPion(desc webrtc.SessionDescription) jingle.RTCSessionDescription {
	return jingle.RTCSessionDescription{Type: jingle.SDPType(desc.Type.String()), SDP: desc.SDP}
}

func fromPionPtr(desc *webrtc.SessionDescription) *jingle.RTCSessionDescription {
	if desc == nil {
		return nil
	}
	converted := fromPion(*desc)
	return &converted
}

func signalingState(state webrtc.SignalingState) jingle.SignalingState {
	switch state {
	case webrtc.SignalingStateStable:
		return jingle.SignalingStable
	case webrtc.SignalingStateHaveLocalOffer:
		return jingle.SignalingHaveLocalOffer
	case webrtc.SignalingStateHaveRemoteOffer:
		return jingle.SignalingHaveRemoteOffer
	case webrtc.SignalingStateHaveLocalPranswer:
		return jingle.SignalingHaveLocalPranswer
	case webrtc.SignalingStateHaveRemotePranswer:
		return jingle.SignalingHaveRemotePranswer
	case webrtc.SignalingStateClosed:
		return jingle.SignalingClosed
	}
	return jingle.SignalingState(state.String())
}

func iceConnectionState(state webrtc.ICEConnectionState) jingle.ICEConnectionState {
	switch state {
	case webrtc.ICEConnectionStateNew:
		return jingle.ICENew
	case webrtc.ICEConnectionStateChecking:
		return jingle.ICEChecking
	case webrtc.ICEConnectionStateConnected:
		return jingle.ICEConnected
	case webrtc.ICEConnectionStateCompleted:
		return jingle.ICECompleted
	case webrtc.ICEConnectionStateFailed:
		return jingle.ICEFailed
	case webrtc.ICEConnectionStateDisconnected:
		return jingle.ICEDisconnected
	case webrtc.ICEConnectionStateClosed:
		return jingle.ICEClosed
	}
	return jingle.ICEConnectionState(state.String())
}
