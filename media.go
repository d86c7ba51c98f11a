package jingle

import (
	"time"
)

type SDPType string

const (
	SDPOffer    SDPType = "offer"
	SDPPranswer SDPType = "pranswer"
	SDPAnswer   SDPType = "answer"
	SDPRollback SDPType = "rollback"
)

// RTCSessionDescription is a typed textual description handed to or produced
// by a media transport.
type RTCSessionDescription struct {
	Type SDPType
	SDP  string
}

// ICECandidate is a candidate as surfaced by a media transport.
type ICECandidate struct {
	Candidate     string // "candidate:..." attribute value
	SDPMid        string
	SDPMLineIndex int
}

type SignalingState string

const (
	SignalingStable             SignalingState = "stable"
	SignalingHaveLocalOffer     SignalingState = "have-local-offer"
	SignalingHaveRemoteOffer    SignalingState = "have-remote-offer"
	SignalingHaveLocalPranswer  SignalingState = "have-local-pranswer"
	SignalingHaveRemotePranswer SignalingState = "have-remote-pranswer"
	SignalingClosed             SignalingState = "closed"
)

type ICEConnectionState string

const (
	ICENew          ICEConnectionState = "new"
	ICEChecking     ICEConnectionState = "checking"
	ICEConnected    ICEConnectionState = "connected"
	ICECompleted    ICEConnectionState = "completed"
	ICEFailed       ICEConnectionState = "failed"
	ICEDisconnected ICEConnectionState = "disconnected"
	ICEClosed       ICEConnectionState = "closed"
)

type RemoteStream struct {
	ID      string
	TrackID string
	Kind    string
}

// MediaTransport is the capability set of a peer connection. Callbacks may be
// invoked from any goroutine.
type MediaTransport interface {
	CreateOffer(onSuccess func(RTCSessionDescription), onError func(error))
	CreateAnswer(onSuccess func(RTCSessionDescription), onError func(error))
	SetLocalDescription(desc RTCSessionDescription, onSuccess func(), onError func(error))
	SetRemoteDescription(desc RTCSessionDescription, onSuccess func(), onError func(error))
	AddICECandidate(candidate ICECandidate) error
	LocalDescription() *RTCSessionDescription
	RemoteDescription() *RTCSessionDescription
	SignalingState() SignalingState
	ICEConnectionState() ICEConnectionState
	// OnICECandidate handlers receive nil once gathering is complete.
	OnICECandidate(func(*ICECandidate))
	OnAddStream(func(RemoteStream))
	OnSignalingStateChange(func(SignalingState))
	OnICEConnectionStateChange(func(ICEConnectionState))
	Close() error
}

type ICEServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type TransportConfig struct {
	ICEServers []ICEServer
}

type MediaTransportFactory interface {
	NewMediaTransport(cfg TransportConfig) (MediaTransport, error)
}

// Messenger is the capability set of the signaling connection.
type Messenger interface {
	// SendRequest sends iq and returns its id. Exactly one of onResult and
	// onError is called, unless the connection is closed first.
	SendRequest(iq *IQ, onResult func(*IQ), onError func(error), timeout time.Duration) string
	Send(iq *IQ) error
	RegisterHandler(match func(*IQ) bool, handle func(*IQ))
}
