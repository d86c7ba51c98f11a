package jingle

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

type State int

const (
	StateNull State = iota
	StatePending
	StateActive
	StateError
	StateEnded
)

func (s State) String() string {
	return [...]string{
		"null",
		"pending",
		"active",
		"error",
		"ended",
	}[s]
}

// environment is what sessions and conferences of one Manager share.
type environment struct {
	cfg        Config
	dispatcher Dispatcher
	messenger  Messenger
	factory    MediaTransportFactory
	events     *eventSink
}

func (env *environment) transportConfig() TransportConfig {
	return TransportConfig{ICEServers: append([]ICEServer(nil), env.cfg.ICEServers...)}
}

// Session is one peer to peer negotiation. Its methods must be called on the
// dispatcher.
type Session struct {
	log         *logrus.Entry
	env         *environment
	sid         string
	local       string
	peer        string
	initiator   string
	responder   string
	isInitiator bool
	state       State
	reason      string

	transport    MediaTransport
	requests     *requestTracker
	batcher      *Batcher
	renegotiator *renegotiator

	localSDP      *SessionDescription
	remoteSDP     *SessionDescription
	tally         candidateTally
	lastCandidate bool
	provisional   bool
}

func newSession(env *environment, local, sid string) *Session {
	log := logrus.WithFields(logrus.Fields{"sid": sid, "jid": local})
	return &Session{
		log:      log,
		env:      env,
		sid:      sid,
		local:    local,
		requests: newRequestTracker(log, env.messenger, env.dispatcher, env.cfg.RequestTimeout),
	}
}

func (s *Session) SID() string {
	return s.sid
}

func (s *Session) Peer() string {
	return s.peer
}

func (s *Session) State() State {
	return s.state
}

func (s *Session) Active() bool {
	return s.state == StateActive
}

func (s *Session) IsInitiator() bool {
	return s.isInitiator
}

// Reason is the reason given to Terminate.
func (s *Session) Reason() string {
	return s.reason
}

func (s *Session) Transport() MediaTransport {
	return s.transport
}

// LocalSDP is the last local description produced for the peer.
func (s *Session) LocalSDP() *SessionDescription {
	return s.localSDP
}

// RemoteSDP is the last remote description built from the peer's messages.
func (s *Session) RemoteSDP() *SessionDescription {
	return s.remoteSDP
}

func (s *Session) creator() string {
	if s.initiator == s.local {
		return "initiator"
	}
	return "responder"
}

func (s *Session) usable() error {
	switch s.state {
	case StateNull:
		return fmt.Errorf("%w, sid = %v", ErrNotInitiated, s.sid)
	case StateEnded:
		return fmt.Errorf("%w, sid = %v", ErrSessionEnded, s.sid)
	}
	return nil
}

func (s *Session) Initiate(peer string, isInitiator bool) error {
	if s.state != StateNull {
		return fmt.Errorf("%w, sid = %v, state = %v", ErrAlreadyInitiated, s.sid, s.state)
	}
	transport, err := s.env.factory.NewMediaTransport(s.env.transportConfig())
	if err != nil {
		return fmt.Errorf("cannot create media transport: %w", err)
	}
	s.log = s.log.WithField("peer", peer)
	s.log.Info("🚀")

	s.peer = peer
	s.isInitiator = isInitiator
	if isInitiator {
		s.initiator, s.responder = s.local, peer
	} else {
		s.initiator, s.responder = peer, s.local
	}
	s.state = StatePending
	s.transport = transport
	s.tally = candidateTally{}
	s.lastCandidate = false
	s.requests.log = s.log
	s.batcher = NewBatcher(s.env.dispatcher, s.env.cfg.TrickleInterval, s.sendTransportInfo)
	s.renegotiator = newRenegotiator(s.log, s.env.dispatcher, transport, s.env.cfg.ReadinessPoll, s.env.cfg.SettleDelay, true)

	dispatcher := s.env.dispatcher
	transport.OnICECandidate(func(candidate *ICECandidate) {
		dispatcher.Post(func() {
			s.sendIceCandidate(candidate)
		})
	})
	transport.OnAddStream(func(stream RemoteStream) {
		dispatcher.Post(func() {
			if s.state != StateEnded {
				s.env.events.callOnRemoteStream(s.sid, stream)
			}
		})
	})
	transport.OnSignalingStateChange(func(state SignalingState) {
		dispatcher.Post(func() {
			s.log.WithField("signaling", state).Debug("signaling state changed")
		})
	})
	transport.OnICEConnectionStateChange(func(state ICEConnectionState) {
		dispatcher.Post(func() {
			if s.state == StateEnded {
				return
			}
			s.log.WithField("ice", state).Info("ice connection state changed")
			s.env.events.callOnICEConnectionStateChange(s.sid, state)
		})
	})
	return nil
}

func (s *Session) SendOffer() error {
	s.log.Info("🚀")
	if err := s.usable(); err != nil {
		return err
	}
	s.transport.CreateOffer(
		func(offer RTCSessionDescription) {
			s.env.dispatcher.Post(func() {
				s.createdOffer(offer)
			})
		},
		s.failure("createOffer failed"),
	)
	return nil
}

func (s *Session) createdOffer(offer RTCSessionDescription) {
	if s.state == StateEnded {
		return
	}
	s.localSDP = ParseSDP(offer.SDP)
	if s.env.cfg.Trickle {
		iq, j := createJingleIQ(s.peer, ActionSessionInitiate, s.initiator, s.sid)
		s.localSDP.ToJingle(j, s.creator(), ToJingleOptions{WithoutCandidates: true})
		s.sendOfferIQ(iq)
	}
	offer.SDP = s.localSDP.Raw()
	s.transport.SetLocalDescription(offer, s.success("setLocalDescription success"), s.failure("setLocalDescription failed"))
	s.tally.addLines(s.localSDP.FindAll("a=candidate:"))
}

func (s *Session) sendOfferIQ(iq *IQ) {
	s.requests.send(iq,
		func(*IQ) {
			s.env.events.callOnAck(s.sid, "offer")
		},
		func(err error) {
			if s.state == StatePending {
				s.state = StateError
			}
			s.stopMedia()
			s.env.events.callOnRequestError(s.sid, &RequestError{Source: "offer", Err: err})
		},
	)
}

func (s *Session) sendAnswerIQ(iq *IQ) {
	s.requests.send(iq,
		func(*IQ) {
			s.env.events.callOnAck(s.sid, "answer")
		},
		func(err error) {
			s.env.events.callOnRequestError(s.sid, &RequestError{Source: "answer", Err: err})
		},
	)
}

func (s *Session) sendIceCandidate(candidate *ICECandidate) {
	if s.state == StateEnded || s.state == StateError {
		return
	}
	if candidate != nil {
		if s.lastCandidate {
			return
		}
		parsed, err := ParseCandidate(candidate.Candidate)
		if err != nil {
			s.log.WithError(err).Error("failed to parse local candidate")
			return
		}
		s.tally.add(parsed)
		if s.env.cfg.Trickle {
			s.batcher.Add(candidate)
		}
		return
	}

	s.log.Info("end of candidates")
	if !s.env.cfg.Trickle {
		s.sendFullDescription()
	}
	s.lastCandidate = true
	if s.tally.none() && s.transport.SignalingState() != SignalingClosed {
		s.env.events.callOnICEUnreachable(s.sid)
	}
}

// sendFullDescription sends the local description together with every
// gathered candidate. Provisional answers wait for Accept.
func (s *Session) sendFullDescription() {
	local := s.transport.LocalDescription()
	if local == nil {
		s.log.Warn("no local description to send")
		return
	}
	if local.Type == SDPPranswer {
		return
	}
	s.localSDP = ParseSDP(local.SDP)
	action := ActionSessionAccept
	if local.Type == SDPOffer {
		action = ActionSessionInitiate
	}
	iq, j := createJingleIQ(s.peer, action, s.initiator, s.sid)
	s.localSDP.ToJingle(j, s.creator(), ToJingleOptions{})
	if action == ActionSessionInitiate {
		s.sendOfferIQ(iq)
		return
	}
	j.Responder = s.responder
	s.sendAnswerIQ(iq)
}

func (s *Session) sendTransportInfo(batch []*ICECandidate) {
	if s.state == StateEnded || s.localSDP == nil {
		return
	}
	contents := TransportInfoContents(s.localSDP, batch, s.creator())
	if len(contents) == 0 {
		return
	}
	iq, j := createJingleIQ(s.peer, ActionTransportInfo, s.initiator, s.sid)
	j.Contents = contents
	s.requests.send(iq,
		func(*IQ) {
			s.env.events.callOnAck(s.sid, "transportinfo")
		},
		func(err error) {
			s.env.events.callOnRequestError(s.sid, &RequestError{Source: "transportinfo", Err: err})
		},
	)
}

// SetRemoteDescription applies the description carried by j. A provisional
// answer that follows another provisional answer keeps the ICE credentials
// and candidates already accepted.
func (s *Session) SetRemoteDescription(j *Jingle, kind SDPType) error {
	if err := s.usable(); err != nil {
		return err
	}
	remote := FromJingle(j)
	if current := s.transport.RemoteDescription(); current != nil && current.Type == SDPPranswer && kind == SDPPranswer {
		s.log.Info("merging provisional answer")
		mergeProvisional(s.log, remote, ParseSDP(current.SDP))
	}
	s.remoteSDP = remote
	s.transport.SetRemoteDescription(RTCSessionDescription{Type: kind, SDP: remote.Raw()},
		s.success("setRemoteDescription success"),
		s.failure("setRemoteDescription failed"),
	)
	return nil
}

func mergeProvisional(log *logrus.Entry, remote, pranswer *SessionDescription) {
	for i, media := range pranswer.Media {
		if i >= len(remote.Media) {
			break
		}
		target := remote.Media[i]
		if _, ok := remote.FindLine(i, "a=ice-ufrag:"); !ok {
			if line, ok := pranswer.FindLine(i, "a=ice-ufrag:"); ok {
				target.Append(line)
			} else {
				log.Warn("no ice ufrag?")
			}
			if line, ok := pranswer.FindLine(i, "a=ice-pwd:"); ok {
				target.Append(line)
			} else {
				log.Warn("no ice pwd?")
			}
		}
		target.Append(media.FindAll("a=candidate:")...)
	}
}

// HandleAccept processes an incoming session-accept.
func (s *Session) HandleAccept(j *Jingle) error {
	if err := s.SetRemoteDescription(j, SDPAnswer); err != nil {
		return err
	}
	if local := s.transport.LocalDescription(); local != nil && local.Type == SDPPranswer {
		return s.Accept()
	}
	if s.state == StatePending {
		s.state = StateActive
	}
	return nil
}

// AddIceCandidate feeds remote candidates to the transport. An offerer that
// has no remote description yet builds a provisional one from its local
// description and the credentials found in contents.
func (s *Session) AddIceCandidate(contents []Content) error {
	if err := s.usable(); err != nil {
		return err
	}
	if s.transport.SignalingState() == SignalingClosed {
		return nil
	}
	if s.transport.RemoteDescription() == nil && s.transport.SignalingState() == SignalingHaveLocalOffer {
		s.log.Info("trickle ice candidate arriving before session accept")
		s.provisionalRemote(contents)
	}
	for _, content := range contents {
		if content.Transport == nil {
			continue
		}
		idx := -1
		if s.remoteSDP != nil {
			idx = s.remoteSDP.IndexOf(content.Name)
		}
		if idx == -1 && s.localSDP != nil {
			idx = s.localSDP.IndexOf(content.Name)
		}
		for _, candidate := range content.Transport.Candidates {
			err := s.transport.AddICECandidate(ICECandidate{
				Candidate:     candidate.Attribute(),
				SDPMid:        content.Name,
				SDPMLineIndex: idx,
			})
			if err != nil {
				s.log.WithError(err).WithField("candidate", candidate.Line()).Error("addIceCandidate failed")
			}
		}
	}
	return nil
}

const fallbackCrypto = "a=crypto:1 AES_CM_128_HMAC_SHA1_80 inline:BAADBAADBAADBAADBAADBAADBAADBAADBAADBAAD"

func (s *Session) provisionalRemote(contents []Content) {
	if s.remoteSDP == nil {
		if s.localSDP == nil {
			s.log.Warn("no local description for a provisional answer")
			return
		}
		remote := &SessionDescription{Session: sessionHeader(nil)}
		for _, media := range s.localSDP.Media {
			lines, err := renderLines(provisionalMediaTemplate, ProvisionalMediaTemplateData{
				MLine:      media.Lines[0],
				CodecLines: media.FindAll("a=rtpmap:"),
				MID:        media.MID(),
			})
			if err != nil {
				s.log.WithError(err).Error("provisional answer generation error")
				return
			}
			remote.Media = append(remote.Media, &MediaSection{Lines: lines})
		}
		s.remoteSDP = remote
	}

	for _, content := range contents {
		if content.Transport == nil {
			continue
		}
		for _, media := range s.remoteSDP.Media {
			if !media.Matches(content.Name) {
				continue
			}
			if _, ok := media.Find("a=ice-ufrag:"); !ok {
				media.Append("a=ice-ufrag:"+content.Transport.Ufrag, "a=ice-pwd:"+content.Transport.Pwd)
				if len(content.Transport.Fingerprints) > 0 {
					media.Append(content.Transport.Fingerprints[0].Line())
				} else {
					s.log.Info("no dtls fingerprint")
					media.Append(fallbackCrypto)
				}
			}
			break
		}
	}

	for _, media := range s.remoteSDP.Media {
		if _, ok := media.Find("a=ice-ufrag:"); !ok {
			s.log.Info("not yet setting provisional answer")
			return
		}
	}
	s.log.Info("setting provisional answer")
	s.transport.SetRemoteDescription(RTCSessionDescription{Type: SDPPranswer, SDP: s.remoteSDP.Raw()},
		s.success("setRemoteDescription pranswer success"),
		s.failure("setting provisional answer failed"),
	)
}

// SendAnswer answers the remote offer. A provisional answer is applied
// locally with every a=sendrecv turned into a=inactive and is only sent by
// Accept.
func (s *Session) SendAnswer(provisional bool) error {
	s.log.WithField("provisional", provisional).Info("🚀")
	if err := s.usable(); err != nil {
		return err
	}
	s.transport.CreateAnswer(
		func(answer RTCSessionDescription) {
			s.env.dispatcher.Post(func() {
				s.createdAnswer(answer, provisional)
			})
		},
		s.failure("createAnswer failed"),
	)
	return nil
}

func (s *Session) createdAnswer(answer RTCSessionDescription, provisional bool) {
	if s.state == StateEnded {
		return
	}
	s.localSDP = ParseSDP(answer.SDP)
	s.provisional = provisional
	if provisional {
		answer.Type = SDPPranswer
		for _, media := range s.localSDP.Media {
			media.ReplaceFirst("a=sendrecv", "a=inactive")
		}
	} else if s.env.cfg.Trickle {
		iq, j := createJingleIQ(s.peer, ActionSessionAccept, s.initiator, s.sid)
		j.Responder = s.responder
		s.localSDP.ToJingle(j, s.creator(), ToJingleOptions{WithoutCandidates: true})
		s.sendAnswerIQ(iq)
	}
	answer.SDP = s.localSDP.Raw()
	s.transport.SetLocalDescription(answer, s.success("setLocalDescription success"), s.failure("setLocalDescription failed"))
	s.tally.addLines(s.localSDP.FindAll("a=candidate:"))
}

func promote(sdp *SessionDescription) {
	sdp.Session.ReplaceAll("a=inactive", "a=sendrecv")
	for _, media := range sdp.Media {
		media.ReplaceAll("a=inactive", "a=sendrecv")
	}
}

// Accept promotes the local provisional answer to a final one and sends it.
func (s *Session) Accept() error {
	s.log.Info("🚀")
	if err := s.usable(); err != nil {
		return err
	}
	local := s.transport.LocalDescription()
	if local == nil || local.Type != SDPPranswer {
		return fmt.Errorf("%w, sid = %v", ErrNotProvisional, s.sid)
	}

	sent := ParseSDP(local.SDP)
	if s.env.cfg.Trickle {
		// candidates already went out as transport-info
		sent.Session.RemoveAll("a=candidate:")
		for _, media := range sent.Media {
			media.RemoveAll("a=candidate:")
		}
	}
	promote(sent)
	iq, j := createJingleIQ(s.peer, ActionSessionAccept, s.initiator, s.sid)
	j.Responder = s.responder
	sent.ToJingle(j, s.creator(), ToJingleOptions{})
	s.sendAnswerIQ(iq)

	if s.state == StatePending {
		s.state = StateActive
	}
	s.provisional = false

	final := ParseSDP(local.SDP)
	promote(final)
	s.localSDP = final
	s.transport.SetLocalDescription(RTCSessionDescription{Type: SDPAnswer, SDP: final.Raw()},
		s.success("setLocalDescription success"),
		s.failure("setLocalDescription failed"),
	)
	return nil
}

// Terminate releases the session. Only the first call has an effect.
func (s *Session) Terminate(reason string) bool {
	if s.state == StateEnded {
		return false
	}
	s.log.WithField("reason", reason).Info("🚀")
	s.state = StateEnded
	s.reason = reason
	s.requests.close()
	s.stopMedia()
	return true
}

// stopMedia drops pending candidates and source updates and closes the
// media transport.
func (s *Session) stopMedia() {
	if s.batcher != nil {
		s.batcher.Stop()
	}
	if s.renegotiator != nil {
		s.renegotiator.stop()
	}
	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.log.WithError(err).Warn("cannot close media transport")
		}
	}
}

// SendTerminate asks the peer to end the session. The session is terminated
// when the peer acknowledges.
func (s *Session) SendTerminate(reason, text string) {
	if s.state == StateEnded || s.state == StateNull {
		return
	}
	if reason == "" {
		reason = "success"
	}
	iq, j := createJingleIQ(s.peer, ActionSessionTerminate, s.initiator, s.sid)
	j.Reason = NewReason(reason, text)
	s.requests.send(iq,
		func(*IQ) {
			s.Terminate(reason)
			s.env.events.callOnAck(s.sid, "terminate")
		},
		func(err error) {
			s.env.events.callOnRequestError(s.sid, &RequestError{Source: "terminate", Err: err})
		},
	)
	if s.batcher != nil {
		s.batcher.Stop()
	}
}

func (s *Session) SendMute(muted bool, content string) {
	if err := s.usable(); err != nil {
		s.log.WithError(err).Warn("cannot send mute")
		return
	}
	iq, j := createJingleIQ(s.peer, ActionSessionInfo, s.initiator, s.sid)
	info := &MuteInfo{XMLNS: NSRTPInfo, Creator: s.creator(), Name: content}
	if muted {
		j.Mute = info
	} else {
		j.Unmute = info
	}
	s.requests.notify(iq)
}

func (s *Session) SendRinging() {
	if err := s.usable(); err != nil {
		s.log.WithError(err).Warn("cannot send ringing")
		return
	}
	iq, j := createJingleIQ(s.peer, ActionSessionInfo, s.initiator, s.sid)
	j.Ringing = &Ringing{XMLNS: NSRTPInfo}
	s.requests.notify(iq)
}

func (s *Session) AddSource(contents []Content) error {
	s.log.Info("🚀")
	return s.queueSources(contents, s.renegotiator.queueAdd)
}

func (s *Session) RemoveSource(contents []Content) error {
	s.log.Info("🚀")
	return s.queueSources(contents, s.renegotiator.queueRemove)
}

func (s *Session) queueSources(contents []Content, queue func(int, []string)) error {
	if err := s.usable(); err != nil {
		return err
	}
	remote := s.transport.RemoteDescription()
	if remote == nil {
		return fmt.Errorf("%w, sid = %v", ErrNoRemoteDescription, s.sid)
	}
	sdp := ParseSDP(remote.SDP)
	for _, content := range contents {
		lines := SourceLines(content.AllSources())
		if len(lines) == 0 {
			continue
		}
		for idx, media := range sdp.Media {
			if media.MID() == content.Name {
				queue(idx, lines)
			}
		}
	}
	s.renegotiator.modify()
	return nil
}

func (s *Session) success(msg string) func() {
	return func() {
		s.env.dispatcher.Post(func() {
			s.log.Debug(msg)
		})
	}
}

func (s *Session) failure(msg string) func(error) {
	return func(err error) {
		s.env.dispatcher.Post(func() {
			s.log.WithError(err).Error(msg)
		})
	}
}

func bareJID(jid string) string {
	bare, _, _ := strings.Cut(jid, "/")
	return bare
}
