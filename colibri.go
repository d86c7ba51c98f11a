package jingle

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// mixedSSRC is announced when the bridge does not report a mixed source.
const mixedSSRC = "3735928559"

// Participant is one row of a conference: the identity, its relay channel per
// media category and the source lines it announced per category.
type Participant struct {
	Identity string
	Channels []Channel
	Sources  [][]string

	session *participantSession
}

// Conference is a multi party call hosted by a media bridge. The bridge
// terminates the media of every participant; the conference keeps one media
// transport of its own towards the bridge and relays source metadata between
// participants. Its methods must be called on the dispatcher.
type Conference struct {
	log      *logrus.Entry
	env      *environment
	registry *Registry
	requests *requestTracker
	local    string
	bridge   string
	sid      string

	transport    MediaTransport
	renegotiator *renegotiator

	id           string
	allocating   bool
	ended        bool
	contents     []string
	own          []Channel
	participants []*Participant
}

func newConference(env *environment, registry *Registry, local, bridge string) *Conference {
	sid := newSID()
	log := logrus.WithFields(logrus.Fields{"conference": sid, "bridge": bridge})
	return &Conference{
		log:      log,
		env:      env,
		registry: registry,
		requests: newRequestTracker(log, env.messenger, env.dispatcher, env.cfg.RequestTimeout),
		local:    local,
		bridge:   bridge,
		sid:      sid,
	}
}

// NewConference prepares a conference on bridge, or on the configured bridge
// when bridge is empty.
func (m *Manager) NewConference(bridge string) *Conference {
	if bridge == "" {
		bridge = m.env.cfg.BridgeJID
	}
	return newConference(m.env, m.registry, m.localJID, bridge)
}

// ID is the bridge assigned conference id, empty until allocation completes.
func (c *Conference) ID() string {
	return c.id
}

func (c *Conference) SID() string {
	return c.sid
}

func (c *Conference) Ended() bool {
	return c.ended
}

// Participants returns the identities in row order.
func (c *Conference) Participants() []string {
	identities := make([]string, 0, len(c.participants))
	for _, p := range c.participants {
		identities = append(identities, p.Identity)
	}
	return identities
}

func (c *Conference) participant(identity string) (int, *Participant) {
	for i, p := range c.participants {
		if p.Identity == identity {
			return i, p
		}
	}
	return -1, nil
}

// CreateConference allocates channels for the conference itself and for the
// initial peers, then invites every peer.
func (c *Conference) CreateConference(peers []string) error {
	c.log.WithField("peers", peers).Info("🚀")
	if c.transport != nil {
		return fmt.Errorf("%w, conference = %v", ErrConferenceExists, c.sid)
	}
	transport, err := c.env.factory.NewMediaTransport(c.env.transportConfig())
	if err != nil {
		return fmt.Errorf("cannot create media transport: %w", err)
	}
	c.transport = transport
	c.allocating = true
	c.participants = c.participants[:0]
	for _, peer := range peers {
		c.participants = append(c.participants, &Participant{Identity: peer})
	}
	c.renegotiator = newRenegotiator(c.log, c.env.dispatcher, transport, c.env.cfg.ReadinessPoll, c.env.cfg.SettleDelay, false)
	c.renegotiator.onApplied = c.pushOwnChannels

	dispatcher := c.env.dispatcher
	transport.OnICECandidate(func(candidate *ICECandidate) {
		dispatcher.Post(func() {
			c.ownCandidate(candidate)
		})
	})
	transport.OnAddStream(func(stream RemoteStream) {
		dispatcher.Post(func() {
			if !c.ended {
				c.env.events.callOnRemoteStream(c.sid, stream)
			}
		})
	})
	transport.OnSignalingStateChange(func(state SignalingState) {
		dispatcher.Post(func() {
			c.log.WithField("signaling", state).Debug("signaling state changed")
		})
	})
	transport.OnICEConnectionStateChange(func(state ICEConnectionState) {
		dispatcher.Post(func() {
			if c.ended {
				return
			}
			c.log.WithField("ice", state).Warn("ice connection state changed")
			c.env.events.callOnICEConnectionStateChange(c.sid, state)
		})
	})

	transport.CreateOffer(
		func(offer RTCSessionDescription) {
			dispatcher.Post(func() {
				if c.ended {
					return
				}
				transport.SetLocalDescription(offer, func() {}, c.failure("setLocalDescription failed"))
			})
		},
		c.failure("createOffer failed"),
	)
	return nil
}

func (c *Conference) ownCandidate(candidate *ICECandidate) {
	if c.ended {
		return
	}
	if candidate == nil {
		c.log.Info("end of candidates")
		if c.id == "" && c.allocating {
			c.allocate()
		}
		return
	}
	if c.id != "" {
		c.sendOwnCandidate(candidate)
	}
}

func (c *Conference) allocate() {
	local := c.transport.LocalDescription()
	if local == nil {
		c.log.Error("no local description to allocate channels with")
		return
	}
	sdp := ParseSDP(local.SDP)
	iq, conference := createColibriIQ(c.bridge, IQGet, "")
	c.contents = c.contents[:0]
	for idx, media := range sdp.Media {
		name := media.MID()
		c.contents = append(c.contents, name)
		content := ColibriContent{Creator: "initiator", Name: name}
		own := Channel{Initiator: "false", PayloadTypes: rtpmapPayloadTypes(media)}
		if _, _, ok := sdp.ICEParams(idx); ok {
			own.Transport = sdp.transport(idx, ToJingleOptions{})
		}
		content.Channels = append(content.Channels, own)
		for range c.participants {
			content.Channels = append(content.Channels, Channel{Initiator: "true"})
		}
		conference.Contents = append(conference.Contents, content)
	}
	c.requests.send(iq, c.createdConference, func(err error) {
		c.allocating = false
		c.log.WithError(err).Warn("channel allocation failed")
		c.env.events.callOnRequestError(c.sid, &RequestError{Source: "colibri", Err: err})
	})
}

func rtpmapPayloadTypes(media *MediaSection) []PayloadType {
	var pts []PayloadType
	for _, line := range media.FindAll("a=rtpmap:") {
		rtpmap := ParseRTPMap(line)
		pts = append(pts, PayloadType{ID: rtpmap.ID, Name: rtpmap.Name, ClockRate: rtpmap.ClockRate, Channels: rtpmap.Channels})
	}
	return pts
}

func (c *Conference) createdConference(res *IQ) {
	if c.ended {
		return
	}
	if res.Conference == nil || res.Conference.ID == "" {
		c.allocating = false
		c.log.Error("bridge response carries no conference")
		c.env.events.callOnRequestError(c.sid, &RequestError{Source: "colibri", Err: errors.New("no conference in response")})
		return
	}
	c.id = res.Conference.ID
	c.allocating = false
	c.log = c.log.WithField("id", c.id)
	c.log.Info("created a conference on the bridge")

	c.own = c.own[:0]
	for _, content := range res.Conference.Contents {
		if len(content.Channels) == 0 {
			c.own = append(c.own, Channel{})
			continue
		}
		c.own = append(c.own, content.Channels[0])
		for j, channel := range content.Channels[1:] {
			if j < len(c.participants) {
				c.participants[j].Channels = append(c.participants[j].Channels, channel)
			}
		}
	}

	answer, err := c.bridgeAnswer()
	if err != nil {
		c.log.WithError(err).Error("bridge answer generation error")
		return
	}
	c.transport.SetRemoteDescription(RTCSessionDescription{Type: SDPAnswer, SDP: answer.Raw()},
		func() {
			c.env.dispatcher.Post(func() {
				c.log.Info("setRemoteDescription success")
				for _, p := range c.participants {
					c.initiateParticipant(p)
				}
			})
		},
		c.failure("setRemoteDescription failed"),
	)
}

// bridgeAnswer builds the answer of the bridge from the local offer and the
// own channels the bridge allocated.
func (c *Conference) bridgeAnswer() (*SessionDescription, error) {
	local := ParseSDP(c.transport.LocalDescription().SDP)
	var groups []GroupTemplateData
	for _, line := range local.Session.FindAll("a=group:") {
		fields := strings.Fields(strings.TrimPrefix(line, "a=group:"))
		if len(fields) > 0 {
			groups = append(groups, GroupTemplateData{Semantics: fields[0], MIDs: fields[1:]})
		}
	}
	answer := &SessionDescription{Session: sessionHeader(groups)}
	for idx, media := range local.Media {
		var own Channel
		if idx < len(c.own) {
			own = c.own[idx]
		}
		data := BridgeMediaTemplateData{
			MLine:        media.Lines[0],
			MID:          media.MID(),
			HdrExts:      media.FindAll("a=extmap:"),
			CodecLines:   codecLines(media),
			MixedSources: mixedSourceLines(own),
		}
		_, data.RTCPMux = media.Find("a=rtcp-mux")
		if own.Transport.IsICEUDP() {
			data.Ufrag, data.Pwd = own.Transport.Ufrag, own.Transport.Pwd
			data.Candidates = own.Transport.Candidates
			for _, fingerprint := range own.Transport.Fingerprints {
				if fingerprint.Setup == "" {
					fingerprint.Setup = "active"
				}
				data.Fingerprints = append(data.Fingerprints, fingerprint)
			}
		}
		lines, err := renderLines(bridgeMediaTemplate, data)
		if err != nil {
			return nil, err
		}
		answer.Media = append(answer.Media, &MediaSection{Lines: lines})
	}
	return answer, nil
}

func codecLines(media *MediaSection) []string {
	var lines []string
	for _, line := range media.Lines {
		if strings.HasPrefix(line, "a=rtpmap:") || strings.HasPrefix(line, "a=fmtp:") || strings.HasPrefix(line, "a=rtcp-fb:") {
			lines = append(lines, line)
		}
	}
	return lines
}

// mixedSourceLines announces the mixed stream of channel.
func mixedSourceLines(channel Channel) []string {
	ssrc, kind := mixedSSRC, "v"
	for _, source := range channel.Sources {
		if source.SSRC != "" {
			ssrc, kind = source.SSRC, "a"
			break
		}
	}
	return []string{
		"a=ssrc:" + ssrc + " cname:mixed",
		"a=ssrc:" + ssrc + " label:mixedlabel" + kind + "0",
		"a=ssrc:" + ssrc + " msid:mixedmslabel" + kind + "0 mixedlabel" + kind + "0",
		"a=ssrc:" + ssrc + " mslabel:mixedmslabel" + kind + "0",
	}
}

var participantStrippedLines = []string{
	"a=rtcp-mux",
	"a=ssrc:",
	"a=crypto:",
	"a=candidate:",
	"a=ice-options:google-ice",
	"a=ice-ufrag:",
	"a=ice-pwd:",
	"a=fingerprint:",
	"a=setup:",
}

// initiateParticipant sends session-initiate to p, built from the bridge leg,
// the sources of everyone else and the relay channels of p.
func (c *Conference) initiateParticipant(p *Participant) {
	if c.ended {
		return
	}
	if c.transport.SignalingState() != SignalingStable {
		c.log.WithField("peer", p.Identity).Debug("bridge leg not stable, postponing invite")
		c.env.dispatcher.AfterFunc(c.env.cfg.ReadinessPoll, func() {
			if _, current := c.participant(p.Identity); current == p {
				c.initiateParticipant(p)
			}
		})
		return
	}
	remote, local := c.transport.RemoteDescription(), c.transport.LocalDescription()
	if remote == nil || local == nil {
		c.log.Error("bridge leg has no descriptions")
		return
	}
	sdp := ParseSDP(remote.SDP)
	localSDP := ParseSDP(local.SDP)
	sdp.Session.RemoveAll("a=group:")
	sdp.Session.RemoveAll("a=msid-semantic:")
	for j, media := range sdp.Media {
		for _, prefix := range participantStrippedLines {
			media.RemoveAll(prefix)
		}
		for _, other := range c.participants {
			if other != p && j < len(other.Sources) {
				media.Append(other.Sources[j]...)
			}
		}
		if j < len(localSDP.Media) {
			media.Append(localSDP.Media[j].FindAll("a=ssrc")...)
		}
		if j >= len(p.Channels) {
			continue
		}
		channel := p.Channels[j]
		media.Append(mixedSourceLines(channel)...)
		if !channel.Transport.IsICEUDP() {
			continue
		}
		if channel.Transport.Ufrag != "" {
			media.Append("a=ice-ufrag:" + channel.Transport.Ufrag)
		}
		if channel.Transport.Pwd != "" {
			media.Append("a=ice-pwd:" + channel.Transport.Pwd)
		}
		for _, candidate := range channel.Transport.Candidates {
			media.Append(candidate.Line())
		}
		if len(channel.Transport.Fingerprints) > 0 {
			media.Append(channel.Transport.Fingerprints[0].Line(), "a=setup:actpass")
		}
	}

	session := newParticipantSession(c, p.Identity, newSID())
	if err := c.registry.Add(session); err != nil {
		c.log.WithError(err).Error("cannot register participant session")
		return
	}
	p.session = session

	iq, j := createJingleIQ(p.Identity, ActionSessionInitiate, c.local, session.sid)
	sdp.ToJingle(j, "initiator", ToJingleOptions{})
	c.requests.send(iq,
		func(*IQ) {
			c.env.events.callOnAck(session.sid, "offer")
		},
		func(err error) {
			c.env.events.callOnRequestError(session.sid, &RequestError{Source: "offer", Err: err})
		},
	)
}

// AddParticipant allocates one more channel per media category and invites
// identity. While the conference is still being allocated the call is retried.
func (c *Conference) AddParticipant(identity string) error {
	c.log.WithField("peer", identity).Info("🚀")
	if c.ended {
		return fmt.Errorf("%w, conference = %v", ErrSessionEnded, c.sid)
	}
	if c.transport == nil {
		return fmt.Errorf("%w, conference = %v", ErrConferenceNotReady, c.sid)
	}
	if c.id == "" {
		if !c.allocating {
			return fmt.Errorf("%w, conference = %v", ErrConferenceNotReady, c.sid)
		}
		c.log.WithField("peer", identity).Info("conference id does not exist yet, postponing")
		c.env.dispatcher.AfterFunc(c.env.cfg.ReadinessPoll, func() {
			if err := c.AddParticipant(identity); err != nil {
				c.log.WithError(err).Warn("cannot add participant")
			}
		})
		return nil
	}

	row := &Participant{Identity: identity}
	c.participants = append(c.participants, row)

	iq, conference := createColibriIQ(c.bridge, IQGet, c.id)
	for _, name := range c.contents {
		conference.Contents = append(conference.Contents, ColibriContent{
			Creator:  "initiator",
			Name:     name,
			Channels: []Channel{{Initiator: "true"}},
		})
	}
	c.requests.send(iq,
		func(res *IQ) {
			if res.Conference != nil {
				for _, content := range res.Conference.Contents {
					if len(content.Channels) > 0 {
						row.Channels = append(row.Channels, content.Channels[0])
					}
				}
			}
			c.initiateParticipant(row)
		},
		func(err error) {
			c.log.WithError(err).WithField("peer", identity).Warn("channel allocation failed, rolling back")
			c.dropRow(row)
			c.env.events.callOnRequestError(c.sid, &RequestError{Source: "colibri", Err: err})
		},
	)
	return nil
}

func (c *Conference) dropRow(row *Participant) bool {
	for i, p := range c.participants {
		if p == row {
			c.participants = append(c.participants[:i], c.participants[i+1:]...)
			return true
		}
	}
	return false
}

func (c *Conference) contentName(idx int) string {
	if idx < len(c.contents) && c.contents[idx] != "" {
		return c.contents[idx]
	}
	if idx == 0 {
		return "audio"
	}
	return "video"
}

func (c *Conference) contentIndex(name string) int {
	for i, content := range c.contents {
		if content == name {
			return i
		}
	}
	return -1
}

// updateChannelDescription pushes the codecs, fingerprints and ICE parameters
// of a participant's description to its relay channels.
func (c *Conference) updateChannelDescription(remote *SessionDescription, p *Participant) {
	iq, conference := createColibriIQ(c.bridge, IQSet, c.id)
	for idx, channel := range p.Channels {
		if idx >= len(remote.Media) {
			break
		}
		conference.Contents = append(conference.Contents, ColibriContent{
			Name: c.contentName(idx),
			Channels: []Channel{{
				ID:           channel.ID,
				Initiator:    "true",
				PayloadTypes: rtpmapPayloadTypes(remote.Media[idx]),
				Transport:    remote.transport(idx, ToJingleOptions{}),
			}},
		})
	}
	c.sendColibri(iq)
}

// propagateSourceUpdate announces the sources of desc to every participant
// except exclude.
func (c *Conference) propagateSourceUpdate(desc *SessionDescription, exclude string, isAdd bool) {
	action := ActionRemoveSource
	if isAdd {
		action = ActionAddSource
	}
	contents := SourceContents(desc)
	if len(contents) == 0 {
		return
	}
	for _, p := range c.participants {
		if p.Identity == exclude {
			continue
		}
		if p.session == nil {
			c.log.WithField("peer", p.Identity).Warn("no session to tell about sources yet")
			continue
		}
		if p.Sources == nil {
			c.log.WithField("peer", p.Identity).Debug("telling a participant that did not answer yet")
		}
		iq, j := createJingleIQ(p.Identity, action, c.local, p.session.sid)
		j.Contents = contents
		sid := p.session.sid
		c.requests.send(iq, nil, func(err error) {
			c.env.events.callOnRequestError(sid, &RequestError{Source: action.String(), Err: err})
		})
	}
}

// setRemoteDescription handles the answer of a participant.
func (c *Conference) setRemoteDescription(session *participantSession, j *Jingle) error {
	_, p := c.participant(session.peer)
	if p == nil {
		return fmt.Errorf("%w, peer = %v", ErrUnknownParticipant, session.peer)
	}
	remote := FromJingle(j)
	c.log.WithField("peer", p.Identity).Info("participant description")

	c.updateChannelDescription(remote, p)
	c.propagateSourceUpdate(remote, p.Identity, true)

	p.Sources = make([][]string, len(p.Channels))
	for idx := range p.Channels {
		if idx < len(remote.Media) {
			p.Sources[idx] = remote.Media[idx].FindAll("a=ssrc:")
		}
	}
	for idx, lines := range p.Sources {
		c.renegotiator.queueAdd(idx, lines)
	}
	c.renegotiator.modify()
	return nil
}

// relayCandidates forwards the trickled candidates of a participant to its
// relay channels.
func (c *Conference) relayCandidates(session *participantSession, contents []Content) error {
	_, p := c.participant(session.peer)
	if p == nil {
		return fmt.Errorf("%w, peer = %v", ErrUnknownParticipant, session.peer)
	}
	iq, conference := createColibriIQ(c.bridge, IQSet, c.id)
	for _, content := range contents {
		idx := c.contentIndex(content.Name)
		if idx < 0 || idx >= len(p.Channels) || content.Transport == nil {
			c.log.WithField("content", content.Name).Warn("no channel for candidates")
			continue
		}
		transport := &Transport{
			XMLNS:      content.Transport.XMLNS,
			Ufrag:      content.Transport.Ufrag,
			Pwd:        content.Transport.Pwd,
			Candidates: content.Transport.Candidates,
		}
		if transport.XMLNS == "" {
			transport.XMLNS = NSICEUDP
		}
		conference.Contents = append(conference.Contents, ColibriContent{
			Name:     content.Name,
			Channels: []Channel{{ID: p.Channels[idx].ID, Initiator: "true", Transport: transport}},
		})
	}
	if len(conference.Contents) > 0 {
		c.sendColibri(iq)
	}
	return nil
}

func (c *Conference) sendOwnCandidate(candidate *ICECandidate) {
	if candidate.SDPMLineIndex < 0 || candidate.SDPMLineIndex >= len(c.own) {
		return
	}
	parsed, err := ParseCandidate(candidate.Candidate)
	if err != nil {
		c.log.WithError(err).Warn("skipping own candidate")
		return
	}
	iq, conference := createColibriIQ(c.bridge, IQSet, c.id)
	conference.Contents = []ColibriContent{{
		Name: candidate.SDPMid,
		Channels: []Channel{{
			ID:        c.own[candidate.SDPMLineIndex].ID,
			Initiator: "true",
			Transport: &Transport{XMLNS: NSICEUDP, Candidates: []Candidate{parsed}},
		}},
	}}
	c.sendColibri(iq)
}

// pushOwnChannels sends the parameters of an applied bridge leg answer to the
// own channels.
func (c *Conference) pushOwnChannels(answer RTCSessionDescription) {
	if c.id == "" {
		return
	}
	sdp := ParseSDP(answer.SDP)
	iq, conference := createColibriIQ(c.bridge, IQSet, c.id)
	for idx, channel := range c.own {
		if idx >= len(sdp.Media) || channel.ID == "" {
			continue
		}
		conference.Contents = append(conference.Contents, ColibriContent{
			Name: c.contentName(idx),
			Channels: []Channel{{
				ID:           channel.ID,
				Initiator:    "false",
				PayloadTypes: rtpmapPayloadTypes(sdp.Media[idx]),
				Transport:    sdp.transport(idx, ToJingleOptions{}),
			}},
		})
	}
	if len(conference.Contents) > 0 {
		c.sendColibri(iq)
	}
}

// removeParticipant drops the row of identity together with its channels and
// tells everyone else about the sources that went away. The conference ends
// with its last participant.
func (c *Conference) removeParticipant(identity string) bool {
	idx, p := c.participant(identity)
	if p == nil {
		return false
	}
	c.log.WithField("peer", identity).Info("participant left")
	c.participants = append(c.participants[:idx], c.participants[idx+1:]...)

	if p.Sources != nil {
		removed := &SessionDescription{}
		for i, lines := range p.Sources {
			c.renegotiator.queueRemove(i, lines)
			removed.Media = append(removed.Media, &MediaSection{Lines: append(Lines{"a=mid:" + c.contentName(i)}, lines...)})
		}
		c.propagateSourceUpdate(removed, identity, false)
	}

	iq, conference := createColibriIQ(c.bridge, IQSet, c.id)
	for i, channel := range p.Channels {
		if channel.ID == "" {
			continue
		}
		conference.Contents = append(conference.Contents, ColibriContent{
			Name:     c.contentName(i),
			Channels: []Channel{{ID: channel.ID, Expire: "0"}},
		})
	}
	if len(conference.Contents) > 0 {
		c.sendColibri(iq)
	}
	if p.session != nil {
		c.registry.Remove(p.session.sid)
	}

	if len(c.participants) == 0 {
		c.destroy()
		return true
	}
	c.renegotiator.modify()
	return true
}

func (c *Conference) destroy() {
	if c.ended {
		return
	}
	c.log.Info("🚀")
	c.ended = true
	if c.renegotiator != nil {
		c.renegotiator.stop()
	}
	c.requests.close()
	if c.transport != nil {
		if err := c.transport.Close(); err != nil {
			c.log.WithError(err).Warn("cannot close media transport")
		}
	}
	c.env.events.callOnConferenceEnded(c.id)
}

// Close ends every participant session and the conference itself.
func (c *Conference) Close() {
	for _, p := range append([]*Participant(nil), c.participants...) {
		if p.session != nil {
			p.session.SendTerminate("success", "")
			p.session.Terminate("success")
		} else {
			c.removeParticipant(p.Identity)
		}
	}
	c.destroy()
}

func (c *Conference) sendColibri(iq *IQ) {
	c.requests.send(iq, nil, func(err error) {
		c.log.WithError(err).Warn("colibri request failed")
		c.env.events.callOnRequestError(c.sid, &RequestError{Source: "colibri", Err: err})
	})
}

func (c *Conference) failure(msg string) func(error) {
	return func(err error) {
		c.env.dispatcher.Post(func() {
			c.log.WithError(err).Error(msg)
		})
	}
}
