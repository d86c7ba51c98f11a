package jingle

import (
	"strings"

	"github.com/sirupsen/logrus"
)

type ToJingleOptions struct {
	// WithoutCandidates leaves transports without candidates, for trickled sessions.
	WithoutCandidates bool
}

var directionToSenders = map[string]string{
	"a=sendrecv": "both",
	"a=sendonly": "initiator",
	"a=recvonly": "responder",
	"a=inactive": "none",
}

var sendersToDirection = map[string]string{
	"both":      "a=sendrecv",
	"initiator": "a=sendonly",
	"responder": "a=recvonly",
	"none":      "a=inactive",
}

// header extension senders are seen from the remote side
var extDirectionToSenders = map[string]string{
	"sendonly": "responder",
	"recvonly": "initiator",
	"sendrecv": "both",
	"inactive": "none",
}

var extSendersToDirection = map[string]string{
	"responder": "sendonly",
	"initiator": "recvonly",
	"both":      "sendrecv",
	"none":      "inactive",
}

// ToJingle appends groups and one content per audio or video section to j.
func (s *SessionDescription) ToJingle(j *Jingle, creator string, opts ToJingleOptions) {
	for _, line := range s.Session.FindAll("a=group:") {
		parts := strings.Split(strings.TrimPrefix(line, "a=group:"), " ")
		semantics := parts[0]
		group := Group{XMLNS: NSGrouping, Semantics: semantics, Type: semantics}
		legacy := Group{XMLNS: NSGroupingLegacy, Type: semantics}
		for _, name := range parts[1:] {
			if name == "" {
				continue
			}
			group.Contents = append(group.Contents, GroupContent{Name: name})
			legacy.Contents = append(legacy.Contents, GroupContent{Name: name})
		}
		j.Groups = append(j.Groups, group, legacy)
	}

	for i, media := range s.Media {
		mline := media.MLine()
		if mline.Media != "audio" && mline.Media != "video" {
			continue
		}
		content := Content{Creator: creator, Name: mline.Media}
		if mid := media.MID(); mid != "" {
			content.Name = mid
		}
		if _, ok := media.Find("a=rtpmap:"); ok {
			content.Description = s.description(i, mline)
		}
		content.Transport = s.transport(i, opts)
		for _, direction := range []string{"a=sendrecv", "a=sendonly", "a=recvonly", "a=inactive"} {
			if _, ok := s.FindLine(i, direction); ok {
				content.Senders = directionToSenders[direction]
				break
			}
		}
		if mline.Port == "0" {
			content.Senders = "rejected"
		}
		j.Contents = append(j.Contents, content)
	}
}

func (s *SessionDescription) description(idx int, mline MLine) *Description {
	media := s.Media[idx]
	desc := &Description{XMLNS: NSRTP, Media: mline.Media}
	if line, ok := media.Find("a=ssrc:"); ok {
		d, _ := ParseSourceDescriptor(line)
		desc.SSRC = d.SSRC
	}
	for _, pt := range mline.Formats {
		payloadType := PayloadType{ID: pt}
		if line, ok := media.Find("a=rtpmap:" + pt + " "); ok {
			rtpmap := ParseRTPMap(line)
			payloadType.Name = rtpmap.Name
			payloadType.ClockRate = rtpmap.ClockRate
			payloadType.Channels = rtpmap.Channels
		}
		if line, ok := media.Find("a=fmtp:" + pt + " "); ok {
			payloadType.Parameters = ParseFmtp(line)
		}
		payloadType.RTCPFbs, payloadType.TrrInt = rtcpFbToJingle(media.Lines, pt)
		desc.PayloadTypes = append(desc.PayloadTypes, payloadType)
	}
	if cryptos := s.FindLines(idx, "a=crypto:"); len(cryptos) > 0 {
		desc.Encryption = &Encryption{Required: "1"}
		for _, line := range cryptos {
			desc.Encryption.Cryptos = append(desc.Encryption.Cryptos, ParseCrypto(line))
		}
	}
	desc.Sources = SourcesToElements(media.FindAll("a=ssrc:"))
	for _, line := range media.FindAll("a=ssrc-group:") {
		group := ParseSSRCGroup(line)
		element := SourceGroup{XMLNS: NSSSMA, Semantics: group.Semantics}
		for _, ssrc := range group.SSRCs {
			element.Sources = append(element.Sources, Source{SSRC: ssrc})
		}
		desc.SourceGroups = append(desc.SourceGroups, element)
	}
	if _, ok := media.Find("a=rtcp-mux"); ok {
		desc.RTCPMux = &Empty{}
	}
	desc.RTCPFbs, desc.TrrInt = rtcpFbToJingle(media.Lines, "*")
	for _, line := range media.FindAll("a=extmap:") {
		ext := ParseExtMap(line)
		desc.HdrExts = append(desc.HdrExts, HdrExt{
			XMLNS:   NSHdrExt,
			ID:      ext.ID,
			URI:     ext.URI,
			Senders: extDirectionToSenders[ext.Direction],
		})
	}
	return desc
}

func rtcpFbToJingle(lines Lines, pt string) ([]RTCPFb, *RTCPFbTrrInt) {
	var fbs []RTCPFb
	var trrInt *RTCPFbTrrInt
	for _, line := range lines.FindAll("a=rtcp-fb:" + pt + " ") {
		fb := ParseRTCPFeedback(line)
		if fb.Type == "trr-int" {
			value := "0"
			if len(fb.Params) > 0 {
				value = fb.Params[0]
			}
			trrInt = &RTCPFbTrrInt{XMLNS: NSRTCPFb, Value: value}
			continue
		}
		fbs = append(fbs, RTCPFb{XMLNS: NSRTCPFb, Type: fb.Type, Subtype: strings.Join(fb.Params, " ")})
	}
	return fbs, trrInt
}

func (s *SessionDescription) transport(idx int, opts ToJingleOptions) *Transport {
	transport := &Transport{XMLNS: NSICEUDP}
	setup := ""
	if line, ok := s.FindLine(idx, "a=setup:"); ok {
		setup = strings.TrimPrefix(line, "a=setup:")
	}
	for _, line := range s.FindLines(idx, "a=fingerprint:") {
		fingerprint := ParseFingerprint(line)
		fingerprint.XMLNS = NSDTLS
		fingerprint.Setup = setup
		transport.Fingerprints = append(transport.Fingerprints, fingerprint)
	}
	ufrag, pwd, ok := s.ICEParams(idx)
	if !ok {
		return transport
	}
	transport.Ufrag, transport.Pwd = ufrag, pwd
	if opts.WithoutCandidates {
		return transport
	}
	for _, line := range s.FindLines(idx, "a=candidate:") {
		candidate, err := ParseCandidate(line)
		if err != nil {
			logrus.WithError(err).Warn("skipping candidate")
			continue
		}
		transport.Candidates = append(transport.Candidates, candidate)
	}
	return transport
}

// FromJingle builds a session description from the groups and contents of j.
func FromJingle(j *Jingle) *SessionDescription {
	desc := &SessionDescription{Session: sessionHeader(jingleGroups(j.Groups))}
	for i := range j.Contents {
		desc.Media = append(desc.Media, contentToMedia(&j.Contents[i]))
	}
	return desc
}

func jingleGroups(groups []Group) []GroupTemplateData {
	var data []GroupTemplateData
	for _, group := range groups {
		if group.XMLNS != "" && group.XMLNS != NSGrouping {
			continue
		}
		semantics := group.Semantics
		if semantics == "" {
			semantics = group.Type
		}
		if g, ok := groupData(semantics, group.Contents); ok {
			data = append(data, g)
		}
	}
	if len(data) > 0 {
		return data
	}
	for _, group := range groups {
		if group.XMLNS != NSGroupingLegacy || group.Type == "" {
			continue
		}
		if g, ok := groupData(group.Type, group.Contents); ok {
			data = append(data, g)
		}
	}
	return data
}

func groupData(semantics string, contents []GroupContent) (GroupTemplateData, bool) {
	g := GroupTemplateData{Semantics: semantics}
	for _, c := range contents {
		g.MIDs = append(g.MIDs, c.Name)
	}
	return g, semantics != "" && len(g.MIDs) > 0
}

func contentToMedia(content *Content) *MediaSection {
	desc := content.Description
	if desc == nil {
		desc = &Description{}
	}
	transport := content.Transport
	if !transport.IsICEUDP() {
		transport = nil
	}

	mline := MLine{Media: desc.Media, Port: "1", Proto: "RTP/AVPF"}
	if mline.Media == "" {
		mline.Media = content.Name
	}
	if content.Senders == "rejected" {
		mline.Port = "0"
	}
	if (transport != nil && len(transport.Fingerprints) > 0) || desc.Encryption != nil {
		mline.Proto = "RTP/SAVPF"
	}
	for _, pt := range desc.PayloadTypes {
		mline.Formats = append(mline.Formats, pt.ID)
	}

	media := &MediaSection{Lines: Lines{mline.String(), "c=IN IP4 0.0.0.0", "a=rtcp:1 IN IP4 0.0.0.0"}}
	if transport != nil {
		if transport.Ufrag != "" {
			media.Append("a=ice-ufrag:" + transport.Ufrag)
		}
		if transport.Pwd != "" {
			media.Append("a=ice-pwd:" + transport.Pwd)
		}
		for _, fingerprint := range transport.Fingerprints {
			media.Append(fingerprint.Line())
			if fingerprint.Setup != "" {
				media.Append("a=setup:" + fingerprint.Setup)
			}
		}
	}
	if direction, ok := sendersToDirection[content.Senders]; ok {
		media.Append(direction)
	}
	media.Append("a=mid:" + content.Name)
	if desc.RTCPMux != nil {
		media.Append("a=rtcp-mux")
	}
	if desc.Encryption != nil {
		for _, crypto := range desc.Encryption.Cryptos {
			media.Append(crypto.Line())
		}
	}
	for _, pt := range desc.PayloadTypes {
		if pt.Name != "" {
			media.Append(pt.RTPMap().String())
		}
		if len(pt.Parameters) > 0 {
			media.Append(BuildFmtp(pt.ID, pt.Parameters))
		}
		media.Append(rtcpFbFromJingle(pt.RTCPFbs, pt.TrrInt, pt.ID)...)
	}
	media.Append(rtcpFbFromJingle(desc.RTCPFbs, desc.TrrInt, "*")...)
	for _, ext := range desc.HdrExts {
		media.Append(ExtMap{ID: ext.ID, Direction: extSendersToDirection[ext.Senders], URI: ext.URI}.String())
	}
	if transport != nil {
		for _, candidate := range transport.Candidates {
			media.Append(candidate.Line())
		}
	}
	for _, group := range desc.SourceGroups {
		g := SSRCGroup{Semantics: group.Semantics}
		for _, src := range group.Sources {
			g.SSRCs = append(g.SSRCs, src.SSRC)
		}
		media.Append(g.Line())
	}
	media.Append(SourceLines(desc.Sources)...)
	return media
}

func rtcpFbFromJingle(fbs []RTCPFb, trrInt *RTCPFbTrrInt, pt string) []string {
	var lines []string
	if trrInt != nil {
		value := trrInt.Value
		if value == "" {
			value = "0"
		}
		lines = append(lines, "a=rtcp-fb:"+pt+" trr-int "+value)
	}
	for _, fb := range fbs {
		line := "a=rtcp-fb:" + pt + " " + fb.Type
		if fb.Subtype != "" {
			line += " " + fb.Subtype
		}
		lines = append(lines, line)
	}
	return lines
}

// TransportInfoContents groups a batch of local candidates by media section.
// Each content carries the section's ICE credentials and fingerprint.
func TransportInfoContents(local *SessionDescription, batch []*ICECandidate, creator string) []Content {
	var contents []Content
	for idx := range local.Media {
		var candidates []*ICECandidate
		for _, c := range batch {
			if c.SDPMLineIndex == idx {
				candidates = append(candidates, c)
			}
		}
		if len(candidates) == 0 {
			continue
		}
		ufrag, pwd, ok := local.ICEParams(idx)
		if !ok {
			logrus.WithField("mline", idx).Error("failed to get ice params for candidates")
			continue
		}
		transport := &Transport{XMLNS: NSICEUDP, Ufrag: ufrag, Pwd: pwd}
		for _, c := range candidates {
			candidate, err := ParseCandidate(c.Candidate)
			if err != nil {
				logrus.WithError(err).Warn("skipping candidate")
				continue
			}
			transport.Candidates = append(transport.Candidates, candidate)
		}
		if line, ok := local.FindLine(idx, "a=fingerprint:"); ok {
			fingerprint := ParseFingerprint(line)
			fingerprint.XMLNS = NSDTLS
			fingerprint.Required = "true"
			transport.Fingerprints = append(transport.Fingerprints, fingerprint)
		}
		contents = append(contents, Content{Creator: creator, Name: candidates[0].SDPMid, Transport: transport})
	}
	return contents
}

// SourceContents builds addsource/removesource contents from the ssrc lines of
// every section that has a mid.
func SourceContents(desc *SessionDescription) []Content {
	var contents []Content
	for _, media := range desc.Media {
		mid := media.MID()
		sources := SourcesToElements(media.FindAll("a=ssrc:"))
		if mid == "" || len(sources) == 0 {
			continue
		}
		contents = append(contents, Content{Name: mid, Sources: sources})
	}
	return contents
}
