package jingle

import (
	"strings"
)

type MLine struct {
	Media   string
	Port    string
	Proto   string
	Formats []string
}

func ParseMLine(line string) MLine {
	parts := strings.Split(strings.TrimPrefix(line, "m="), " ")
	if n := len(parts); n > 0 && parts[n-1] == "" { // trailing whitespace
		parts = parts[:n-1]
	}
	var m MLine
	if len(parts) > 0 {
		m.Media = parts[0]
	}
	if len(parts) > 1 {
		m.Port = parts[1]
	}
	if len(parts) > 2 {
		m.Proto = parts[2]
	}
	if len(parts) > 3 {
		m.Formats = parts[3:]
	}
	return m
}

func (m MLine) String() string {
	return "m=" + m.Media + " " + m.Port + " " + m.Proto + " " + strings.Join(m.Formats, " ")
}

type RTPMap struct {
	ID        string
	Name      string
	ClockRate string
	Channels  string
}

func ParseRTPMap(line string) RTPMap {
	id, rest, _ := strings.Cut(strings.TrimPrefix(line, "a=rtpmap:"), " ")
	rest, _, _ = strings.Cut(rest, " ")
	parts := strings.Split(rest, "/")
	r := RTPMap{ID: id, Name: parts[0], Channels: "1"}
	if len(parts) > 1 {
		r.ClockRate = parts[1]
	}
	if len(parts) > 2 {
		r.Channels = parts[2]
	}
	return r
}

func (r RTPMap) String() string {
	line := "a=rtpmap:" + r.ID + " " + r.Name + "/" + r.ClockRate
	if r.Channels != "" && r.Channels != "1" {
		line += "/" + r.Channels
	}
	return line
}

// ParseFmtp reads "a=fmtp:<pt> k=v;k=v". Bare tokens (RFC 4733 style) become
// parameters with an empty name.
func ParseFmtp(line string) []Parameter {
	_, rest, _ := strings.Cut(line, " ")
	var params []Parameter
	for _, part := range strings.Split(rest, ";") {
		key, value, _ := strings.Cut(part, "=")
		key = strings.TrimLeft(key, " ")
		switch {
		case key != "" && value != "":
			params = append(params, Parameter{Name: key, Value: value})
		case key != "":
			params = append(params, Parameter{Value: key})
		}
	}
	return params
}

func BuildFmtp(pt string, params []Parameter) string {
	parts := make([]string, 0, len(params))
	for _, p := range params {
		if p.Name != "" {
			parts = append(parts, p.Name+"="+p.Value)
		} else {
			parts = append(parts, p.Value)
		}
	}
	return "a=fmtp:" + pt + " " + strings.Join(parts, ";")
}

func ParseCrypto(line string) Crypto {
	parts := strings.Split(strings.TrimPrefix(line, "a=crypto:"), " ")
	var c Crypto
	if len(parts) > 0 {
		c.Tag = parts[0]
	}
	if len(parts) > 1 {
		c.CryptoSuite = parts[1]
	}
	if len(parts) > 2 {
		c.KeyParams = parts[2]
	}
	if len(parts) > 3 {
		c.SessionParams = strings.Join(parts[3:], " ")
	}
	return c
}

func (c Crypto) Line() string {
	line := "a=crypto:" + c.Tag + " " + c.CryptoSuite + " " + c.KeyParams
	if c.SessionParams != "" {
		line += " " + c.SessionParams
	}
	return line
}

// ParseFingerprint reads an RFC 4572 "a=fingerprint:<hash> <value>" line.
func ParseFingerprint(line string) Fingerprint {
	hash, value, _ := strings.Cut(strings.TrimPrefix(line, "a=fingerprint:"), " ")
	value, _, _ = strings.Cut(value, " ")
	return Fingerprint{Hash: hash, Value: value}
}

func (f Fingerprint) Line() string {
	return "a=fingerprint:" + f.Hash + " " + f.Value
}

type ExtMap struct {
	ID        string
	Direction string
	URI       string
	Params    []string
}

func ParseExtMap(line string) ExtMap {
	parts := strings.Split(strings.TrimPrefix(line, "a=extmap:"), " ")
	e := ExtMap{}
	id, dir, found := strings.Cut(parts[0], "/")
	e.ID = id
	if found {
		e.Direction = dir
	}
	if len(parts) > 1 {
		e.URI = parts[1]
	}
	if len(parts) > 2 {
		e.Params = parts[2:]
	}
	return e
}

func (e ExtMap) String() string {
	line := "a=extmap:" + e.ID
	if e.Direction != "" {
		line += "/" + e.Direction
	}
	line += " " + e.URI
	if len(e.Params) > 0 {
		line += " " + strings.Join(e.Params, " ")
	}
	return line
}

type RTCPFeedback struct {
	PayloadType string
	Type        string
	Params      []string
}

func ParseRTCPFeedback(line string) RTCPFeedback {
	parts := strings.Split(strings.TrimPrefix(line, "a=rtcp-fb:"), " ")
	fb := RTCPFeedback{PayloadType: parts[0]}
	if len(parts) > 1 {
		fb.Type = parts[1]
	}
	if len(parts) > 2 {
		fb.Params = parts[2:]
	}
	return fb
}

func ParseMID(line string) string {
	return strings.TrimPrefix(line, "a=mid:")
}

// ICEParams returns ufrag and pwd of media section idx, falling back to the
// session block. ok is false unless both are present.
func (s *SessionDescription) ICEParams(idx int) (ufrag, pwd string, ok bool) {
	ufragLine, hasUfrag := s.FindLine(idx, "a=ice-ufrag:")
	pwdLine, hasPwd := s.FindLine(idx, "a=ice-pwd:")
	if !hasUfrag || !hasPwd {
		return "", "", false
	}
	return strings.TrimPrefix(ufragLine, "a=ice-ufrag:"), strings.TrimPrefix(pwdLine, "a=ice-pwd:"), true
}

// SourceDescriptor is one "a=ssrc:<ssrc> <key>[:<value>]" attribute.
type SourceDescriptor struct {
	SSRC  string
	Key   string
	Value string
}

func ParseSourceDescriptor(line string) (SourceDescriptor, bool) {
	if !strings.HasPrefix(line, "a=ssrc:") {
		return SourceDescriptor{}, false
	}
	ssrc, kv, found := strings.Cut(strings.TrimPrefix(line, "a=ssrc:"), " ")
	if !found {
		return SourceDescriptor{SSRC: ssrc}, true
	}
	key, value, _ := strings.Cut(kv, ":")
	return SourceDescriptor{SSRC: ssrc, Key: key, Value: value}, true
}

func (d SourceDescriptor) Line() string {
	line := "a=ssrc:" + d.SSRC + " " + d.Key
	if d.Value != "" {
		line += ":" + d.Value
	}
	return line
}

type SSRCGroup struct {
	Semantics string
	SSRCs     []string
}

func ParseSSRCGroup(line string) SSRCGroup {
	parts := strings.Split(strings.TrimPrefix(line, "a=ssrc-group:"), " ")
	return SSRCGroup{Semantics: parts[0], SSRCs: parts[1:]}
}

func (g SSRCGroup) Line() string {
	return "a=ssrc-group:" + g.Semantics + " " + strings.Join(g.SSRCs, " ")
}

// SourcesToElements groups ssrc attribute lines by ssrc in order of first
// appearance.
func SourcesToElements(lines []string) []Source {
	var sources []Source
	index := make(map[string]int)
	for _, line := range lines {
		d, ok := ParseSourceDescriptor(line)
		if !ok {
			continue
		}
		i, seen := index[d.SSRC]
		if !seen {
			i = len(sources)
			index[d.SSRC] = i
			sources = append(sources, Source{XMLNS: NSSSMA, SSRC: d.SSRC})
		}
		if d.Key != "" {
			sources[i].Parameters = append(sources[i].Parameters, Parameter{Name: d.Key, Value: d.Value})
		}
	}
	return sources
}

// SourceLines flattens source elements back to ssrc attribute lines.
func SourceLines(sources []Source) []string {
	var lines []string
	for _, src := range sources {
		for _, p := range src.Parameters {
			lines = append(lines, SourceDescriptor{SSRC: src.SSRC, Key: p.Name, Value: p.Value}.Line())
		}
	}
	return lines
}
