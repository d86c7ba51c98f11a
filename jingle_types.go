package jingle

import (
	"encoding/xml"
	"strings"
)

const (
	NSClient         = "jabber:client"
	NSJingle         = "urn:xmpp:jingle:1"
	NSJingleErrors   = "urn:xmpp:jingle:errors:1"
	NSRTP            = "urn:xmpp:jingle:apps:rtp:1"
	NSRTPInfo        = "urn:xmpp:jingle:apps:rtp:info:1"
	NSSSMA           = "urn:xmpp:jingle:apps:rtp:ssma:0"
	NSRTCPFb         = "urn:xmpp:jingle:apps:rtp:rtcp-fb:0"
	NSHdrExt         = "urn:xmpp:jingle:apps:rtp:rtp-hdrext:0"
	NSGrouping       = "urn:xmpp:jingle:apps:grouping:0"
	NSGroupingLegacy = "urn:ietf:rfc:5888"
	NSICEUDP         = "urn:xmpp:jingle:transports:ice-udp:1"
	NSDTLS           = "urn:xmpp:jingle:apps:dtls:0"
	NSColibri        = "http://jitsi.org/protocol/colibri"
	NSStanzas        = "urn:ietf:params:xml:ns:xmpp-stanzas"
	NSExtDisco       = "urn:xmpp:extdisco:1"
)

const (
	IQGet    = "get"
	IQSet    = "set"
	IQResult = "result"
	IQError  = "error"
)

// Namespaces are carried as plain xmlns attributes so that incoming documents
// are matched on local names only.

type IQ struct {
	XMLName    xml.Name           `xml:"iq"`
	XMLNS      string             `xml:"xmlns,attr,omitempty"`
	ID         string             `xml:"id,attr,omitempty"`
	From       string             `xml:"from,attr,omitempty"`
	To         string             `xml:"to,attr,omitempty"`
	Type       string             `xml:"type,attr"`
	Jingle     *Jingle            `xml:"jingle,omitempty"`
	Conference *ColibriConference `xml:"conference,omitempty"`
	Services   *Services          `xml:"services,omitempty"`
	Error      *StanzaError       `xml:"error,omitempty"`
}

// Result builds the empty acknowledgement of iq.
func (iq *IQ) Result() *IQ {
	return &IQ{ID: iq.ID, To: iq.From, From: iq.To, Type: IQResult}
}

// ErrorReply builds an error response of iq carrying the given conditions.
func (iq *IQ) ErrorReply(errType string, conditions ...ErrorCondition) *IQ {
	return &IQ{ID: iq.ID, To: iq.From, From: iq.To, Type: IQError, Error: &StanzaError{Type: errType, Conditions: conditions}}
}

type Jingle struct {
	XMLNS      string    `xml:"xmlns,attr,omitempty"`
	ActionName string    `xml:"action,attr"`
	Initiator  string    `xml:"initiator,attr,omitempty"`
	Responder  string    `xml:"responder,attr,omitempty"`
	SID        string    `xml:"sid,attr"`
	Groups     []Group   `xml:"group"`
	Contents   []Content `xml:"content"`
	Reason     *Reason   `xml:"reason,omitempty"`
	Ringing    *Ringing  `xml:"ringing,omitempty"`
	Mute       *MuteInfo `xml:"mute,omitempty"`
	Unmute     *MuteInfo `xml:"unmute,omitempty"`
}

func (j *Jingle) Action() Action {
	return ParseAction(j.ActionName)
}

type Group struct {
	XMLNS     string         `xml:"xmlns,attr,omitempty"`
	Semantics string         `xml:"semantics,attr,omitempty"`
	Type      string         `xml:"type,attr,omitempty"`
	Contents  []GroupContent `xml:"content"`
}

type GroupContent struct {
	Name string `xml:"name,attr"`
}

type Content struct {
	Creator     string       `xml:"creator,attr,omitempty"`
	Name        string       `xml:"name,attr"`
	Senders     string       `xml:"senders,attr,omitempty"`
	Description *Description `xml:"description,omitempty"`
	Transport   *Transport   `xml:"transport,omitempty"`
	Sources     []Source     `xml:"source"`
}

// AllSources returns sources announced directly under the content and those
// inside its description.
func (c *Content) AllSources() []Source {
	sources := append([]Source(nil), c.Sources...)
	if c.Description != nil {
		sources = append(sources, c.Description.Sources...)
	}
	return sources
}

type Empty struct{}

type Description struct {
	XMLNS        string        `xml:"xmlns,attr,omitempty"`
	Media        string        `xml:"media,attr,omitempty"`
	SSRC         string        `xml:"ssrc,attr,omitempty"`
	PayloadTypes []PayloadType `xml:"payload-type"`
	Encryption   *Encryption   `xml:"encryption,omitempty"`
	Sources      []Source      `xml:"source"`
	SourceGroups []SourceGroup `xml:"ssrc-group"`
	RTCPMux      *Empty        `xml:"rtcp-mux,omitempty"`
	RTCPFbs      []RTCPFb      `xml:"rtcp-fb"`
	TrrInt       *RTCPFbTrrInt `xml:"rtcp-fb-trr-int,omitempty"`
	HdrExts      []HdrExt      `xml:"rtp-hdrext"`
}

type PayloadType struct {
	ID         string        `xml:"id,attr"`
	Name       string        `xml:"name,attr,omitempty"`
	ClockRate  string        `xml:"clockrate,attr,omitempty"`
	Channels   string        `xml:"channels,attr,omitempty"`
	Parameters []Parameter   `xml:"parameter"`
	RTCPFbs    []RTCPFb      `xml:"rtcp-fb"`
	TrrInt     *RTCPFbTrrInt `xml:"rtcp-fb-trr-int,omitempty"`
}

func (p PayloadType) RTPMap() RTPMap {
	return RTPMap{ID: p.ID, Name: p.Name, ClockRate: p.ClockRate, Channels: p.Channels}
}

type Parameter struct {
	Name  string `xml:"name,attr,omitempty"`
	Value string `xml:"value,attr,omitempty"`
}

type RTCPFb struct {
	XMLNS   string `xml:"xmlns,attr,omitempty"`
	Type    string `xml:"type,attr"`
	Subtype string `xml:"subtype,attr,omitempty"`
}

type RTCPFbTrrInt struct {
	XMLNS string `xml:"xmlns,attr,omitempty"`
	Value string `xml:"value,attr"`
}

type Encryption struct {
	Required string   `xml:"required,attr,omitempty"`
	Cryptos  []Crypto `xml:"crypto"`
}

type Crypto struct {
	Tag           string `xml:"tag,attr"`
	CryptoSuite   string `xml:"crypto-suite,attr"`
	KeyParams     string `xml:"key-params,attr"`
	SessionParams string `xml:"session-params,attr,omitempty"`
}

type Source struct {
	XMLNS      string      `xml:"xmlns,attr,omitempty"`
	SSRC       string      `xml:"ssrc,attr"`
	Parameters []Parameter `xml:"parameter"`
}

type SourceGroup struct {
	XMLNS     string   `xml:"xmlns,attr,omitempty"`
	Semantics string   `xml:"semantics,attr"`
	Sources   []Source `xml:"source"`
}

type HdrExt struct {
	XMLNS   string `xml:"xmlns,attr,omitempty"`
	ID      string `xml:"id,attr"`
	URI     string `xml:"uri,attr"`
	Senders string `xml:"senders,attr,omitempty"`
}

type Transport struct {
	XMLNS        string        `xml:"xmlns,attr,omitempty"`
	Ufrag        string        `xml:"ufrag,attr,omitempty"`
	Pwd          string        `xml:"pwd,attr,omitempty"`
	Fingerprints []Fingerprint `xml:"fingerprint"`
	Candidates   []Candidate   `xml:"candidate"`
}

func (t *Transport) IsICEUDP() bool {
	return t != nil && (t.XMLNS == "" || t.XMLNS == NSICEUDP)
}

type Fingerprint struct {
	XMLNS    string `xml:"xmlns,attr,omitempty"`
	Hash     string `xml:"hash,attr"`
	Setup    string `xml:"setup,attr,omitempty"`
	Required string `xml:"required,attr,omitempty"`
	Value    string `xml:",chardata"`
}

type Reason struct {
	Condition ReasonCondition `xml:",any"`
	Text      string          `xml:"text,omitempty"`
}

type ReasonCondition struct {
	XMLName xml.Name
}

func NewReason(condition, text string) *Reason {
	if condition == "" {
		condition = "success"
	}
	return &Reason{Condition: ReasonCondition{XMLName: xml.Name{Local: condition}}, Text: text}
}

type Ringing struct {
	XMLNS string `xml:"xmlns,attr,omitempty"`
}

type MuteInfo struct {
	XMLNS   string `xml:"xmlns,attr,omitempty"`
	Creator string `xml:"creator,attr,omitempty"`
	Name    string `xml:"name,attr,omitempty"`
}

// StanzaError is the <error/> child of a type="error" response.
type StanzaError struct {
	Type       string           `xml:"type,attr"`
	Code       string           `xml:"code,attr,omitempty"`
	Conditions []ErrorCondition `xml:",any"`
	Text       string           `xml:"text,omitempty"`
}

type ErrorCondition struct {
	XMLName xml.Name
	XMLNS   string `xml:"xmlns,attr,omitempty"`
}

func StanzaCondition(name string) ErrorCondition {
	return ErrorCondition{XMLName: xml.Name{Local: name}, XMLNS: NSStanzas}
}

func JingleCondition(name string) ErrorCondition {
	return ErrorCondition{XMLName: xml.Name{Local: name}, XMLNS: NSJingleErrors}
}

// Condition returns the defined stanza error condition.
func (e *StanzaError) Condition() string {
	if len(e.Conditions) == 0 {
		return ""
	}
	return e.Conditions[0].XMLName.Local
}

func (e *StanzaError) Error() string {
	names := make([]string, 0, len(e.Conditions))
	for _, c := range e.Conditions {
		names = append(names, c.XMLName.Local)
	}
	msg := "stanza error " + e.Type + ": " + strings.Join(names, ", ")
	if e.Text != "" {
		msg += " (" + e.Text + ")"
	}
	return msg
}

// ColibriConference is the <conference/> element of channel allocation requests.
type ColibriConference struct {
	XMLNS    string           `xml:"xmlns,attr,omitempty"`
	ID       string           `xml:"id,attr,omitempty"`
	Contents []ColibriContent `xml:"content"`
}

type ColibriContent struct {
	Creator  string    `xml:"creator,attr,omitempty"`
	Name     string    `xml:"name,attr"`
	Channels []Channel `xml:"channel"`
}

// Channel is one bridge relay channel of a conference content.
type Channel struct {
	ID           string        `xml:"id,attr,omitempty"`
	Initiator    string        `xml:"initiator,attr,omitempty"`
	Endpoint     string        `xml:"endpoint,attr,omitempty"`
	Expire       string        `xml:"expire,attr,omitempty"`
	PayloadTypes []PayloadType `xml:"payload-type"`
	Sources      []Source      `xml:"source"`
	SourceGroups []SourceGroup `xml:"ssrc-group"`
	Transport    *Transport    `xml:"transport,omitempty"`
}

type Services struct {
	XMLNS    string    `xml:"xmlns,attr,omitempty"`
	Services []Service `xml:"service"`
}

type Service struct {
	Type      string `xml:"type,attr,omitempty"`
	Host      string `xml:"host,attr"`
	Port      string `xml:"port,attr,omitempty"`
	Transport string `xml:"transport,attr,omitempty"`
	Username  string `xml:"username,attr,omitempty"`
	Password  string `xml:"password,attr,omitempty"`
}
