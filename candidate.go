package jingle

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	CandidateHost  = "host"
	CandidateSrflx = "srflx"
	CandidatePrflx = "prflx"
	CandidateRelay = "relay"
)

// Candidate is one ICE candidate. It doubles as the XEP-0176 <candidate/> element.
type Candidate struct {
	Foundation string `xml:"foundation,attr"`
	Component  int    `xml:"component,attr"`
	Protocol   string `xml:"protocol,attr"`
	Priority   int    `xml:"priority,attr"`
	IP         string `xml:"ip,attr"`
	Port       int    `xml:"port,attr"`
	Type       string `xml:"type,attr"`
	RelAddr    string `xml:"rel-addr,attr,omitempty"`
	RelPort    int    `xml:"rel-port,attr,omitempty"`
	TCPType    string `xml:"tcptype,attr,omitempty"`
	Generation string `xml:"generation,attr,omitempty"`
	Network    string `xml:"network,attr,omitempty"`
	ID         string `xml:"id,attr,omitempty"`
}

// ParseCandidate reads "a=candidate:..." or "candidate:..." lines, as found in
// SDP and in transport candidate events respectively.
func ParseCandidate(line string) (Candidate, error) {
	line = strings.TrimSuffix(line, crlf)
	switch {
	case strings.HasPrefix(line, "a=candidate:"):
		line = strings.TrimPrefix(line, "a=candidate:")
	case strings.HasPrefix(line, "candidate:"):
		line = strings.TrimPrefix(line, "candidate:")
	default:
		return Candidate{}, fmt.Errorf("%w, not a candidate line: %q", ErrMalformedCandidate, line)
	}
	elems := strings.Split(line, " ")
	if len(elems) < 8 || elems[6] != "typ" {
		return Candidate{}, fmt.Errorf("%w, typ not found in the right place: %q", ErrMalformedCandidate, line)
	}
	c := Candidate{
		Foundation: elems[0],
		Protocol:   strings.ToLower(elems[2]),
		IP:         elems[4],
		Type:       elems[7],
		Network:    "1",
		ID:         newCandidateID(),
	}
	var err error
	if c.Component, err = strconv.Atoi(elems[1]); err != nil {
		return Candidate{}, fmt.Errorf("%w, component = %q", ErrMalformedCandidate, elems[1])
	}
	if c.Priority, err = strconv.Atoi(elems[3]); err != nil {
		return Candidate{}, fmt.Errorf("%w, priority = %q", ErrMalformedCandidate, elems[3])
	}
	if c.Port, err = strconv.Atoi(elems[5]); err != nil {
		return Candidate{}, fmt.Errorf("%w, port = %q", ErrMalformedCandidate, elems[5])
	}
	for i := 8; i+1 < len(elems); i += 2 {
		switch elems[i] {
		case "raddr":
			c.RelAddr = elems[i+1]
		case "rport":
			if c.RelPort, err = strconv.Atoi(elems[i+1]); err != nil {
				return Candidate{}, fmt.Errorf("%w, rport = %q", ErrMalformedCandidate, elems[i+1])
			}
		case "tcptype":
			c.TCPType = elems[i+1]
		case "generation":
			c.Generation = elems[i+1]
		}
	}
	return c, nil
}

// Attribute builds the candidate attribute value without the "a=" prefix.
func (c Candidate) Attribute() string {
	var b strings.Builder
	b.WriteString("candidate:")
	b.WriteString(strings.Join([]string{
		c.Foundation,
		strconv.Itoa(c.Component),
		c.Protocol,
		strconv.Itoa(c.Priority),
		c.IP,
		strconv.Itoa(c.Port),
		"typ",
		c.Type,
	}, " "))
	b.WriteString(" ")
	switch c.Type {
	case CandidateSrflx, CandidatePrflx, CandidateRelay:
		if c.RelAddr != "" {
			b.WriteString("raddr " + c.RelAddr + " rport " + strconv.Itoa(c.RelPort) + " ")
		}
	}
	if c.TCPType != "" {
		b.WriteString("tcptype " + c.TCPType + " ")
	}
	generation := c.Generation
	if generation == "" {
		generation = "0"
	}
	b.WriteString("generation " + generation)
	return b.String()
}

// Line builds the SDP attribute line, "a=candidate:...".
func (c Candidate) Line() string {
	return "a=" + c.Attribute()
}

func newCandidateID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}

type candidateTally struct {
	host      bool
	reflexive bool
	relay     bool
}

func (t *candidateTally) add(c Candidate) {
	switch c.Type {
	case CandidateHost:
		t.host = true
	case CandidateSrflx, CandidatePrflx:
		t.reflexive = true
	case CandidateRelay:
		t.relay = true
	}
}

func (t *candidateTally) addLines(lines []string) {
	for _, line := range lines {
		if c, err := ParseCandidate(line); err == nil {
			t.add(c)
		}
	}
}

func (t *candidateTally) none() bool {
	return !(t.host || t.reflexive || t.relay)
}
