package jingle

import (
	"errors"
	"strings"
	"testing"

	"github.com/pion/ice/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCandidate(t *testing.T) {
	c, err := ParseCandidate("a=" + srflxCandidate + "\r\n")
	require.NoError(t, err)
	assert.Equal(t, "2", c.Foundation)
	assert.Equal(t, 1, c.Component)
	assert.Equal(t, "udp", c.Protocol)
	assert.Equal(t, 1686052607, c.Priority)
	assert.Equal(t, "203.0.113.7", c.IP)
	assert.Equal(t, 41000, c.Port)
	assert.Equal(t, CandidateSrflx, c.Type)
	assert.Equal(t, "192.168.1.2", c.RelAddr)
	assert.Equal(t, 50000, c.RelPort)
	assert.Equal(t, "0", c.Generation)
	assert.Equal(t, "1", c.Network)
	assert.Len(t, c.ID, 10)
}

func TestParseCandidateLowercasesProtocol(t *testing.T) {
	c, err := ParseCandidate("candidate:3 1 TCP 1518280447 192.168.1.2 9 typ host tcptype active")
	require.NoError(t, err)
	assert.Equal(t, "tcp", c.Protocol)
	assert.Equal(t, "active", c.TCPType)
	assert.Equal(t, "candidate:3 1 tcp 1518280447 192.168.1.2 9 typ host tcptype active generation 0", c.Attribute())
}

func TestParseCandidateMalformed(t *testing.T) {
	for _, line := range []string{
		"a=ice-ufrag:foo",
		"candidate:1 1 udp 1 192.168.1.2 5000 host",
		"candidate:1 x udp 1 192.168.1.2 5000 typ host",
		"candidate:1 1 udp 1 192.168.1.2 port typ host",
	} {
		_, err := ParseCandidate(line)
		assert.True(t, errors.Is(err, ErrMalformedCandidate), line)
	}
}

func TestCandidateLineRoundTrip(t *testing.T) {
	for _, attr := range []string{hostCandidate, srflxCandidate} {
		c, err := ParseCandidate(attr)
		require.NoError(t, err)
		assert.Equal(t, attr, c.Attribute())
		assert.Equal(t, "a="+attr, c.Line())

		again, err := ParseCandidate(c.Line())
		require.NoError(t, err)
		assert.Equal(t, c.Line(), again.Line())
	}
}

func TestCandidateRelatedAddressOnlyForNonHost(t *testing.T) {
	c := Candidate{Foundation: "1", Component: 1, Protocol: "udp", Priority: 1, IP: "10.0.0.1", Port: 1, Type: CandidateHost, RelAddr: "10.0.0.2", RelPort: 2}
	assert.NotContains(t, c.Attribute(), "raddr")
	c.Type = CandidateRelay
	assert.Contains(t, c.Attribute(), "raddr 10.0.0.2 rport 2")
}

func TestCandidateLinesParseWithPion(t *testing.T) {
	for _, attr := range []string{hostCandidate, srflxCandidate} {
		c, err := ParseCandidate(attr)
		require.NoError(t, err)
		parsed, err := ice.UnmarshalCandidate(strings.TrimPrefix(c.Attribute(), "candidate:"))
		require.NoError(t, err)
		assert.Equal(t, c.IP, parsed.Address())
		assert.Equal(t, c.Port, parsed.Port())
	}
}

func TestCandidateTally(t *testing.T) {
	var tally candidateTally
	assert.True(t, tally.none())
	tally.addLines([]string{"a=garbage", "a=" + srflxCandidate})
	assert.False(t, tally.none())
	assert.True(t, tally.reflexive)
	assert.False(t, tally.host)
}
