package jingle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRenegotiationFixture(forceSendRecv bool) (*fakeDispatcher, *fakeTransport, *renegotiator) {
	d := &fakeDispatcher{}
	tr := newFakeTransport()
	tr.remote = &RTCSessionDescription{Type: SDPOffer, SDP: testOffer}
	r := newRenegotiator(testLog, d, tr, 250*time.Millisecond, 2500*time.Millisecond, forceSendRecv)
	return d, tr, r
}

func TestRenegotiatorWaitsForStableConnectedTransport(t *testing.T) {
	d, tr, r := newRenegotiationFixture(false)
	var applied []RTCSessionDescription
	r.onApplied = func(answer RTCSessionDescription) { applied = append(applied, answer) }

	r.queueAdd(1, []string{"a=ssrc:3333 cname:bob"})
	r.modify()
	d.advance(500 * time.Millisecond)
	assert.Empty(t, tr.setRemote)

	tr.connect()
	d.advance(250 * time.Millisecond)
	assert.Empty(t, tr.setRemote, "settle delay first")
	d.advance(2499 * time.Millisecond)
	assert.Empty(t, tr.setRemote)
	d.advance(time.Millisecond)

	require.Len(t, tr.setRemote, 1)
	desc := ParseSDP(tr.setRemote[0].SDP)
	assert.Equal(t, SDPOffer, tr.setRemote[0].Type)
	assert.Contains(t, desc.Media[1].Lines, "a=ssrc:3333 cname:bob")
	assert.NotContains(t, desc.Session, "a=msid-semantic: WMS stream")
	require.Len(t, applied, 1)
	assert.Equal(t, SDPAnswer, applied[0].Type)
	assert.False(t, r.pending())
}

func TestRenegotiatorGroupsAddedSources(t *testing.T) {
	d, tr, r := newRenegotiationFixture(false)
	tr.remote.SDP = testOffer + "a=" + hostCandidate + crlf
	tr.connect()

	r.queueAdd(1, []string{"a=ssrc:3333 cname:bob"})
	r.modify()
	d.advance(2500 * time.Millisecond)

	require.Len(t, tr.setRemote, 1)
	video := ParseSDP(tr.setRemote[0].SDP).Media[1].Lines
	n := len(video)
	assert.Equal(t, Lines{"a=ssrc:2222 cname:alice", "a=ssrc:3333 cname:bob", "a=" + hostCandidate}, video[n-3:])
}

func TestRenegotiatorSettlesOncePerBatch(t *testing.T) {
	d, tr, r := newRenegotiationFixture(false)
	tr.connect()

	r.queueRemove(0, []string{"a=ssrc:1111 cname:alice"})
	r.modify()
	r.queueAdd(0, []string{"a=ssrc:4444 cname:carol"})
	r.modify()
	assert.Equal(t, 1, d.pendingTimers())
	d.advance(2500 * time.Millisecond)

	require.Len(t, tr.setRemote, 1)
	audio := ParseSDP(tr.setRemote[0].SDP).Media[0]
	assert.NotContains(t, audio.Lines, "a=ssrc:1111 cname:alice")
	assert.Contains(t, audio.Lines, "a=ssrc:1111 msid:stream audio0")
	assert.Contains(t, audio.Lines, "a=ssrc:4444 cname:carol")

	r.queueAdd(0, []string{"a=ssrc:5555 cname:dave"})
	r.modify()
	d.advance(time.Second)
	assert.Len(t, tr.setRemote, 1)
	d.advance(1500 * time.Millisecond)
	assert.Len(t, tr.setRemote, 2)
}

func TestRenegotiatorForcesSendRecv(t *testing.T) {
	d, tr, r := newRenegotiationFixture(true)
	desc := ParseSDP(testOffer)
	desc.Media[0].ReplaceFirst("a=sendrecv", "a=recvonly")
	tr.remote = &RTCSessionDescription{Type: SDPOffer, SDP: desc.Raw()}
	tr.connect()

	r.queueAdd(0, []string{"a=ssrc:3333 cname:bob"})
	r.modify()
	d.advance(2500 * time.Millisecond)
	require.Len(t, tr.setRemote, 1)
	audio := ParseSDP(tr.setRemote[0].SDP).Media[0]
	assert.Contains(t, audio.Lines, "a=sendrecv")
	assert.NotContains(t, audio.Lines, "a=recvonly")
}

func TestRenegotiatorNothingQueued(t *testing.T) {
	d, tr, r := newRenegotiationFixture(false)
	tr.connect()
	r.modify()
	assert.Equal(t, 0, d.pendingTimers())
}

func TestRenegotiatorStop(t *testing.T) {
	d, tr, r := newRenegotiationFixture(false)
	tr.connect()
	r.queueAdd(0, []string{"a=ssrc:3333 cname:bob"})
	r.modify()
	r.stop()
	d.advance(time.Minute)
	assert.Empty(t, tr.setRemote)
	r.modify()
	assert.Equal(t, 0, d.pendingTimers())
}

func TestRenegotiatorClosedTransport(t *testing.T) {
	d, tr, r := newRenegotiationFixture(false)
	r.queueAdd(0, []string{"a=ssrc:3333 cname:bob"})
	tr.Close()
	r.modify()
	assert.Equal(t, 0, d.pendingTimers())
}
