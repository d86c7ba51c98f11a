package pionrtc

import (
	"testing"

	jingle "github.com/Connect-Club/connectclub-jingle"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTransport(t *testing.T) jingle.MediaTransport {
	t.Helper()
	factory, err := NewFactory(logrus.WithField("test", t.Name()))
	require.NoError(t, err)
	transport, err := factory.NewMediaTransport(jingle.TransportConfig{
		ICEServers: []jingle.ICEServer{{URLs: []string{"stun:stun.example.com:3478"}}},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = transport.Close() })
	return transport
}

func TestStateMapping(t *testing.T) {
	assert.Equal(t, jingle.SignalingHaveLocalPranswer, signalingState(webrtc.SignalingStateHaveLocalPranswer))
	assert.Equal(t, jingle.SignalingClosed, signalingState(webrtc.SignalingStateClosed))
	assert.Equal(t, jingle.ICECompleted, iceConnectionState(webrtc.ICEConnectionStateCompleted))
	assert.Equal(t, jingle.ICEDisconnected, iceConnectionState(webrtc.ICEConnectionStateDisconnected))

	for _, kind := range []jingle.SDPType{jingle.SDPOffer, jingle.SDPPranswer, jingle.SDPAnswer, jingle.SDPRollback} {
		desc := toPion(jingle.RTCSessionDescription{Type: kind, SDP: "v=0\r\n"})
		assert.Equal(t, kind, fromPion(desc).Type)
	}
	assert.Nil(t, fromPionPtr(nil))
}

func TestConfiguration(t *testing.T) {
	cfg := configuration(jingle.TransportConfig{ICEServers: []jingle.ICEServer{
		{URLs: []string{"turn:turn.example.com"}, Username: "u", Credential: "p"},
	}})
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, "u", cfg.ICEServers[0].Username)
	assert.Equal(t, "p", cfg.ICEServers[0].Credential)
}

func TestOfferTranslatesToJingle(t *testing.T) {
	transport := newTestTransport(t)
	var offer jingle.RTCSessionDescription
	transport.CreateOffer(
		func(desc jingle.RTCSessionDescription) { offer = desc },
		func(err error) { t.Fatal(err) },
	)
	require.Equal(t, jingle.SDPOffer, offer.Type)

	sdp := jingle.ParseSDP(offer.SDP)
	require.Len(t, sdp.Media, 2)
	assert.Equal(t, "audio", sdp.Media[0].MLine().Media)
	assert.Equal(t, "video", sdp.Media[1].MLine().Media)

	j := &jingle.Jingle{}
	sdp.ToJingle(j, "initiator", jingle.ToJingleOptions{WithoutCandidates: true})
	require.Len(t, j.Contents, 2)
	for _, content := range j.Contents {
		assert.NotEmpty(t, content.Transport.Ufrag)
		assert.NotEmpty(t, content.Transport.Fingerprints)
		assert.NotEmpty(t, content.Description.PayloadTypes)
	}

	var applied bool
	transport.SetLocalDescription(offer, func() { applied = true }, func(err error) { t.Fatal(err) })
	assert.True(t, applied)
	assert.Equal(t, jingle.SignalingHaveLocalOffer, transport.SignalingState())
	require.NotNil(t, transport.LocalDescription())
	assert.Equal(t, jingle.SDPOffer, transport.LocalDescription().Type)
	assert.Nil(t, transport.RemoteDescription())
}

func TestOfferAnswerBetweenTransports(t *testing.T) {
	offerer, answerer := newTestTransport(t), newTestTransport(t)
	fail := func(err error) { t.Fatal(err) }
	noop := func() {}

	var offer, answer jingle.RTCSessionDescription
	offerer.CreateOffer(func(desc jingle.RTCSessionDescription) { offer = desc }, fail)
	offerer.SetLocalDescription(offer, noop, fail)

	answerer.SetRemoteDescription(offer, noop, fail)
	assert.Equal(t, jingle.SignalingHaveRemoteOffer, answerer.SignalingState())

	answerer.CreateAnswer(func(desc jingle.RTCSessionDescription) { answer = desc }, fail)
	require.Equal(t, jingle.SDPAnswer, answer.Type)
	answerer.SetLocalDescription(answer, noop, fail)
	offerer.SetRemoteDescription(answer, noop, fail)

	assert.Equal(t, jingle.SignalingStable, offerer.SignalingState())
	assert.Equal(t, jingle.SignalingStable, answerer.SignalingState())
}

func TestSetRemoteDescriptionError(t *testing.T) {
	transport := newTestTransport(t)
	var got error
	transport.SetRemoteDescription(jingle.RTCSessionDescription{Type: jingle.SDPAnswer, SDP: "v=0\r\n"},
		func() { t.Fatal("unexpected success") },
		func(err error) { got = err },
	)
	assert.Error(t, got)
}
