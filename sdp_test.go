package jingle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSDPSplitsSessionAndMedia(t *testing.T) {
	desc := ParseSDP(testOffer)
	require.Len(t, desc.Media, 2)
	assert.Equal(t, "v=0", desc.Session[0])
	assert.Equal(t, "a=msid-semantic: WMS stream", desc.Session[len(desc.Session)-1])
	assert.Equal(t, "m=audio 9 UDP/TLS/RTP/SAVPF 111 0", desc.Media[0].Lines[0])
	assert.Equal(t, "video", desc.Media[1].MID())
	assert.Equal(t, testOffer, desc.Raw())
}

func TestParseSDPEmpty(t *testing.T) {
	desc := ParseSDP("")
	assert.Empty(t, desc.Session)
	assert.Empty(t, desc.Media)
	assert.Equal(t, "", desc.Raw())
}

func TestParseSDPKeepsMalformedLines(t *testing.T) {
	text := sdpText("v=0", "garbage", "m=audio 1 RTP/AVPF 0", "not=a=line")
	desc := ParseSDP(text)
	assert.Equal(t, Lines{"v=0", "garbage"}, desc.Session)
	assert.Equal(t, text, desc.Raw())
}

func TestLinesRemoveOnlyFirst(t *testing.T) {
	lines := Lines{"a=ssrc:1 cname:x", "a=ssrc:2 cname:y", "a=mid:audio"}
	assert.True(t, lines.Remove("a=ssrc:"))
	assert.Equal(t, Lines{"a=ssrc:2 cname:y", "a=mid:audio"}, lines)
	assert.Equal(t, 1, lines.RemoveAll("a=ssrc:"))
	assert.Equal(t, Lines{"a=mid:audio"}, lines)
	assert.False(t, lines.Remove("a=ssrc:"))
}

func TestLinesReplace(t *testing.T) {
	lines := Lines{"a=inactive", "a=mid:audio", "a=inactive"}
	assert.True(t, lines.ReplaceFirst("a=inactive", "a=sendrecv"))
	assert.Equal(t, Lines{"a=sendrecv", "a=mid:audio", "a=inactive"}, lines)
	assert.Equal(t, 1, lines.ReplaceAll("a=inactive", "a=sendrecv"))
	assert.Equal(t, 0, lines.ReplaceAll("a=sendrecv", "a=sendrecv"))
}

func TestLinesRemoveExactAndInsert(t *testing.T) {
	lines := Lines{"a=ssrc:1 cname:x", "a=ssrc:1 cname:xy"}
	assert.True(t, lines.RemoveExact("a=ssrc:1 cname:xy"))
	assert.Equal(t, Lines{"a=ssrc:1 cname:x"}, lines)
	lines.Insert(0, "a=mid:audio")
	lines.Insert(10, "a=rtcp-mux")
	assert.Equal(t, Lines{"a=mid:audio", "a=ssrc:1 cname:x", "a=rtcp-mux"}, lines)
}

func TestInsertSources(t *testing.T) {
	media := &MediaSection{Lines: Lines{"m=audio 1 RTP/AVPF 0", "a=ssrc:1 cname:x", "a=" + hostCandidate}}
	media.InsertSources([]string{"a=ssrc:2 cname:y", "a=ssrc:2 msid:s a"})
	assert.Equal(t, Lines{"m=audio 1 RTP/AVPF 0", "a=ssrc:1 cname:x", "a=ssrc:2 cname:y", "a=ssrc:2 msid:s a", "a=" + hostCandidate}, media.Lines)

	bare := &MediaSection{Lines: Lines{"m=video 1 RTP/AVPF 96", "a=mid:video"}}
	bare.InsertSources([]string{"a=ssrc:3 cname:z"})
	assert.Equal(t, Lines{"m=video 1 RTP/AVPF 96", "a=mid:video", "a=ssrc:3 cname:z"}, bare.Lines)
}

func TestFindLineFallsBackToSession(t *testing.T) {
	desc := ParseSDP(sdpText("v=0", "a=ice-ufrag:sess", "a=ice-pwd:sesspwd", "m=audio 1 RTP/AVPF 0", "a=mid:audio"))
	line, ok := desc.FindLine(0, "a=ice-ufrag:")
	assert.True(t, ok)
	assert.Equal(t, "a=ice-ufrag:sess", line)
	ufrag, pwd, ok := desc.ICEParams(0)
	assert.True(t, ok)
	assert.Equal(t, "sess", ufrag)
	assert.Equal(t, "sesspwd", pwd)
	assert.Equal(t, []string{"a=ice-ufrag:sess"}, desc.FindLines(0, "a=ice-ufrag:"))
}

func TestIndexOfByMidAndMediaType(t *testing.T) {
	desc := ParseSDP(sdpText("v=0", "m=audio 1 RTP/AVPF 0", "a=mid:0", "m=video 1 RTP/AVPF 96"))
	assert.Equal(t, 0, desc.IndexOf("0"))
	assert.Equal(t, 1, desc.IndexOf("video"))
	assert.Equal(t, -1, desc.IndexOf("audio0"))
	assert.Equal(t, -1, desc.IndexOf(""))
	assert.Equal(t, []string{"0"}, desc.MIDs())
}

func TestCloneIsDeep(t *testing.T) {
	desc := ParseSDP(testOffer)
	clone := desc.Clone()
	clone.Media[0].RemoveAll("a=ssrc:")
	clone.Session.Append("a=extra")
	assert.Equal(t, testOffer, desc.Raw())
	assert.NotEqual(t, testOffer, clone.Raw())
}

func TestLineCodecs(t *testing.T) {
	rtpmap := ParseRTPMap("a=rtpmap:111 opus/48000/2")
	assert.Equal(t, RTPMap{ID: "111", Name: "opus", ClockRate: "48000", Channels: "2"}, rtpmap)
	assert.Equal(t, "a=rtpmap:111 opus/48000/2", rtpmap.String())
	pcmu := ParseRTPMap("a=rtpmap:0 PCMU/8000")
	assert.Equal(t, "1", pcmu.Channels)
	assert.Equal(t, "a=rtpmap:0 PCMU/8000", pcmu.String())

	params := ParseFmtp("a=fmtp:111 minptime=10; useinbandfec=1")
	assert.Equal(t, []Parameter{{Name: "minptime", Value: "10"}, {Name: "useinbandfec", Value: "1"}}, params)
	assert.Equal(t, "a=fmtp:111 minptime=10;useinbandfec=1", BuildFmtp("111", params))
	assert.Equal(t, "a=fmtp:126 0-15", BuildFmtp("126", ParseFmtp("a=fmtp:126 0-15")))

	fp := ParseFingerprint("a=fingerprint:sha-256 AB:CD")
	assert.Equal(t, "sha-256", fp.Hash)
	assert.Equal(t, "AB:CD", fp.Value)
	assert.Equal(t, "a=fingerprint:sha-256 AB:CD", fp.Line())

	crypto := ParseCrypto("a=crypto:1 AES_CM_128_HMAC_SHA1_80 inline:KEY KDR=1")
	assert.Equal(t, "KDR=1", crypto.SessionParams)
	assert.Equal(t, "a=crypto:1 AES_CM_128_HMAC_SHA1_80 inline:KEY KDR=1", crypto.Line())

	ext := ParseExtMap("a=extmap:2/sendonly urn:ietf:params:rtp-hdrext:toffset")
	assert.Equal(t, "sendonly", ext.Direction)
	assert.Equal(t, "a=extmap:2/sendonly urn:ietf:params:rtp-hdrext:toffset", ext.String())

	group := ParseSSRCGroup("a=ssrc-group:FID 1 2")
	assert.Equal(t, []string{"1", "2"}, group.SSRCs)
	assert.Equal(t, "a=ssrc-group:FID 1 2", group.Line())
}

func TestSourcesRoundTrip(t *testing.T) {
	lines := []string{
		"a=ssrc:1111 cname:alice",
		"a=ssrc:1111 msid:stream audio0",
		"a=ssrc:2222 cname:alice",
	}
	sources := SourcesToElements(lines)
	require.Len(t, sources, 2)
	assert.Equal(t, "1111", sources[0].SSRC)
	assert.Equal(t, Parameter{Name: "msid", Value: "stream audio0"}, sources[0].Parameters[1])
	assert.Equal(t, lines, SourceLines(sources))
}
