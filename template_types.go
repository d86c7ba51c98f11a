package jingle

type GroupTemplateData struct {
	Semantics string
	MIDs      []string
}

type HeaderTemplateData struct {
	SessionID      string
	SessionVersion int
	Groups         []GroupTemplateData
}

type ProvisionalMediaTemplateData struct {
	MLine      string
	CodecLines []string
	MID        string
}

type BridgeMediaTemplateData struct {
	MLine        string
	MID          string
	HdrExts      []string
	CodecLines   []string
	RTCPMux      bool
	MixedSources []string
	Ufrag        string
	Pwd          string
	Candidates   []Candidate
	Fingerprints []Fingerprint
}
