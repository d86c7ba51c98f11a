package jingle

import (
	"encoding/xml"

	"github.com/sirupsen/logrus"
)

const emptyStanza = "<iq/>"

func createJingleIQ(to string, action Action, initiator, sid string) (*IQ, *Jingle) {
	j := &Jingle{
		XMLNS:      NSJingle,
		ActionName: action.String(),
		Initiator:  initiator,
		SID:        sid,
	}
	return &IQ{XMLNS: NSClient, To: to, Type: IQSet, Jingle: j}, j
}

func createColibriIQ(to, iqType, conferenceID string) (*IQ, *ColibriConference) {
	conference := &ColibriConference{XMLNS: NSColibri, ID: conferenceID}
	return &IQ{XMLNS: NSClient, To: to, Type: iqType, Conference: conference}, conference
}

func createServicesIQ(domain string) *IQ {
	return &IQ{
		XMLNS: NSClient,
		To:    domain,
		Type:  IQGet,
		Services: &Services{
			XMLNS:    NSExtDisco,
			Services: []Service{{Host: "turn." + domain}},
		},
	}
}

func createUnknownSessionError(iq *IQ) *IQ {
	return iq.ErrorReply("cancel", StanzaCondition("item-not-found"), JingleCondition("unknown-session"))
}

func createDuplicateSessionError(iq *IQ) *IQ {
	return iq.ErrorReply("cancel", StanzaCondition("service-unavailable"))
}

func createUnsupportedActionError(iq *IQ) *IQ {
	return iq.ErrorReply("cancel", StanzaCondition("feature-not-implemented"), JingleCondition("unsupported-info"))
}

// marshalIQ renders iq for logs.
func marshalIQ(log *logrus.Entry, iq *IQ) string {
	b, err := xml.Marshal(iq)
	if err != nil {
		log.WithError(err).Error("error while converting to XML")
		return emptyStanza
	}
	return string(b)
}
