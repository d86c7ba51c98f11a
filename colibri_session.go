package jingle

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// participantSession is the negotiation with one conference participant. The
// media of the participant terminates on the bridge, so most operations are
// delegated to the Conference.
type participantSession struct {
	log        *logrus.Entry
	conference *Conference
	sid        string
	peer       string
	state      State
}

func newParticipantSession(c *Conference, peer, sid string) *participantSession {
	return &participantSession{
		log:        c.log.WithFields(logrus.Fields{"sid": sid, "peer": peer}),
		conference: c,
		sid:        sid,
		peer:       peer,
		state:      StatePending,
	}
}

func (s *participantSession) SID() string {
	return s.sid
}

func (s *participantSession) Peer() string {
	return s.peer
}

func (s *participantSession) State() State {
	return s.state
}

func (s *participantSession) SetRemoteDescription(j *Jingle, kind SDPType) error {
	if s.state == StateEnded {
		return fmt.Errorf("%w, sid = %v", ErrSessionEnded, s.sid)
	}
	s.log.WithField("kind", kind).Info("🚀")
	return s.conference.setRemoteDescription(s, j)
}

func (s *participantSession) HandleAccept(j *Jingle) error {
	if err := s.SetRemoteDescription(j, SDPAnswer); err != nil {
		return err
	}
	s.state = StateActive
	return nil
}

func (s *participantSession) AddIceCandidate(contents []Content) error {
	if s.state == StateEnded {
		return fmt.Errorf("%w, sid = %v", ErrSessionEnded, s.sid)
	}
	return s.conference.relayCandidates(s, contents)
}

// AddSource is not expected from participants: their sources reach the
// conference with their answer.
func (s *participantSession) AddSource([]Content) error {
	s.log.Warn("ignoring addsource from participant")
	return nil
}

func (s *participantSession) RemoveSource([]Content) error {
	s.log.Warn("ignoring removesource from participant")
	return nil
}

func (s *participantSession) Terminate(reason string) bool {
	if s.state == StateEnded {
		return false
	}
	s.log.WithField("reason", reason).Info("remote session terminated")
	s.state = StateEnded
	s.conference.removeParticipant(s.peer)
	return true
}

func (s *participantSession) SendTerminate(reason, text string) {
	if s.state == StateEnded {
		return
	}
	iq, j := createJingleIQ(s.peer, ActionSessionTerminate, s.conference.local, s.sid)
	j.Reason = NewReason(reason, text)
	s.conference.requests.send(iq,
		func(*IQ) {
			s.conference.env.events.callOnAck(s.sid, "terminate")
		},
		func(err error) {
			s.conference.env.events.callOnRequestError(s.sid, &RequestError{Source: "terminate", Err: err})
		},
	)
}
