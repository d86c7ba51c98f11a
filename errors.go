package jingle

import (
	"errors"
)

var ErrAlreadyInitiated = errors.New("session already initiated")
var ErrNotInitiated = errors.New("session not initiated")
var ErrNotProvisional = errors.New("local description is not a provisional answer")
var ErrSessionEnded = errors.New("session ended")
var ErrDuplicateSession = errors.New("duplicate session id")
var ErrUnknownSession = errors.New("unknown session")
var ErrPeerMismatch = errors.New("peer does not match session")
var ErrRequestTimeout = errors.New("request timed out")
var ErrMalformedCandidate = errors.New("malformed candidate")
var ErrNoRemoteDescription = errors.New("no remote description")
var ErrConferenceExists = errors.New("conference already created")
var ErrConferenceNotReady = errors.New("conference not ready")
var ErrUnknownParticipant = errors.New("unknown participant")
var ErrLoopStopped = errors.New("loop stopped")
