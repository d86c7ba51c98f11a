package jingle

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/Connect-Club/connectclub-jingle/internal/volatile"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Manager owns the sessions of one local identity and dispatches incoming
// negotiation requests to them. Apart from Start, Stop and IsActive, its
// methods must be called on the dispatcher.
type Manager struct {
	log      *logrus.Entry
	localJID string
	env      *environment
	registry *Registry
	requests *requestTracker

	globalLock sync.Mutex
	isActive   *volatile.Value[bool]
}

func NewManager(
	localJID string,
	messenger Messenger,
	factory MediaTransportFactory,
	dispatcher Dispatcher,
	registry *Registry,
	cfg Config,
	events Events,
) *Manager {
	log := logrus.WithField("jid", localJID)
	if registry == nil {
		registry = NewRegistry()
	}
	return &Manager{
		log:      log,
		localJID: localJID,
		env: &environment{
			cfg:        cfg,
			dispatcher: dispatcher,
			messenger:  messenger,
			factory:    factory,
			events:     &eventSink{log: log, dispatcher: dispatcher, events: events},
		},
		registry: registry,
		requests: newRequestTracker(log, messenger, dispatcher, cfg.RequestTimeout),
		isActive: volatile.NewValue(false),
	}
}

func (m *Manager) IsActive() bool {
	return m.isActive.Load()
}

func (m *Manager) Registry() *Registry {
	return m.registry
}

// Start registers the handler for incoming negotiation requests.
func (m *Manager) Start() {
	m.log.Info("🚀")

	m.globalLock.Lock()
	defer m.globalLock.Unlock()

	if m.isActive.Load() {
		return
	}
	m.env.messenger.RegisterHandler(isJingleSet, func(iq *IQ) {
		m.env.dispatcher.Post(func() {
			m.handleJingle(iq)
		})
	})
	m.isActive.Store(true)
}

// Stop makes the manager ignore further incoming requests. Sessions are left
// untouched; use TerminateAll to end them.
func (m *Manager) Stop() {
	m.globalLock.Lock()
	defer m.globalLock.Unlock()

	if !m.isActive.Load() {
		return
	}
	m.isActive.Store(false)
	m.env.dispatcher.Post(m.requests.close)
}

func isJingleSet(iq *IQ) bool {
	return iq.Type == IQSet && iq.Jingle != nil
}

func (m *Manager) reply(iq *IQ) {
	if err := m.env.messenger.Send(iq); err != nil {
		m.log.WithError(err).Warn("cannot send reply")
	}
}

func (m *Manager) handleJingle(iq *IQ) {
	if !m.isActive.Load() {
		return
	}
	j := iq.Jingle
	sid := j.SID
	action := j.Action()
	log := m.log.WithFields(logrus.Fields{"sid": sid, "action": j.ActionName, "from": iq.From})
	log.Info("on jingle")

	var current Negotiator
	if action == ActionSessionInitiate {
		if _, exists := m.registry.Get(sid); exists {
			log.Warn("duplicate session id")
			m.reply(createDuplicateSessionError(iq))
			return
		}
	} else {
		var err error
		if current, err = m.lookup(iq); err != nil {
			log.WithError(err).Warn("cannot find session")
			m.reply(createUnknownSessionError(iq))
			return
		}
	}
	if action == ActionUnknown {
		log.Warn("jingle action not implemented")
		m.reply(createUnsupportedActionError(iq))
		return
	}
	m.reply(iq.Result())

	var err error
	switch action {
	case ActionSessionInitiate:
		err = m.incomingSession(iq)
	case ActionSessionAccept:
		err = current.HandleAccept(j)
	case ActionSessionTerminate:
		log.Info("terminating...")
		current.Terminate("")
		m.registry.Remove(sid)
		reason, text := "", ""
		if j.Reason != nil {
			reason, text = j.Reason.Condition.XMLName.Local, j.Reason.Text
		}
		m.env.events.callOnCallTerminated(sid, reason, text)
	case ActionTransportInfo:
		err = current.AddIceCandidate(j.Contents)
	case ActionSessionInfo:
		m.sessionInfo(sid, j)
	case ActionAddSource:
		err = current.AddSource(j.Contents)
	case ActionRemoveSource:
		err = current.RemoveSource(j.Contents)
	case ActionUnknown:
	}
	if err != nil {
		log.WithError(err).Warn("cannot process jingle request")
	}
}

// lookup finds the session addressed by iq. The sender must match the
// session peer on the bare JID.
func (m *Manager) lookup(iq *IQ) (Negotiator, error) {
	current, ok := m.registry.Get(iq.Jingle.SID)
	if !ok {
		return nil, fmt.Errorf("%w, sid = %v", ErrUnknownSession, iq.Jingle.SID)
	}
	if bareJID(iq.From) != bareJID(current.Peer()) {
		return nil, fmt.Errorf("%w, from = %v, peer = %v", ErrPeerMismatch, iq.From, current.Peer())
	}
	return current, nil
}

func (m *Manager) incomingSession(iq *IQ) error {
	local := iq.To
	if local == "" {
		local = m.localJID
	}
	session := newSession(m.env, local, iq.Jingle.SID)
	if err := session.Initiate(iq.From, false); err != nil {
		return err
	}
	if err := session.SetRemoteDescription(iq.Jingle, SDPOffer); err != nil {
		session.Terminate("")
		return err
	}
	if err := m.registry.Add(session); err != nil {
		session.Terminate("")
		return err
	}
	m.env.events.callOnIncomingCall(session)
	return nil
}

func (m *Manager) sessionInfo(sid string, j *Jingle) {
	switch {
	case j.Ringing != nil && j.Ringing.XMLNS == NSRTPInfo:
		m.env.events.callOnRinging(sid)
	case j.Mute != nil && j.Mute.XMLNS == NSRTPInfo:
		m.env.events.callOnMute(sid, j.Mute.Name, true)
	case j.Unmute != nil && j.Unmute.XMLNS == NSRTPInfo:
		m.env.events.callOnMute(sid, j.Unmute.Name, false)
	}
}

func newSID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// Initiate starts an outgoing session to peer and sends the offer.
func (m *Manager) Initiate(peer string) (*Session, error) {
	m.log.WithField("peer", peer).Info("🚀")
	session := newSession(m.env, m.localJID, newSID())
	if err := session.Initiate(peer, true); err != nil {
		return nil, err
	}
	if err := m.registry.Add(session); err != nil {
		session.Terminate("")
		return nil, err
	}
	if err := session.SendOffer(); err != nil {
		return nil, err
	}
	return session, nil
}

// Terminate ends the session sid. Without a reason, sessions that never
// became active are cancelled.
func (m *Manager) Terminate(sid, reason, text string) error {
	n, ok := m.registry.Remove(sid)
	if !ok {
		return fmt.Errorf("%w, sid = %v", ErrUnknownSession, sid)
	}
	m.end(n, reason, text)
	return nil
}

func (m *Manager) TerminateAll(reason, text string) {
	m.registry.Each(func(n Negotiator) {
		m.registry.Remove(n.SID())
		m.end(n, reason, text)
	})
}

func (m *Manager) end(n Negotiator, reason, text string) {
	if n.State() == StateEnded {
		return
	}
	if reason == "" && n.State() != StateActive {
		reason = "cancel"
	}
	n.SendTerminate(reason, text)
	n.Terminate(reason)
}

// TerminateByPeer drops the session of a peer that went away without
// terminating it.
func (m *Manager) TerminateByPeer(peer string) bool {
	n, ok := m.registry.GetByPeer(peer)
	if !ok {
		return false
	}
	n.Terminate("gone")
	m.registry.Remove(n.SID())
	m.log.WithField("peer", peer).Info("peer went away silently")
	m.env.events.callOnCallTerminated(n.SID(), "gone", "")
	return true
}

// FetchICEServers asks domain for STUN and TURN services. The result replaces
// the ICE servers handed to transports created afterwards.
func (m *Manager) FetchICEServers(domain string, done func(error)) {
	m.requests.send(createServicesIQ(domain),
		func(res *IQ) {
			if res.Services == nil {
				m.finishFetch(done, errors.New("no services in response"))
				return
			}
			m.env.cfg.ICEServers = ICEServersFromServices(res.Services.Services)
			m.log.WithField("count", len(m.env.cfg.ICEServers)).Info("ice servers updated")
			m.finishFetch(done, nil)
		},
		func(err error) {
			m.log.WithError(err).Warn("getting turn credentials failed")
			m.finishFetch(done, err)
		},
	)
}

func (m *Manager) finishFetch(done func(error), err error) {
	if done != nil {
		done(err)
	}
}

func (m *Manager) ICEServers() []ICEServer {
	return m.env.cfg.ICEServers
}

// ICEServersFromServices maps XEP-0215 services to ICE servers. Unknown
// service types are skipped.
func ICEServersFromServices(services []Service) []ICEServer {
	var servers []ICEServer
	for _, service := range services {
		switch service.Type {
		case "stun":
			url := "stun:" + service.Host
			if service.Port != "" {
				url += ":" + service.Port
			}
			servers = append(servers, ICEServer{URLs: []string{url}})
		case "turn":
			url := "turn:" + service.Host
			if service.Port != "" && service.Port != "3478" {
				url += ":" + service.Port
			}
			if service.Transport != "" && service.Transport != "udp" {
				url += "?transport=" + service.Transport
			}
			servers = append(servers, ICEServer{
				URLs:       []string{url},
				Username:   service.Username,
				Credential: service.Password,
			})
		}
	}
	return servers
}
