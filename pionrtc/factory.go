package pionrtc

import (
	"fmt"

	jingle "github.com/Connect-Club/connectclub-jingle"
	"github.com/pion/webrtc/v4"
	"github.com/sirupsen/logrus"
)

// Factory creates pion peer connections with one audio and one video
// transceiver each.
type Factory struct {
	API *webrtc.API
	log *logrus.Entry
}

func NewFactory(log *logrus.Entry) (*Factory, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("cannot register codecs: %w", err)
	}
	settingEngine := webrtc.SettingEngine{LoggerFactory: LoggerFactory{Log: log}}
	return &Factory{
		API: webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithSettingEngine(settingEngine)),
		log: log,
	}, nil
}

func configuration(cfg jingle.TransportConfig) webrtc.Configuration {
	var servers []webrtc.ICEServer
	for _, server := range cfg.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       server.URLs,
			Username:   server.Username,
			Credential: server.Credential,
		})
	}
	return webrtc.Configuration{ICEServers: servers}
}

func (f *Factory) NewMediaTransport(cfg jingle.TransportConfig) (jingle.MediaTransport, error) {
	pc, err := f.API.NewPeerConnection(configuration(cfg))
	if err != nil {
		return nil, fmt.Errorf("cannot create peer connection: %w", err)
	}
	for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
		_, err := pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionSendrecv})
		if err != nil {
			_ = pc.Close()
			return nil, fmt.Errorf("cannot add %v transceiver: %w", kind, err)
		}
	}
	return newTransport(f.log, pc), nil
}
