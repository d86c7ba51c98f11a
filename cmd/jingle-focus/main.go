package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	jingle "github.com/Connect-Club/connectclub-jingle"
	"github.com/Connect-Club/connectclub-jingle/pionrtc"
	"github.com/Connect-Club/connectclub-jingle/wsxmpp"
	"github.com/sirupsen/logrus"
)

type config struct {
	jingle.Config `mapstructure:",squash"`

	WebsocketURL string   `mapstructure:"websocket_url"`
	JID          string   `mapstructure:"jid"`
	Domain       string   `mapstructure:"domain"`
	Participants []string `mapstructure:"participants"`
	LogLevel     string   `mapstructure:"log_level"`
}

func loadConfig(path string) (config, error) {
	v, err := jingle.NewViper(path)
	if err != nil {
		return config{}, err
	}
	v.SetDefault("log_level", "info")
	v.SetDefault("websocket_url", "")
	v.SetDefault("jid", "")
	v.SetDefault("domain", "")
	var cfg config
	if err := v.Unmarshal(&cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func main() {
	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("cannot load config")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	log := logrus.WithField("jid", cfg.JID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conn, err := wsxmpp.Dial(ctx, cfg.WebsocketURL, nil)
	if err != nil {
		log.WithError(err).Fatal("cannot connect")
	}
	defer func() {
		if err := conn.Close(); err != nil {
			log.WithError(err).Warn("cannot close connection")
		}
	}()

	factory, err := pionrtc.NewFactory(log.WithField("component", "pion"))
	if err != nil {
		log.WithError(err).Fatal("cannot create media factory")
	}
	loop := jingle.CreateLoop(log.WithField("component", "loop"))
	manager := jingle.NewManager(cfg.JID, conn, factory, loop, nil, cfg.Config, jingle.Events{
		OnCallTerminated: func(sid, reason, text string) {
			log.WithFields(logrus.Fields{"sid": sid, "reason": reason, "text": text}).Info("call terminated")
		},
		OnRequestError: func(sid string, err *jingle.RequestError) {
			log.WithField("sid", sid).WithError(err).Warn("request failed")
		},
		OnConferenceEnded: func(id string) {
			log.WithField("conference", id).Info("conference ended")
			cancel()
		},
	})
	manager.Start()

	err = loop.Call(func() {
		if cfg.Domain != "" {
			manager.FetchICEServers(cfg.Domain, nil)
		}
		if len(cfg.Participants) == 0 {
			return
		}
		conference := manager.NewConference("")
		if err := conference.CreateConference(cfg.Participants); err != nil {
			log.WithError(err).Error("cannot create conference")
			cancel()
		}
	}, 10*time.Second)
	if err != nil {
		log.WithError(err).Fatal("loop did not respond")
	}

	select {
	case <-ctx.Done():
	case <-conn.Done():
		log.Warn("connection lost")
	}

	if err := loop.Call(func() {
		manager.TerminateAll("success", "")
	}, 10*time.Second); err != nil {
		log.WithError(err).Warn("cannot terminate sessions")
	}
	manager.Stop()
	if err := loop.Stop(10 * time.Second); err != nil {
		log.WithError(err).Warn("cannot stop loop")
	} else {
		log.Info("loop stopped")
	}
}
