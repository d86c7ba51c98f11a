package pionrtc

import (
	"github.com/pion/logging"
	"github.com/sirupsen/logrus"
)

// LoggerFactory routes pion's leveled logs into logrus.
type LoggerFactory struct {
	Log *logrus.Entry
}

func (f LoggerFactory) NewLogger(scope string) logging.LeveledLogger {
	log := f.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &leveledLogger{log: log.WithField("pion", scope)}
}

type leveledLogger struct {
	log *logrus.Entry
}

func (l *leveledLogger) Trace(msg string)                          { l.log.Trace(msg) }
func (l *leveledLogger) Tracef(format string, args ...interface{}) { l.log.Tracef(format, args...) }
func (l *leveledLogger) Debug(msg string)                          { l.log.Debug(msg) }
func (l *leveledLogger) Debugf(format string, args ...interface{}) { l.log.Debugf(format, args...) }
func (l *leveledLogger) Info(msg string)                           { l.log.Info(msg) }
func (l *leveledLogger) Infof(format string, args ...interface{})  { l.log.Infof(format, args...) }
func (l *leveledLogger) Warn(msg string)                           { l.log.Warn(msg) }
func (l *leveledLogger) Warnf(format string, args ...interface{})  { l.log.Warnf(format, args...) }
func (l *leveledLogger) Error(msg string)                          { l.log.Error(msg) }
func (l *leveledLogger) Errorf(format string, args ...interface{}) { l.log.Errorf(format, args...) }
