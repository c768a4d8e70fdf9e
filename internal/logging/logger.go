package logging

import (
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus with the fields every service emits.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a JSON logger tagged with the service name. The level comes
// from LOG_LEVEL (debug/info/warn/error), defaulting to info.
func New(serviceName string) *Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})
	log.SetOutput(os.Stdout)

	switch os.Getenv("LOG_LEVEL") {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
	}

	return &Logger{Logger: log, service: serviceName}
}

// WithService returns an entry carrying the service field.
func (l *Logger) WithService() *logrus.Entry {
	return l.WithField("service", l.service)
}

// WithTransactionID tags an entry with the transaction being worked on.
func (l *Logger) WithTransactionID(id int64) *logrus.Entry {
	return l.WithService().WithField("transaction_id", id)
}

// WithUserID tags an entry with the acting user.
func (l *Logger) WithUserID(id int64) *logrus.Entry {
	return l.WithService().WithField("user_id", id)
}
