// Package log wraps logrus with a formatter producing a short timestamp,
// level, app name, and message, one line per entry.
package log

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Init builds a *logrus.Logger at the requested level, tagged with appName
// in every formatted line.
func Init(level, appName string) (*logrus.Logger, error) {
	logger := logrus.New()
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("unsupported log level %q: %w", level, err)
	}
	logger.SetLevel(lvl)
	logger.SetFormatter(&formatter{appName: appName})
	return logger, nil
}

type formatter struct {
	appName string
}

func (f *formatter) Format(entry *logrus.Entry) ([]byte, error) {
	year, month, day := entry.Time.Date()
	hour, minute, second := entry.Time.Clock()
	line := fmt.Sprintf("%d/%02d/%02d %02d:%02d:%02d %s [%s] %s\n",
		year, month, day, hour, minute, second,
		strings.ToUpper(entry.Level.String()), f.appName, entry.Message)
	return []byte(line), nil
}
