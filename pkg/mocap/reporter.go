package mocap

import (
	"fmt"
	"log/slog"
)

// Reporter is the status channel of a capture session. Hosts surface these
// messages to the operator.
type Reporter interface {
	ErrorPrintf(format string, args ...any)
	WarnPrintf(format string, args ...any)
	InfoPrintf(format string, args ...any)
	DebugPrintf(format string, args ...any)
}

type defaultReporter struct{}

// DefaultReporter returns a Reporter writing to the default slog logger.
func DefaultReporter() Reporter {
	return defaultReporter{}
}

func (defaultReporter) ErrorPrintf(format string, args ...any) {
	slog.Error("mocap: " + fmt.Sprintf(format, args...))
}

func (defaultReporter) WarnPrintf(format string, args ...any) {
	slog.Warn("mocap: " + fmt.Sprintf(format, args...))
}

func (defaultReporter) InfoPrintf(format string, args ...any) {
	slog.Info("mocap: " + fmt.Sprintf(format, args...))
}

func (defaultReporter) DebugPrintf(format string, args ...any) {
	slog.Debug("mocap: " + fmt.Sprintf(format, args...))
}

// SlogReporter creates a Reporter from a slog.Logger.
func SlogReporter(l *slog.Logger) Reporter {
	return &slogReporter{l}
}

type slogReporter struct {
	*slog.Logger
}

func (s *slogReporter) ErrorPrintf(format string, args ...any) {
	s.Logger.Error("mocap: " + fmt.Sprintf(format, args...))
}

func (s *slogReporter) WarnPrintf(format string, args ...any) {
	s.Logger.Warn("mocap: " + fmt.Sprintf(format, args...))
}

func (s *slogReporter) InfoPrintf(format string, args ...any) {
	s.Logger.Info("mocap: " + fmt.Sprintf(format, args...))
}

func (s *slogReporter) DebugPrintf(format string, args ...any) {
	s.Logger.Debug("mocap: " + fmt.Sprintf(format, args...))
}
