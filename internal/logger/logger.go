// README: Logger interface so modules never depend on a concrete logging library.
package logger

// Logger is the minimal structured logging surface used across the service.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Warnw(msg string, fields map[string]any)
	Infow(msg string, fields map[string]any)
}

// Nop discards everything; handy in tests.
type Nop struct{}

func (Nop) Debugf(string, ...any)          {}
func (Nop) Infof(string, ...any)           {}
func (Nop) Warnf(string, ...any)           {}
func (Nop) Errorf(string, ...any)          {}
func (Nop) Warnw(string, map[string]any)   {}
func (Nop) Infow(string, map[string]any)   {}
