package cuems

import "github.com/charmbracelet/log"

// Notifier shows operator-facing notifications
type Notifier interface {
	Success(message string)
	Error(message string)
}

// LogNotifier reports notifications through the logger
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) logger() *log.Logger {
	if n.Logger != nil {
		return n.Logger
	}
	return log.Default()
}

// Success implements Notifier
func (n LogNotifier) Success(message string) { n.logger().Info(message) }

// Error implements Notifier
func (n LogNotifier) Error(message string) { n.logger().Error(message) }
