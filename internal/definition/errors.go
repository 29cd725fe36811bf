package definition

import "fmt"

// ConfigurationError reports a malformed document definition, a missing
// template file, an invalid language tag or an invalid download filename.
// It is fatal to the definition it concerns only.
type ConfigurationError struct {
	Subject string
	Msg     string
	Err     error
}

func (e *ConfigurationError) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg = msg + ": " + e.Err.Error()
		}
	}
	if e.Subject == "" {
		return "configuration: " + msg
	}
	return fmt.Sprintf("configuration: %s: %s", e.Subject, msg)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Errorf builds a ConfigurationError about subject.
func Errorf(subject, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Subject: subject, Msg: fmt.Sprintf(format, args...)}
}
