// Package redact strips API keys from strings before they reach the logs.
package redact

import "regexp"

// keyPattern matches key query parameter values in URLs embedded in messages.
var keyPattern = regexp.MustCompile(`(?i)([?&]key=)[^&\s"]+`)

// bearerPattern matches bearer credentials echoed into messages.
var bearerPattern = regexp.MustCompile(`(?i)(bearer\s+)\S+`)

// String redacts API keys from s.
func String(s string) string {
	s = keyPattern.ReplaceAllString(s, "${1}[REDACTED]")
	return bearerPattern.ReplaceAllString(s, "${1}[REDACTED]")
}

// Error redacts API keys from an error message. A nil error yields "".
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
