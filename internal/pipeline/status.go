package pipeline

import "fmt"

// StatusType classifies the outcome of an evaluation.
type StatusType int

const (
	StatusSuccess StatusType = iota
	StatusWarning
	StatusError
)

func (t StatusType) String() string {
	switch t {
	case StatusSuccess:
		return "success"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	}
	return fmt.Sprintf("StatusType(%d)", int(t))
}

// Status is a status type with an optional human readable text. The zero
// value is a plain success.
type Status struct {
	Type StatusType
	Text string
}

// Success returns a success status with an informational text.
func Success(text string) Status { return Status{Type: StatusSuccess, Text: text} }

// Warning returns a warning status.
func Warning(text string) Status { return Status{Type: StatusWarning, Text: text} }

// Error returns an error status.
func Error(text string) Status { return Status{Type: StatusError, Text: text} }

// IsError reports whether the status is an error.
func (s Status) IsError() bool { return s.Type == StatusError }

func (s Status) String() string {
	if s.Text == "" {
		return s.Type.String()
	}
	return fmt.Sprintf("%s: %s", s.Type, s.Text)
}

// worse returns the more severe of a and b, preferring a on a tie.
func worse(a, b Status) Status {
	if b.Type > a.Type {
		return b
	}
	return a
}
