package faults

import (
	"errors"
	"time"
)

// Category groups faults for reporting and recovery.
type Category string

// Fault categories.
const (
	CategoryAPI           Category = "api_error"
	CategoryValidation    Category = "validation_error"
	CategoryIntegration   Category = "integration_error"
	CategorySystem        Category = "system_error"
	CategoryResource      Category = "resource_error"
	CategoryConfiguration Category = "configuration_error"
)

// Severity orders faults from LOW to CRITICAL.
type Severity string

// Severities.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	default:
		return -1
	}
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.rank() >= other.rank()
}

// Record describes one handled fault. It is not modified after Handle returns it.
type Record struct {
	Timestamp       time.Time      `json:"timestamp"`
	ErrorType       string         `json:"error_type"`
	Category        Category       `json:"category"`
	Severity        Severity       `json:"severity"`
	Message         string         `json:"message"`
	Traceback       []string       `json:"traceback,omitempty"`
	Context         map[string]any `json:"context,omitempty"`
	PatternDetected bool           `json:"pattern_detected"`
	RecoveryAction  string         `json:"recovery_action,omitempty"`
}

// Categorize maps an error to its category. First match wins.
func Categorize(err error) Category {
	switch KindOf(err) {
	case KindAPIClient:
		return CategoryAPI
	case KindInvalidArgument:
		return CategoryValidation
	case KindConnection, KindTimeout:
		return CategoryIntegration
	case KindOutOfMemory:
		return CategoryResource
	case KindMissingKey:
		return CategoryConfiguration
	default:
		return CategorySystem
	}
}

// recoveryFor returns the advisory recovery action for a category, if any.
func recoveryFor(c Category) string {
	switch c {
	case CategoryAPI:
		return "Implemented retry with exponential backoff"
	case CategoryIntegration:
		return "Attempted service reconnection"
	case CategoryResource:
		return "Performed resource cleanup"
	default:
		return ""
	}
}

// chain lists the messages of err's wrap chain, outermost first.
func chain(err error) []string {
	var out []string
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if len(out) > 0 && out[len(out)-1] == msg {
			continue
		}
		out = append(out, msg)
	}
	return out
}
