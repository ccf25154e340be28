// Package recovery implements the multi-tier failure handling the
// diary pipeline runs every protected call through: circuit breaking,
// retry with backoff, graceful degradation, cached responses, alerting,
// and escalation. A closed error taxonomy selects which strategies are
// tried and in what order.
package recovery

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Category classifies a failure for recovery planning. The set is
// closed: anything that does not fit maps to CategoryUnknown.
type Category string

const (
	CategoryLLMAPIFailure       Category = "llm_api_failure"
	CategorySubAgentFailure     Category = "sub_agent_failure"
	CategoryConditionEvaluation Category = "condition_evaluation_error"
	CategoryDataValidation      Category = "data_validation_error"
	CategoryDatabase            Category = "database_error"
	CategoryConfiguration       Category = "configuration_error"
	CategoryNetwork             Category = "network_error"
	CategoryUnknown             Category = "unknown_error"
)

// AllCategories returns the taxonomy in a stable order.
func AllCategories() []Category {
	return []Category{
		CategoryLLMAPIFailure,
		CategorySubAgentFailure,
		CategoryConditionEvaluation,
		CategoryDataValidation,
		CategoryDatabase,
		CategoryConfiguration,
		CategoryNetwork,
		CategoryUnknown,
	}
}

// Valid reports whether c is in the taxonomy.
func (c Category) Valid() bool {
	switch c {
	case CategoryLLMAPIFailure, CategorySubAgentFailure,
		CategoryConditionEvaluation, CategoryDataValidation,
		CategoryDatabase, CategoryConfiguration, CategoryNetwork,
		CategoryUnknown:
		return true
	}
	return false
}

// Classify maps an error onto the taxonomy. Callers that already know
// the category (an agent reporting its own failure) pass it directly;
// Classify is for errors that bubble up untagged.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return CategoryNetwork
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return CategoryNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "provider"):
		return CategoryLLMAPIFailure
	case strings.Contains(msg, "database") || strings.Contains(msg, "sql"):
		return CategoryDatabase
	case strings.Contains(msg, "config"):
		return CategoryConfiguration
	case strings.Contains(msg, "connection") || strings.Contains(msg, "timeout"):
		return CategoryNetwork
	}
	return CategoryUnknown
}
