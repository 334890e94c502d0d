// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys shared across pipeline spans.
const (
	// Guide acquisition attributes
	GuideDaysKey       = "guide.days"
	GuideChannelsKey   = "guide.channels"
	GuideProgrammesKey = "guide.programmes"
	GuideResultKey     = "guide.result"

	// Schedule window attributes
	WindowDayKey   = "window.day"
	WindowIndexKey = "window.index"

	// Detail enrichment attributes
	DetailBatchSizeKey = "details.batch_size"
	DetailCountKey     = "details.count"

	// Provider API attributes
	APIOperationKey = "zapi.operation"
	APIStatusKey    = "zapi.status"

	// Error attributes
	ErrorKey     = "error"
	ErrorTypeKey = "error.type"
)

// GuideAttributes describes one full acquisition run.
func GuideAttributes(days, channels, programmes int, result string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(GuideDaysKey, days),
		attribute.Int(GuideChannelsKey, channels),
		attribute.Int(GuideProgrammesKey, programmes),
		attribute.String(GuideResultKey, result),
	}
}

// WindowAttributes describes one schedule window fetch.
func WindowAttributes(day, index int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(WindowDayKey, day),
		attribute.Int(WindowIndexKey, index),
	}
}

// DetailAttributes describes one detail enrichment pass.
func DetailAttributes(batchSize, count int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(DetailBatchSizeKey, batchSize),
		attribute.Int(DetailCountKey, count),
	}
}

// APIAttributes describes one provider API call.
func APIAttributes(operation string, status int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(APIOperationKey, operation),
		attribute.Int(APIStatusKey, status),
	}
}

// ErrorAttributes marks a span as failed with a coarse error class.
func ErrorAttributes(errorType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Bool(ErrorKey, true),
		attribute.String(ErrorTypeKey, errorType),
	}
}
