// SPDX-License-Identifier: MIT

package telemetry

import (
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func findAttr(attrs []attribute.KeyValue, key string) (attribute.Value, bool) {
	for _, kv := range attrs {
		if string(kv.Key) == key {
			return kv.Value, true
		}
	}
	return attribute.Value{}, false
}

func TestGuideAttributes(t *testing.T) {
	attrs := GuideAttributes(7, 42, 9001, "degraded")
	if len(attrs) != 4 {
		t.Fatalf("got %d attributes, want 4", len(attrs))
	}

	if v, ok := findAttr(attrs, GuideDaysKey); !ok || v.AsInt64() != 7 {
		t.Errorf("%s = %v", GuideDaysKey, v)
	}
	if v, ok := findAttr(attrs, GuideChannelsKey); !ok || v.AsInt64() != 42 {
		t.Errorf("%s = %v", GuideChannelsKey, v)
	}
	if v, ok := findAttr(attrs, GuideProgrammesKey); !ok || v.AsInt64() != 9001 {
		t.Errorf("%s = %v", GuideProgrammesKey, v)
	}
	if v, ok := findAttr(attrs, GuideResultKey); !ok || v.AsString() != "degraded" {
		t.Errorf("%s = %v", GuideResultKey, v)
	}
}

func TestWindowAttributes(t *testing.T) {
	attrs := WindowAttributes(3, 2)
	if v, ok := findAttr(attrs, WindowDayKey); !ok || v.AsInt64() != 3 {
		t.Errorf("%s = %v", WindowDayKey, v)
	}
	if v, ok := findAttr(attrs, WindowIndexKey); !ok || v.AsInt64() != 2 {
		t.Errorf("%s = %v", WindowIndexKey, v)
	}
}

func TestAPIAttributes(t *testing.T) {
	attrs := APIAttributes("power_guide", 429)
	if v, ok := findAttr(attrs, APIOperationKey); !ok || v.AsString() != "power_guide" {
		t.Errorf("%s = %v", APIOperationKey, v)
	}
	if v, ok := findAttr(attrs, APIStatusKey); !ok || v.AsInt64() != 429 {
		t.Errorf("%s = %v", APIStatusKey, v)
	}
}

func TestErrorAttributes(t *testing.T) {
	attrs := ErrorAttributes("throttled")
	if v, ok := findAttr(attrs, ErrorKey); !ok || !v.AsBool() {
		t.Errorf("%s = %v, want true", ErrorKey, v)
	}
	if v, ok := findAttr(attrs, ErrorTypeKey); !ok || v.AsString() != "throttled" {
		t.Errorf("%s = %v", ErrorTypeKey, v)
	}
}
