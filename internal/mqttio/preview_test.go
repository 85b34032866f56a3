package mqttio

import (
	"strings"
	"testing"
)

func TestPreviewPayloadShort(t *testing.T) {
	if got := previewPayload([]byte("hello")); got != "hello" {
		t.Fatalf("expected short payload unchanged, got %q", got)
	}
}

func TestPreviewPayloadTruncatesAt500(t *testing.T) {
	long := strings.Repeat("x", 1000)
	got := previewPayload([]byte(long))
	if !strings.HasSuffix(got, "...(truncated)") {
		t.Fatalf("expected truncated payload to carry the suffix marker")
	}
	if len(got) > 500+len("...(truncated)") {
		t.Fatalf("truncated preview exceeds the 500-byte bound plus marker, got %d bytes", len(got))
	}
}
