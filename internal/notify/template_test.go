package notify

import (
	"strings"
	"testing"

	"github.com/Buchi-dev/puretrack/internal/models"
)

func TestRenderAlertEmailIncludesKeyFields(t *testing.T) {
	a := &models.Alert{
		DeviceID: "tank-01", DeviceName: "Tank One", Parameter: models.ParamPH,
		Severity: models.SeverityCritical, CurrentValue: 5.2, Threshold: 5.5,
	}
	d := &models.Device{DeviceID: "tank-01", Location: &models.Location{Building: "A", Floor: "2"}}

	subject, body := renderAlertEmail(a, d)

	if !strings.Contains(subject, "Critical") || !strings.Contains(subject, "Tank One") {
		t.Fatalf("expected subject to carry severity and device name, got %q", subject)
	}
	if !strings.Contains(body, "5.200") || !strings.Contains(body, "5.500") {
		t.Fatalf("expected body to carry current value and threshold, got %q", body)
	}
	if !strings.Contains(body, "A, 2") {
		t.Fatalf("expected body to carry the device location, got %q", body)
	}
}

func TestRenderAlertEmailHandlesMissingLocation(t *testing.T) {
	a := &models.Alert{DeviceID: "tank-01", DeviceName: "Tank One", Parameter: models.ParamTDS, Severity: models.SeverityWarning}
	subject, body := renderAlertEmail(a, nil)

	if subject == "" || body == "" {
		t.Fatalf("expected non-empty subject/body even without a device record")
	}
	if !strings.Contains(body, "unknown location") {
		t.Fatalf("expected a fallback location string, got %q", body)
	}
}
