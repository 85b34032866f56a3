package notify

import (
	"fmt"
	"strings"

	"github.com/Buchi-dev/puretrack/internal/models"
)

// guidance is the per-parameter reference table (standards, health impact,
// recommended actions) the email body is parameterized with.
type guidance struct {
	standard string
	impact   string
	action   string
}

var guidanceTable = map[models.Parameter]guidance{
	models.ParamPH: {
		standard: "WHO drinking-water guideline: pH 6.5-8.5",
		impact:   "Values outside this range can irritate skin/eyes and corrode distribution piping.",
		action:   "Inspect dosing equipment and resample within the hour.",
	},
	models.ParamTDS: {
		standard: "WHO acceptable range: < 600 ppm (palatable), <= 1000 ppm (acceptable)",
		impact:   "Elevated TDS often indicates mineral or contaminant intrusion affecting taste and potability.",
		action:   "Check source intake and filtration stage for the reporting device.",
	},
	models.ParamTurbidity: {
		standard: "WHO guideline: < 5 NTU, ideally < 1 NTU for disinfection efficacy",
		impact:   "High turbidity can shield pathogens from disinfection and indicates sediment or organic load.",
		action:   "Verify filtration/clarification stage and increase sampling frequency.",
	},
}

func renderAlertEmail(a *models.Alert, d *models.Device) (subject, body string) {
	g := guidanceTable[a.Parameter]
	location := "unknown location"
	if d != nil && d.Location != nil {
		parts := []string{}
		if d.Location.Building != "" {
			parts = append(parts, d.Location.Building)
		}
		if d.Location.Floor != "" {
			parts = append(parts, d.Location.Floor)
		}
		if len(parts) > 0 {
			location = strings.Join(parts, ", ")
		}
	}

	subject = fmt.Sprintf("[%s] %s alert: %s on %s", a.Severity, a.Parameter, a.DeviceName, location)

	var b strings.Builder
	fmt.Fprintf(&b, "<h2>%s severity alert</h2>", a.Severity)
	fmt.Fprintf(&b, "<p>Device <strong>%s</strong> (%s) reported %s = %.3f, crossing threshold %.3f.</p>",
		a.DeviceName, a.DeviceID, a.Parameter, a.CurrentValue, a.Threshold)
	fmt.Fprintf(&b, "<p>Location: %s</p>", location)
	fmt.Fprintf(&b, "<table border=\"1\" cellpadding=\"6\"><tr><th>Standard</th><th>Health impact</th><th>Recommended action</th></tr>")
	fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%s</td></tr></table>", g.standard, g.impact, g.action)

	return subject, b.String()
}
