package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// StatusSource reports the three process-level signals the /health endpoint
// surfaces, grounded on the teacher's own /health handler.
type StatusSource interface {
	IoTDBEnabled() bool
	MQTTConnected() bool
	ConnectedClients() int
}

func HealthHandler(src StatusSource) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":         "ok",
			"service":        "puretrack",
			"iotdbEnabled":   src.IoTDBEnabled(),
			"mqttConnected":  src.MQTTConnected(),
			"wsClients":      src.ConnectedClients(),
			"timestamp":      time.Now().UTC().Unix(),
		})
	}
}
