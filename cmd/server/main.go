package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/Buchi-dev/puretrack/internal/alerts"
	"github.com/Buchi-dev/puretrack/internal/apperr"
	"github.com/Buchi-dev/puretrack/internal/auth"
	"github.com/Buchi-dev/puretrack/internal/broadcast"
	"github.com/Buchi-dev/puretrack/internal/config"
	"github.com/Buchi-dev/puretrack/internal/httpapi"
	"github.com/Buchi-dev/puretrack/internal/ingest"
	"github.com/Buchi-dev/puretrack/internal/mqttio"
	"github.com/Buchi-dev/puretrack/internal/notify"
	"github.com/Buchi-dev/puretrack/internal/presence"
	"github.com/Buchi-dev/puretrack/internal/shard"
	"github.com/Buchi-dev/puretrack/internal/store"
	"github.com/Buchi-dev/puretrack/internal/ws"
)

// Startup exit codes. A Fatal apperr.Error at any of these sites takes the
// process down immediately rather than limping on in a half-wired "dummy
// mode" — the dispatch core would otherwise silently drop every reading or
// command it can't actually deliver.
const (
	exitConfig     = 1
	exitBrokerAuth = 2
	exitStoreDown  = 3
)

// exitFatal logs a Fatal apperr.Error and terminates the process with the
// given code. It never returns.
func exitFatal(code int, err *apperr.Error) {
	log.Printf("fatal: %v", err)
	os.Exit(code)
}

// isBrokerAuthFailure reports whether an MQTT connect error is a credential
// rejection rather than a network/timeout failure. paho.mqtt.golang surfaces
// CONNACK rejection reasons as plain error strings, not typed sentinels, so
// this matches on the reason text the broker actually returns.
func isBrokerAuthFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "bad user name or password") ||
		strings.Contains(msg, "unauthorized")
}

// localIP returns the first non-loopback IPv4 address for display purposes.
func localIP() string {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "localhost"
	}
	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}
			if ip == nil || ip.IsLoopback() {
				continue
			}
			if ip.To4() != nil {
				return ip.String()
			}
		}
	}
	return "localhost"
}

// statusSource adapts the wired components to httpapi.StatusSource.
type statusSource struct {
	ts   *store.TimeSeries
	mqtt *mqttio.Client
	hub  *ws.Hub
}

func (s statusSource) IoTDBEnabled() bool    { return s.ts.IsEnabled() }
func (s statusSource) MQTTConnected() bool   { return s.mqtt.IsConnected() }
func (s statusSource) ConnectedClients() int { return s.hub.ConnectedClients() }

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("=======================================")
	log.Println(" puretrack ingestion & dispatch core")
	log.Println("=======================================")

	cfg := config.Load()
	log.Printf("server port=%s iotdb=%s:%s mqtt=%s", cfg.Server.Port, cfg.IoTDB.Host, cfg.IoTDB.Port, cfg.MQTT.Broker)

	if cfg.Server.Env == "production" && cfg.JWT.Secret == "puretrack-dev-secret-change-in-production" {
		exitFatal(exitConfig, apperr.New(apperr.Fatal, "config.Load", fmt.Errorf("JWT_SECRET left at its development default in production")))
	}

	// ===== Store =====
	ts := store.NewTimeSeries(cfg.IoTDB)
	if err := ts.Connect(); err != nil {
		exitFatal(exitStoreDown, apperr.New(apperr.Fatal, "TimeSeries.Connect", err))
	}
	log.Println("iotdb: connected")
	mem := store.NewMemStore()
	st := store.NewComposite(mem, ts)

	// ===== MQTT transport =====
	mqttClient := mqttio.NewClient(cfg.MQTT, cfg.Tuning.ReconnectBase, cfg.Tuning.ReconnectCap)
	if err := mqttClient.Connect(); err != nil {
		if isBrokerAuthFailure(err) {
			exitFatal(exitBrokerAuth, apperr.New(apperr.Fatal, "Client.Connect", err))
		}
		exitFatal(exitConfig, apperr.New(apperr.Fatal, "Client.Connect", err))
	}
	log.Println("mqtt: connected")
	dispatcher := mqttio.NewDispatcher(mqttClient, cfg.MQTT.QoS)

	// ===== Auth =====
	issuer := auth.NewIssuer(cfg.JWT.Secret, cfg.JWT.ExpireTime)

	// ===== WebSocket Hub (C7) =====
	hub := ws.NewHub(st, issuer, cfg.Tuning.SendBufferHighWater, cfg.Tuning.WSPingInterval, cfg.Tuning.WSPingTimeout)

	// ===== Notification Queue (C6) =====
	notifyQueue := notify.New(cfg.SMTP, st, st, cfg.Tuning)
	notifyQueue.Start()

	// ===== Alert Engine (C5) =====
	thresholds := alerts.DefaultThresholds()
	alertEngine := alerts.New(st, st, hub, notifyQueue, thresholds, cfg.Tuning.AlertAutoResolveIdle)

	// ===== Sensor Ingestor (C4) =====
	ingestor := ingest.New(st, alertEngine, hub)

	// ===== Presence Tracker (C3) =====
	slots := shard.New(64)
	presenceTracker := presence.NewTracker(st, dispatcher, hub, slots, cfg.Tuning.PollInterval, cfg.Tuning.OfflineThreshold)
	presenceTracker.Start()

	// ===== MQTT Gateway (C2) =====
	gateway := mqttio.NewGateway(mqttClient, st, ingestor, presenceTracker, hub, slots, cfg.MQTT.QoS)
	if mqttClient.IsConnected() {
		if err := gateway.Subscribe(); err != nil {
			log.Printf("mqtt: subscribe failed: %v", err)
		}
	} else {
		go func() {
			for retries := 0; retries < 10; retries++ {
				time.Sleep(5 * time.Second)
				if mqttClient.IsConnected() {
					if err := gateway.Subscribe(); err != nil {
						log.Printf("mqtt: deferred subscribe attempt %d failed: %v", retries+1, err)
						continue
					}
					log.Println("mqtt: deferred subscribe succeeded")
					return
				}
			}
		}()
	}

	// ===== Broadcast Schedulers (C8) =====
	healthSampler := broadcast.NewHealthSampler(hub, st, cfg.Tuning.HealthTick)
	analyticsSampler := broadcast.NewAnalyticsSampler(hub, st, cfg.Tuning.AnalyticsTick)
	healthSampler.Start()
	analyticsSampler.Start()

	// ===== HTTP surface (C10) =====
	app := fiber.New(fiber.Config{AppName: "puretrack", CaseSensitive: false})
	app.Use(recover.New())
	app.Use(logger.New(logger.Config{Format: "[${time}] ${status} - ${method} ${path}\n"}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	authHandler := httpapi.NewAuthHandler(issuer, mem)
	httpapi.Setup(app, authHandler, hub, statusSource{ts: ts, mqtt: mqttClient, hub: hub})

	listenAddr := "0.0.0.0:" + cfg.Server.Port
	go func() {
		log.Printf("http: listening on %s (reachable at http://%s:%s)", listenAddr, localIP(), cfg.Server.Port)
		if err := app.Listen(listenAddr); err != nil {
			log.Fatalf("http: server error: %v", err)
		}
	}()

	// ===== Graceful shutdown, in the prescribed order =====
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("shutdown: starting graceful shutdown")

	healthSampler.Stop()
	analyticsSampler.Stop()
	log.Println("shutdown: broadcast schedulers stopped")

	hub.Shutdown()
	log.Println("shutdown: websocket hub closed")

	mqttClient.Disconnect()
	log.Println("shutdown: mqtt gateway disconnected")

	presenceTracker.Stop()
	log.Println("shutdown: presence tracker stopped")

	notifyQueue.Stop(10 * time.Second)
	log.Println("shutdown: notification queue drained")

	st.Close()
	log.Println("shutdown: store closed")

	log.Println("shutdown: complete")
}
