// Synthetic historical-reading seeder for local development: walks a
// requested date range at a fixed interval, generates plausible pH/TDS/
// turbidity values for one device, and writes them straight to IoTDB,
// bypassing MQTT ingestion entirely.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/Buchi-dev/puretrack/internal/config"
	"github.com/Buchi-dev/puretrack/internal/models"
	"github.com/Buchi-dev/puretrack/internal/store"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	fmt.Println("╔════════════════════════════════════════════╗")
	fmt.Println("║  PureTrack Historical Reading Generator     ║")
	fmt.Println("╚════════════════════════════════════════════╝")
	fmt.Println()

	log.Println("📋 Loading configuration...")
	cfg := config.Load()
	log.Printf("   ✓ IoTDB: %s:%s", cfg.IoTDB.Host, cfg.IoTDB.Port)

	log.Println("🗄️  Connecting to IoTDB...")
	ts := store.NewTimeSeries(cfg.IoTDB)
	if err := ts.Connect(); err != nil {
		log.Fatalf("❌ Failed to connect to IoTDB: %v", err)
	}
	defer ts.Close()
	log.Println("✅ Connected to IoTDB successfully")

	var deviceID string
	fmt.Print("   Device id to seed (e.g. tank-01): ")
	fmt.Scanln(&deviceID)
	if deviceID == "" {
		deviceID = "tank-01"
		log.Printf("⚠️  No device id given, using default: %s", deviceID)
	}

	var days int
	var interval int

	fmt.Println("\n📊 Data Generation Parameters:")
	fmt.Print("   How many days of historical data? (1-30): ")
	fmt.Scanln(&days)
	if days < 1 || days > 30 {
		days = 7
		log.Printf("⚠️  Invalid input, using default: %d days", days)
	}

	fmt.Print("   Reading interval in minutes? (1-60): ")
	fmt.Scanln(&interval)
	if interval < 1 || interval > 60 {
		interval = 5
		log.Printf("⚠️  Invalid input, using default: %d minutes", interval)
	}

	recordsPerDay := (24 * 60) / interval
	totalRecords := days * recordsPerDay

	fmt.Printf("\n📈 Will generate ~%d readings for %s (%d days × %d/day)\n",
		totalRecords, deviceID, days, recordsPerDay)
	fmt.Print("   Continue? (y/n): ")

	var confirm string
	fmt.Scanln(&confirm)
	if confirm != "y" && confirm != "Y" {
		log.Println("❌ Generation cancelled")
		os.Exit(0)
	}

	log.Println("\n🚀 Starting reading generation...")

	ctx := context.Background()
	startTime := time.Now().UTC().AddDate(0, 0, -days)
	endTime := time.Now().UTC()

	successCount := 0
	errorCount := 0

	for tm := startTime; tm.Before(endTime); tm = tm.Add(time.Duration(interval) * time.Minute) {
		reading := generateReading(deviceID, tm)
		if err := ts.Append(ctx, reading); err != nil {
			log.Printf("⚠️  Failed to insert reading at %s: %v", tm.Format("2006-01-02 15:04"), err)
			errorCount++
			continue
		}
		successCount++
		if successCount%100 == 0 {
			progress := float64(successCount) / float64(totalRecords) * 100
			log.Printf("⏳ Progress: %d/%d (%.1f%%)", successCount, totalRecords, progress)
		}
	}

	fmt.Println("\n═══════════════════════════════════════════")
	fmt.Println("           GENERATION COMPLETE")
	fmt.Println("═══════════════════════════════════════════")
	fmt.Printf("✅ Successfully inserted: %d readings\n", successCount)
	if errorCount > 0 {
		fmt.Printf("⚠️  Failed insertions: %d readings\n", errorCount)
	}
	fmt.Printf("📊 Date range: %s to %s\n",
		startTime.Format("2006-01-02 15:04"), endTime.Format("2006-01-02 15:04"))
	fmt.Println("═══════════════════════════════════════════")

	log.Println("\n✅ Reading generation completed!")
}

// generateReading produces a plausible water-quality frame: pH drifting
// around 7.2 with a slow diurnal wobble, TDS around 350ppm, turbidity
// around 2.5 NTU, each with independent noise. That turbidity range
// (1.75-3.25 NTU) lies inside the default Advisory band, so every frame
// carries a turbidity advisory; occasionally one parameter is also nudged
// upward so seeded data reaches further bands.
func generateReading(deviceID string, tm time.Time) models.SensorReading {
	hour := float64(tm.Hour()) + float64(tm.Minute())/60.0
	wobble := math.Sin(hour / 24.0 * 2 * math.Pi)

	ph := 7.2 + wobble*0.15 + (rand.Float64()-0.5)*0.3
	tds := 350.0 + wobble*20.0 + (rand.Float64()-0.5)*40.0
	turbidity := 2.5 + (rand.Float64()-0.5)*1.5

	// roughly 1 in 50 readings gets one parameter nudged upward
	if rand.Intn(50) == 0 {
		switch rand.Intn(3) {
		case 0:
			ph += 1.2
		case 1:
			tds += 300
		case 2:
			turbidity += 5
		}
	}

	return models.SensorReading{
		DeviceID:       deviceID,
		Timestamp:      tm,
		PH:             &ph,
		PHValid:        true,
		TDS:            &tds,
		TDSValid:       true,
		Turbidity:      &turbidity,
		TurbidityValid: true,
	}
}
