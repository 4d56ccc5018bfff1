package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"jordanella.com/scroll-stitch/internal/database"
)

var reasons = []string{"explicit", "max_attempts", "end_of_content", "cancelled"}

func main() {
	dbPath := flag.String("db", "scrollshot.db", "Path to database file")
	numSessions := flag.Int("sessions", 20, "Number of capture sessions to create")
	numErrors := flag.Int("errors", 2, "Maximum capture errors per session")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	flag.Parse()

	log.Printf("Seeding capture history at: %s", *dbPath)

	db, err := database.Open(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	if err := db.RunMigrations(); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	rng := rand.New(rand.NewSource(*seed))
	start := time.Now().Add(-time.Duration(*numSessions) * time.Hour)

	for i := 0; i < *numSessions; i++ {
		s := fakeSession(rng, start.Add(time.Duration(i)*time.Hour))
		if err := db.RecordSession(s); err != nil {
			log.Printf("Failed to record session %d: %v", i+1, err)
			continue
		}

		for j := rng.Intn(*numErrors + 1); j > 0; j-- {
			if _, err := db.LogSessionError(s.ID, "capture.failed", "screen capture timed out", false); err != nil {
				log.Printf("Failed to log error: %v", err)
			}
		}
	}

	log.Printf("Created %d sessions", *numSessions)
}

func fakeSession(rng *rand.Rand, startedAt time.Time) *database.CaptureSession {
	vertical := rng.Intn(4) != 0
	width, height := 800+rng.Intn(600), 400+rng.Intn(400)
	frames := 2 + rng.Intn(40)

	s := &database.CaptureSession{
		ID:         uuid.NewString(),
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(time.Duration(frames) * 200 * time.Millisecond),
		Region:     fmt.Sprintf("%d,%d,%d,%d", rng.Intn(200), rng.Intn(200), width, height),
		FrameCount: frames,
		Reason:     reasons[rng.Intn(len(reasons))],
	}

	// Each accepted frame adds between a quarter and three quarters of a view
	grown := 0
	for i := 1; i < frames; i++ {
		grown += height/4 + rng.Intn(height/2)
	}

	if vertical {
		s.Direction = "vertical"
		s.Width, s.Height = width, height+grown
	} else {
		s.Direction = "horizontal"
		s.Width, s.Height = width+grown, height
	}

	out := filepath.Join("captures", fmt.Sprintf("scroll_%s.png", startedAt.Format("2006-01-02_15-04-05")))
	s.OutputPath = &out

	return s
}
