package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wanderloop/wanderloop/core/geo"
	"github.com/wanderloop/wanderloop/internal/logging"
	"github.com/wanderloop/wanderloop/tour"
)

var candidatesFlags struct {
	sessionID string
	lat       float64
	lon       float64
	duration  int
}

var candidatesCmd = &cobra.Command{
	Use:   "candidates",
	Short: "Generate walking-tour candidates around a starting point",
	Long: `Generate ranked walking-tour candidates around a starting point.

The session ID ties the run to its persisted result; pass --session to pick
one, or let the command mint a fresh UUID. Feed the printed session ID to
"wanderloop audioguide" to narrate one of the candidates.`,
	RunE: runCandidates,
}

func init() {
	f := candidatesCmd.Flags()
	f.StringVar(&candidatesFlags.sessionID, "session", "", "Session ID (default: a fresh UUID)")
	f.Float64Var(&candidatesFlags.lat, "lat", 0, "Latitude of the starting point (required)")
	f.Float64Var(&candidatesFlags.lon, "lon", 0, "Longitude of the starting point (required)")
	f.IntVar(&candidatesFlags.duration, "duration", 90, "Desired tour duration in minutes")
	_ = candidatesCmd.MarkFlagRequired("lat")
	_ = candidatesCmd.MarkFlagRequired("lon")
}

func runCandidates(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	deps, cleanup, err := buildDeps(cfg, logging.New("tour"))
	if err != nil {
		return err
	}
	defer cleanup()

	pipeline, err := tour.NewCandidatePipeline(deps)
	if err != nil {
		return err
	}

	sessionID := candidatesFlags.sessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	result, err := pipeline.Run(ctx, tour.CandidateRequest{
		SessionID:       sessionID,
		Origin:          geo.Point{Lat: candidatesFlags.lat, Lon: candidatesFlags.lon},
		DurationMinutes: candidatesFlags.duration,
	})
	if err != nil {
		return err
	}

	fmt.Printf("session: %s\n", result.SessionID)
	if result.Area != nil {
		fmt.Printf("area: %s, %s, %s\n", result.Area.Neighborhood, result.Area.City, result.Area.Country)
	}

	if len(result.Candidates) == 0 {
		fmt.Println("no viable tour candidates found around this point")
	}
	for i, candidate := range result.Candidates {
		fmt.Printf("\n[%d] %s (%d min, %d stops, %.1f km walk)\n",
			i, candidate.Title, candidate.DurationMinutes, len(candidate.Stops), candidate.WalkMeters/1000)
		fmt.Printf("    %s\n", candidate.Description)
		for _, stop := range candidate.Stops {
			fmt.Printf("      - %s\n", stop.Name)
		}
	}

	if result.Degraded() {
		fmt.Println("\ncompleted with degraded steps:")
		for _, fault := range result.Faults {
			fmt.Printf("  - %s: %v\n", fault.Step, fault.Err)
		}
	}

	if len(result.Candidates) > 0 {
		fmt.Printf("\nnext: wanderloop audioguide --session %s --candidate 0\n", result.SessionID)
	}
	return nil
}
