package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/wanderloop/wanderloop/internal/logging"
	"github.com/wanderloop/wanderloop/tour"
)

var audioguideFlags struct {
	sessionID    string
	candidateRef int
}

var audioguideCmd = &cobra.Command{
	Use:   "audioguide",
	Short: "Narrate one generated candidate into a per-stop audioguide",
	Long: `Turn one of a session's tour candidates into narrated audio, stop by stop.

The session must have been produced by "wanderloop candidates" first; the
--candidate flag picks from that run's ranked list by position.`,
	RunE: runAudioguide,
}

func init() {
	f := audioguideCmd.Flags()
	f.StringVar(&audioguideFlags.sessionID, "session", "", "Session ID from a candidates run (required)")
	f.IntVar(&audioguideFlags.candidateRef, "candidate", 0, "Candidate position in the session's ranked list")
	_ = audioguideCmd.MarkFlagRequired("session")
}

func runAudioguide(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	deps, cleanup, err := buildDeps(cfg, logging.New("tour"))
	if err != nil {
		return err
	}
	defer cleanup()

	pipeline, err := tour.NewAudioguidePipeline(deps)
	if err != nil {
		return err
	}

	result, err := pipeline.Run(ctx, tour.AudioguideRequest{
		SessionID:    audioguideFlags.sessionID,
		CandidateRef: audioguideFlags.candidateRef,
	})
	if err != nil {
		return err
	}

	if result.TourID != "" {
		fmt.Printf("tour: %s (status %s)\n", result.TourID, result.Status)
	} else {
		fmt.Printf("tour not produced (status %s)\n", result.Status)
	}

	for _, segment := range result.Segments {
		switch segment.Status {
		case tour.SegmentOK:
			fmt.Printf("  [%d] %-5s %-28s %s (%ds)\n",
				segment.Index, segment.Kind, segment.Title, segment.AudioRef, segment.DurationSeconds)
		default:
			fmt.Printf("  [%d] %-5s %-28s unavailable: %s\n",
				segment.Index, segment.Kind, segment.Title, segment.Reason)
		}
	}

	if result.Degraded() {
		fmt.Println("\ncompleted with degraded steps:")
		for _, fault := range result.Faults {
			fmt.Printf("  - %s: %v\n", fault.Step, fault.Err)
		}
	}
	return nil
}
