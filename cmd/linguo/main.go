// Command linguo runs an interactive tutoring conversation against the
// Linguo realtime backend and prints the live transcript.
//
// Usage:
//
//	LINGUO_API_KEY=sk_... go run ./cmd/linguo/ -scenario cafe-ordering -level beginner
//
// Flags:
//
//	-scenario   Scenario to practice (default: cafe-ordering)
//	-level      Proficiency level (default: beginner)
//	-user       User reference sent to the backend
//	-timeout    Connection timeout (default: 30s)
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linguo-app/go-linguo/internal/config"
	"github.com/linguo-app/go-linguo/internal/log"
	"github.com/linguo-app/go-linguo/pkg/realtime"
	"github.com/linguo-app/go-linguo/pkg/session"
)

var (
	scenario = flag.String("scenario", "cafe-ordering", "Scenario to practice")
	level    = flag.String("level", "beginner", "Proficiency level")
	userRef  = flag.String("user", "", "User reference sent to the backend")
	timeout  = flag.Duration("timeout", 30*time.Second, "Connection timeout")
)

func main() {
	flag.Parse()
	log.Init(config.LogLevel())

	apiKey := config.APIKeyRequired()

	transport, err := realtime.NewClient(
		realtime.WithAPIKey(apiKey),
		realtime.WithAPIBaseURL(config.APIBaseURL("")),
		realtime.WithTimeout(*timeout),
		realtime.WithLogger(log.L()),
	)
	if err != nil {
		fmt.Printf("❌ Failed to create realtime client: %v\n", err)
		os.Exit(1)
	}

	svc, err := session.Shared(transport, nil, session.WithLogger(log.L()))
	if err != nil {
		fmt.Printf("❌ Failed to create session service: %v\n", err)
		os.Exit(1)
	}
	defer svc.Destroy()

	svc.OnSessionStarted(func(info session.ScenarioInfo) {
		fmt.Printf("🎤 Session started: %s (%s)\n", info.ScenarioID, info.Level)
	})
	svc.OnSessionStopped(func() {
		fmt.Println("👋 Session ended")
	})
	svc.OnAITranscriptDelta(func(d session.TranscriptDelta) {
		fmt.Printf("\r🧑‍🏫 %s", d.Transcript)
	})
	svc.OnAITranscriptComplete(func(e session.TranscriptEntry) {
		fmt.Printf("\r🧑‍🏫 %s\n", e.Text)
	})
	svc.OnUserTranscriptComplete(func(e session.TranscriptEntry) {
		fmt.Printf("🗣️  %s\n", e.Text)
	})
	svc.OnConnectionStateChanged(func(p session.ConnectionPhase) {
		log.Debug("connection state", "phase", p.String())
	})
	svc.OnError(func(err error) {
		fmt.Printf("⚠️  %v\n", err)
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := svc.StartSession(ctx, *scenario, *level, *userRef, true); err != nil {
		if session.IsCircuitOpen(err) {
			fmt.Printf("❌ Backend unavailable, try again later: %v\n", err)
		} else {
			fmt.Printf("❌ Failed to start session: %v\n", err)
		}
		os.Exit(1)
	}

	fmt.Println("Press Ctrl+C to end the conversation")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nEnding session...")
	if err := svc.StopSessionByUser(); err != nil {
		log.Warn("stop failed", "error", err)
	}

	// Let a deferred teardown drain before exit.
	deadline := time.Now().Add(5 * time.Second)
	for svc.State().Session != nil && time.Now().Before(deadline) {
		time.Sleep(100 * time.Millisecond)
	}

	history := svc.State().History
	if len(history) > 0 {
		fmt.Printf("\n📜 Conversation (%d utterances)\n", len(history))
	}
}
