// Package session manages the lifecycle of real-time tutoring
// conversations. It owns the connection state machine, transcript
// aggregation, audio device routing, and admission control (debounce,
// circuit breaker, user-intent flags), and exposes them behind a single
// Service façade that pushes atomic state snapshots to observers.
//
// The heavy lifting of the wire protocol lives in a Transport
// implementation (see the realtime package); session only orchestrates.
//
// Example usage:
//
//	svc, err := session.New(transport, router,
//	    session.WithDebounceWindow(time.Second),
//	    session.WithTeardownGrace(3*time.Second),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Initialize(); err != nil {
//	    log.Fatal(err)
//	}
//	defer svc.Destroy()
//
//	svc.OnStateChanged(func(snap session.Snapshot) {
//	    // Render the UI from the snapshot.
//	})
//	svc.OnAITranscriptDelta(func(d session.TranscriptDelta) {
//	    // Progressive subtitle display.
//	})
//
//	if err := svc.StartSession(ctx, "cafe-ordering", "beginner", userID, true); err != nil {
//	    log.Fatal(err)
//	}
package session
