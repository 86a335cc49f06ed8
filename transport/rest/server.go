package rest

import (
	"fmt"
	"net/http"
	"time"
)

// QueueStats is the diagnostics view of the action queue.
type QueueStats interface {
	IsBusy() bool
	QueueDepth() int
}

func Start(port string, stats QueueStats) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ping", pingHandler)
	mux.HandleFunc("/debug/queue", queueHandler(stats))

	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	if err := srv.ListenAndServe(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}
