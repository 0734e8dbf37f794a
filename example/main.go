package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"

	"github.com/Morditux/storesession"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	// Reads .env and the environment, e.g. STORE_SESSIONS=sqlite.
	cfg, err := storesession.LoadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	mgr := storesession.NewManager(context.Background(), cfg, storesession.WithLogger(logger))
	defer mgr.Close()

	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		c, ok := storesession.FromContext(r.Context())
		if !ok || !c.IsStarted() {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}

		count := 0
		if val, ok := c.Value("count"); ok {
			if n, ok := val.(int); ok {
				count = n
			}
		}
		count++
		c.SetValue("count", count)

		fmt.Fprintf(w, "Hello! You have visited this page %d times (backend %s).", count, mgr.Backend())
	})

	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		c, _ := storesession.FromContext(r.Context())
		if !c.Recreate(r.Context()) {
			http.Error(w, "login failed", http.StatusInternalServerError)
			return
		}
		c.SetValue("customer_id", 42)
		fmt.Fprint(w, "Logged in!")
	})

	mux.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		c, _ := storesession.FromContext(r.Context())
		c.Destroy(r.Context())
		fmt.Fprint(w, "Logged out!")
	})

	logger.Info("server starting", slog.String("addr", ":8080"), slog.String("backend", mgr.Backend()))
	log.Fatal(http.ListenAndServe(":8080", mgr.Middleware(mux)))
}
