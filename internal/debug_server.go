package internal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

const (
	defaultPrefix  = "msg:"
	maxInspectRows = 1000
)

type InspectRow struct {
	Key       string `json:"key"`
	Namespace string `json:"namespace"`
	Timestamp string `json:"timestamp,omitempty"`
	Detail    string `json:"detail"`
}

type RowMapper func(key string, val []byte) InspectRow
type StatsProvider func() map[string]any

// DebugHandler serves /debug/stats and, when db is not nil, /debug/inspect?prefix=.
func DebugHandler(db *badger.DB, mapper RowMapper, statsProvider StatsProvider, log *slog.Logger) http.Handler {
	if mapper == nil {
		mapper = DefaultMapper
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		stats := map[string]any{}
		if statsProvider != nil {
			stats = statsProvider()
		}
		writeJSON(w, stats, log)
	})

	mux.HandleFunc("/debug/inspect", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			http.Error(w, "no embedded store", http.StatusNotFound)
			return
		}
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = defaultPrefix
		}

		rows := []InspectRow{}
		err := db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)) && len(rows) < maxInspectRows; it.Next() {
				item := it.Item()
				if err := item.Value(func(val []byte) error {
					rows = append(rows, mapper(string(item.Key()), val))
					return nil
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			log.Warn("Inspect failed", "prefix", prefix, "error", err)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, rows, log)
	})
	return mux
}

// StartDebugServer serves the debug endpoints until ctx is cancelled.
func StartDebugServer(ctx context.Context, port int, handler http.Handler, log *slog.Logger) {
	server := &http.Server{
		Addr:              fmt.Sprintf("0.0.0.0:%d", port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("Debug server available", "url", fmt.Sprintf("http://localhost:%d/debug/stats", port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("Debug server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
}

// DefaultMapper understands "msg:{room}:{nanos}:{uuid}" keys and falls back to the raw size.
func DefaultMapper(key string, val []byte) InspectRow {
	parts := strings.Split(key, ":")
	row := InspectRow{
		Key:       key,
		Namespace: parts[0],
		Detail:    "Size: " + strconv.Itoa(len(val)) + " bytes",
	}
	if parts[0] == "msg" && len(parts) == 4 {
		row.Namespace = "msg:" + parts[1]
		if tsNano, err := strconv.ParseInt(parts[2], 10, 64); err == nil {
			row.Timestamp = time.Unix(0, tsNano).UTC().Format(time.RFC3339Nano)
		}
	}
	return row
}

func writeJSON(w http.ResponseWriter, body any, log *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug("Unable to write debug response", "error", err)
	}
}
