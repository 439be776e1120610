package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/dharsanguruparan/straymandu/internal/feed"
)

const streamHeartbeat = 25 * time.Second

// handleStream relays feed events as Server-Sent Events until the client
// goes away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broker == nil {
		s.fail(w, r, errFeedDisabled)
		return
	}
	statuses, err := parseStatuses(r.URL.Query().Get("status"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ctx := r.Context()
	events, cancel, err := s.deps.Broker.Subscribe(ctx)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer cancel()

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		s.logger.Warn("stream not flushable", zap.Error(err))
		return
	}

	ticker := time.NewTicker(streamHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				return
			}
			if !feed.Matches(ev, statuses) {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("encode feed event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}
