package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"winery/internal/core"
	"winery/internal/filter"
	"winery/internal/listing"
	"winery/internal/log"
	"winery/internal/poll"
	"winery/internal/session"
)

// logsExtra is the statistics header of the logs screen.
type logsExtra struct {
	Stats  core.LogStats
	Levels []string
}

func (s *Server) logsScreen() listScreen[core.LogEntry, filter.LogFilter] {
	return listScreen[core.LogEntry, filter.LogFilter]{
		name:  "logs",
		title: "Logs",
		view:  func(ws *workspace) *listing.View[core.LogEntry, filter.LogFilter] { return ws.logs },
		parse: filter.ParseLogFilter,
		extra: func(ctx context.Context, _ listing.Page[core.LogEntry]) (any, error) {
			var extra logsExtra
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				extra.Stats, err = s.api.LogStats(gctx)
				return err
			})
			g.Go(func() error {
				var err error
				extra.Levels, err = s.api.LogLevels(gctx)
				return err
			})
			return extra, g.Wait()
		},
	}
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request, st *session.State) {
	serveList(s, w, r, st, s.logsScreen())
}

// handleLogsStream pushes the log table as server-sent events every
// LogsRefresh while the logs screen is open. The browser closing the page
// ends the request context and with it the poller.
func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request, st *session.State) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ws, err := s.workspaces.get(ctx, st.ID())
	if err != nil {
		s.fail(w, r, st, err)
		return
	}
	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		log.FromContext(ctx).WarnContext(ctx, "Streaming not supported", log.FieldError, err)
		return
	}

	var mu sync.Mutex
	send := func(event, data string) error {
		mu.Lock()
		defer mu.Unlock()
		var b strings.Builder
		fmt.Fprintf(&b, "event: %s\n", event)
		for _, line := range strings.Split(data, "\n") {
			fmt.Fprintf(&b, "data: %s\n", line)
		}
		b.WriteString("\n")
		if _, err := w.Write([]byte(b.String())); err != nil {
			return err
		}
		return rc.Flush()
	}

	view := ws.logs
	refresh := func(ctx context.Context) error {
		page, err := view.Reload(ctx)
		switch {
		case errors.Is(err, listing.ErrStale):
			return nil
		case errors.Is(err, core.ErrUnauthorized):
			st.Logout(ctx)
			s.workspaces.drop(st.ID())
			_ = send("logout", "/login")
			cancel()
			return nil
		case err != nil:
			return err
		}
		var buf bytes.Buffer
		data := tableData[core.LogEntry, filter.LogFilter]{
			Page:   page,
			Filter: view.Filter(),
			Loaded: true,
			Admin:  true,
		}
		if err := s.templates.ExecuteTemplate(&buf, "logs-rows", data); err != nil {
			return fmt.Errorf("render logs: %w", err)
		}
		return send("logs", buf.String())
	}

	poller := poll.Start(ctx, s.cfg.LogsRefresh, refresh, log.FromContext(ctx))
	<-ctx.Done()
	poller.Stop()
}
