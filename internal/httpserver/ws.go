package httpserver

import (
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/OmarEhab007/RemedyIQ-sub002/internal/model"
)

const (
	wsWriteTimeout    = 5 * time.Second
	wsRefreshInterval = 30 * time.Second
)

var jobsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		u, err := url.Parse(origin)
		if err != nil {
			return false
		}
		host := strings.ToLower(strings.TrimSpace(r.Host))
		originHost := strings.ToLower(strings.TrimSpace(u.Host))
		return host == originHost
	},
}

// jobsSnapshot is one WebSocket frame: the full job list as of
// GeneratedAt. Full snapshots keep deletions and restarts trivial for
// the dashboard; it just replaces its table.
type jobsSnapshot struct {
	GeneratedAt time.Time   `json:"generated_at"`
	Jobs        []model.Job `json:"jobs"`
}

func (s *Server) handleJobsWS(c *gin.Context) {
	conn, err := jobsUpgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s.serveJobsConnection(conn)
}

// serveJobsConnection pushes a snapshot immediately, then again on
// every job status change (bursts coalesce into one frame) and on a
// slow keepalive tick. The reader goroutine exists only to detect the
// peer closing.
func (s *Server) serveJobsConnection(conn *websocket.Conn) {
	defer conn.Close()

	events, unsubscribe := s.jobs.Subscribe()
	defer unsubscribe()

	if err := s.pushJobsSnapshot(conn); err != nil {
		return
	}

	ticker := time.NewTicker(wsRefreshInterval)
	defer ticker.Stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
		coalesce:
			for {
				select {
				case _, ok := <-events:
					if !ok {
						return
					}
				default:
					break coalesce
				}
			}
			if err := s.pushJobsSnapshot(conn); err != nil {
				return
			}
		case <-ticker.C:
			if err := s.pushJobsSnapshot(conn); err != nil {
				return
			}
		case <-done:
			return
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Server) pushJobsSnapshot(conn *websocket.Conn) error {
	list, err := s.store.ListJobs(s.ctx)
	if err != nil {
		log.Printf("httpserver: ws job snapshot: %v", err)
		return err
	}
	if list == nil {
		list = []model.Job{}
	}
	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return conn.WriteJSON(jobsSnapshot{GeneratedAt: time.Now().UTC(), Jobs: list})
}
