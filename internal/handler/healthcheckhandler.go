package handler

import (
	"net/http"
	"time"

	"github.com/deskhelp/deskbot/internal/httputil"
	"github.com/deskhelp/deskbot/internal/svc"
)

type HealthResponse struct {
	Status     string `json:"status"`
	Version    string `json:"version"`
	Timestamp  string `json:"timestamp"`
	Sessions   int    `json:"sessions"`
	QueuedRows int    `json:"queued_rows"`
}

func HealthCheckHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.OkJSON(w, &HealthResponse{
			Status:     "healthy",
			Version:    svcCtx.Version,
			Timestamp:  time.Now().UTC().Format(time.RFC3339),
			Sessions:   svcCtx.Store.Len(),
			QueuedRows: svcCtx.Queue.Len(),
		})
	}
}
