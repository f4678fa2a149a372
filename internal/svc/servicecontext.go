// Package svc wires the application together: one ServiceContext owns every
// long-lived component and their lifecycles.
package svc

import (
	"fmt"
	"io"

	"github.com/deskhelp/deskbot/internal/archive"
	"github.com/deskhelp/deskbot/internal/config"
	"github.com/deskhelp/deskbot/internal/dialog"
	"github.com/deskhelp/deskbot/internal/logging"
	"github.com/deskhelp/deskbot/internal/notify"
	"github.com/deskhelp/deskbot/internal/persist"
	"github.com/deskhelp/deskbot/internal/responder"
	"github.com/deskhelp/deskbot/internal/sheets"
)

type ServiceContext struct {
	Config  *config.Config
	Version string

	Store     *dialog.Store
	Engine    *dialog.Engine
	Sweeper   *dialog.Sweeper
	Queue     *persist.Queue
	Worker    *persist.Worker
	Sink      persist.Sink
	Responder responder.Responder
	Notifier  notify.Channel

	// archiveDB is set only when the sqlite sink is selected; it needs an
	// explicit Close.
	archiveDB *archive.Archive
}

func NewServiceContext(c *config.Config, version string) (*ServiceContext, error) {
	r, err := responder.New(responder.Config{
		Provider: c.LLM.Provider,
		Model:    c.LLM.Model,
		APIKey:   c.LLM.APIKey,
		BaseURL:  c.LLM.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("init responder: %w", err)
	}

	sctx := &ServiceContext{
		Config:    c,
		Version:   version,
		Responder: r,
		Notifier:  notify.FromConfig(c.Notify.Mode),
		Store:     dialog.NewStore(),
		Queue:     persist.NewQueue(),
	}

	switch c.Persist.Sink {
	case "sheets":
		sctx.Sink = sheets.New(sheets.Config{
			SpreadsheetID:   c.Sheets.SpreadsheetID,
			Range:           c.Sheets.Range,
			CredentialsJSON: []byte(c.Sheets.CredentialsJSON),
		})
	case "sqlite":
		db, err := archive.Open(c.Archive.Path)
		if err != nil {
			return nil, fmt.Errorf("init archive: %w", err)
		}
		sctx.archiveDB = db
		sctx.Sink = db
	case "none":
		sctx.Sink = persist.NopSink{}
	default:
		return nil, fmt.Errorf("unknown persist sink %q", c.Persist.Sink)
	}

	sctx.Worker = persist.NewWorker(sctx.Queue, sctx.Sink, persist.WorkerConfig{
		Interval:    c.Persist.FlushIntervalDuration(),
		BatchSize:   c.Persist.BatchSize,
		MaxAge:      c.Persist.MaxBatchAgeDuration(),
		MaxAttempts: c.Persist.MaxAttempts,
		BackoffBase: c.Persist.BackoffBaseDuration(),
		BackoffCap:  c.Persist.BackoffCapDuration(),
	})
	sctx.Engine = dialog.NewEngine(sctx.Store, r, sctx.Queue, sctx.Notifier)
	sctx.Sweeper = dialog.NewSweeper(sctx.Engine, c.Dialog.SessionTTLDuration())
	return sctx, nil
}

// Start launches the background components.
func (s *ServiceContext) Start() error {
	s.Worker.Start()
	if err := s.Sweeper.Start(s.Config.Dialog.SweepSchedule); err != nil {
		return fmt.Errorf("start sweeper: %w", err)
	}
	logging.Infof("service started, sink=%s provider=%s", s.Config.Persist.Sink, s.Config.LLM.Provider)
	return nil
}

// Close stops background work in dependency order: no new rows from the
// sweeper, then a final flush from the worker, then the archive handle.
func (s *ServiceContext) Close() {
	s.Sweeper.Stop()
	s.Worker.Stop()
	if cl, ok := s.Responder.(io.Closer); ok {
		cl.Close()
	}
	if s.archiveDB != nil {
		if err := s.archiveDB.Close(); err != nil {
			logging.Warnf("close archive: %v", err)
		}
	}
}
