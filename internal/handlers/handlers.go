package handlers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/sirupsen/logrus"

	"stackbot-deployment/internal/database"
	"stackbot-deployment/internal/github"
	"stackbot-deployment/internal/logger"
	"stackbot-deployment/internal/models"
)

const maxPayloadBytes = 5 << 20

// Dispatcher handles a decoded event. It may run for minutes.
type Dispatcher interface {
	Handle(ctx context.Context, event models.Event) error
}

type Handler struct {
	db         *sql.DB
	dispatcher Dispatcher
	nrApp      *newrelic.Application
	logger     *logrus.Entry
	inflight   sync.WaitGroup
}

func NewHandler(db *sql.DB, dispatcher Dispatcher, nrApp *newrelic.Application) *Handler {
	return &Handler{
		db:         db,
		dispatcher: dispatcher,
		nrApp:      nrApp,
		logger:     logger.WithModule("handlers"),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Webhook accepts a GitHub delivery and hands the event to the dispatcher in
// the background. Repeated deliveries are acknowledged without dispatching.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	name := r.Header.Get("X-GitHub-Event")
	deliveryID := r.Header.Get("X-GitHub-Delivery")
	log := h.logger.WithFields(logrus.Fields{
		"event":       name,
		"delivery_id": deliveryID,
	})

	event, err := github.ParseEvent(name, deliveryID, body)
	if errors.Is(err, github.ErrIgnoredEvent) {
		log.WithError(err).Debug("Ignoring delivery")
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if err != nil {
		log.WithError(err).Warn("Invalid webhook payload")
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}

	if deliveryID != "" && h.db != nil {
		inserted, err := database.RecordDelivery(h.db, deliveryID, event.Kind.String(), event.BranchName)
		if err != nil {
			log.WithError(err).Error("Failed to record delivery")
			http.Error(w, "Database error", http.StatusInternalServerError)
			return
		}
		if !inserted {
			log.Info("Delivery already received, skip")
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
	}

	h.dispatch(event)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (h *Handler) dispatch(event models.Event) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()

		txn := h.nrApp.StartTransaction(event.Kind.String())
		defer txn.End()
		txn.AddAttribute("branch", event.BranchName)

		ctx := newrelic.NewContext(context.Background(), txn)
		if err := h.dispatcher.Handle(ctx, event); err != nil {
			txn.NoticeError(err)
		}
	}()
}

// Wait blocks until every dispatched event has been handled.
func (h *Handler) Wait() {
	h.inflight.Wait()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
