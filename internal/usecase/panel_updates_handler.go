package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"OVIP/internal/domain/models"
	domrepo "OVIP/internal/domain/repository"
	pkgkafka "OVIP/pkg/kafka"
	applogger "OVIP/pkg/logger"
	"OVIP/pkg/queue"
)

// Invalidator drops cached pipeline results.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// PanelUpdatesHandler appends observations from Kafka to the panel store.
// A message holds one PanelRow object or an array of them.
type PanelUpdatesHandler struct {
	topic   string
	store   domrepo.PanelStore
	inv     Invalidator
	metrics domrepo.Metrics
	log     *applogger.Logger
	refresh queue.Enqueuer
}

func NewPanelUpdatesHandler(topic string, store domrepo.PanelStore, inv Invalidator, metrics domrepo.Metrics, l *applogger.Logger) *PanelUpdatesHandler {
	if metrics == nil {
		metrics = nopMetrics{}
	}
	if l == nil {
		l = applogger.Nop()
	}
	return &PanelUpdatesHandler{topic: topic, store: store, inv: inv, metrics: metrics, log: l}
}

// WithRefreshQueue makes the handler enqueue a pipeline refresh after each append.
func (h *PanelUpdatesHandler) WithRefreshQueue(q queue.Enqueuer) *PanelUpdatesHandler {
	h.refresh = q
	return h
}

func (h *PanelUpdatesHandler) Topic() string { return h.topic }

func (h *PanelUpdatesHandler) Handle(ctx context.Context, b []byte) error {
	rows, err := decodeRows(b)
	if err != nil {
		h.metrics.RecordObservation("decode_error")
		return err
	}
	obs := make([]models.Observation, 0, len(rows))
	for _, r := range rows {
		o, err := ObservationFromRow(r)
		if err != nil {
			h.metrics.RecordObservation("invalid")
			return err
		}
		obs = append(obs, o)
	}

	if err := h.store.AppendObservations(ctx, obs); err != nil {
		h.metrics.RecordObservation("store_error")
		return fmt.Errorf("append observations: %w", err)
	}
	h.metrics.RecordObservation("appended")

	if h.inv != nil {
		if err := h.inv.Invalidate(ctx); err != nil {
			// the rows are stored; a stale cache expires on its own
			h.log.Warn("invalidate after append", applogger.Error(err))
		}
	}
	if h.refresh != nil {
		if err := RequestRefresh(ctx, h.refresh, "observations"); err != nil {
			h.log.Warn("enqueue refresh", applogger.Error(err))
		}
	}
	h.log.Debug("observations appended", applogger.Int("rows", len(obs)))
	return nil
}

func decodeRows(b []byte) ([]models.PanelRow, error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, fmt.Errorf("decode observation: %w: empty message", ErrBadRow)
	}
	if b[0] == '[' {
		var rows []models.PanelRow
		if err := json.Unmarshal(b, &rows); err != nil {
			return nil, fmt.Errorf("decode observations: %w", err)
		}
		return rows, nil
	}
	var r models.PanelRow
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, fmt.Errorf("decode observation: %w", err)
	}
	return []models.PanelRow{r}, nil
}

var _ pkgkafka.MessageHandler = (*PanelUpdatesHandler)(nil)
