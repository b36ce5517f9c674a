package push

import (
	"context"
	"sort"
	"sync"
	"time"

	"wayfinder/models"

	"go.uber.org/zap"
)

const DefaultSendTimeout = 10 * time.Second

// EndpointRegistry is the part of the subscription registry dispatch needs.
// DeactivateIfUnchanged must leave the endpoint active when its credential
// was registered again after the snapshot ep was taken from.
type EndpointRegistry interface {
	ListActive(ctx context.Context, userID string) ([]models.Endpoint, error)
	DeactivateIfUnchanged(ctx context.Context, ep models.Endpoint, reason models.DeactivationReason) (bool, error)
}

// Engine fans one notification out to every active endpoint of a recipient.
// It keeps no per-recipient state, so concurrent dispatches never contend.
type Engine struct {
	registry    EndpointRegistry
	adapters    map[models.Channel]Adapter
	sendTimeout time.Duration
	logger      *zap.Logger
}

func NewEngine(registry EndpointRegistry, sendTimeout time.Duration, logger *zap.Logger, adapters ...Adapter) *Engine {
	if sendTimeout <= 0 {
		sendTimeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	byChannel := make(map[models.Channel]Adapter, len(adapters))
	for _, a := range adapters {
		if a != nil {
			byChannel[a.Channel()] = a
		}
	}
	return &Engine{
		registry:    registry,
		adapters:    byChannel,
		sendTimeout: sendTimeout,
		logger:      logger,
	}
}

// Channels lists the channels that have an adapter wired.
func (e *Engine) Channels() []models.Channel {
	out := make([]models.Channel, 0, len(e.adapters))
	for c := range e.adapters {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dispatch sends n to every active endpoint of recipientID. Partial failures
// are reported, not returned; the only error besides a registry failure is
// models.ErrProviderUnavailable when no endpoint's channel has an adapter.
func (e *Engine) Dispatch(ctx context.Context, n *models.Notification, recipientID string, badge int64) (models.DispatchReport, error) {
	endpoints, err := e.registry.ListActive(ctx, recipientID)
	if err != nil {
		return models.DispatchReport{}, err
	}
	return e.DispatchTo(ctx, n, endpoints, badge)
}

// DispatchTo runs the dispatch algorithm over an explicit endpoint set.
func (e *Engine) DispatchTo(ctx context.Context, n *models.Notification, endpoints []models.Endpoint, badge int64) (models.DispatchReport, error) {
	var report models.DispatchReport
	if len(endpoints) == 0 {
		return report, nil
	}

	payload := NewPayload(n, badge)
	report.Results = make([]models.EndpointResult, len(endpoints))

	groups := make(map[models.Channel][]int)
	for i, ep := range endpoints {
		groups[ep.Channel] = append(groups[ep.Channel], i)
	}

	var wg sync.WaitGroup
	deactivated := make([]bool, len(endpoints))
	served := 0
	for channel, idxs := range groups {
		adapter, ok := e.adapters[channel]
		if !ok {
			for _, i := range idxs {
				report.Results[i] = models.EndpointResult{
					EndpointID: endpoints[i].ID,
					Channel:    channel,
					Status:     models.StatusUnavailable,
					Error:      "no adapter configured for channel",
				}
			}
			continue
		}
		served++
		for _, i := range idxs {
			wg.Add(1)
			go func(i int, ep models.Endpoint) {
				defer wg.Done()
				report.Results[i], deactivated[i] = e.sendOne(ctx, adapter, ep, payload)
			}(i, endpoints[i])
		}
	}
	wg.Wait()

	for i, res := range report.Results {
		switch res.Status {
		case models.StatusDelivered:
			report.Attempted++
			report.Succeeded++
		case models.StatusTransientFailure, models.StatusPermanentFailure:
			report.Attempted++
			report.Failed++
		}
		if deactivated[i] {
			report.Deactivated++
		}
	}

	if served == 0 {
		e.logger.Error("no push adapter reachable for recipient endpoints",
			zap.String("notificationId", n.ID),
			zap.Int("endpoints", len(endpoints)),
		)
		return report, models.ErrProviderUnavailable
	}
	return report, nil
}

// sendOne delivers to a single endpoint under its own deadline.
func (e *Engine) sendOne(ctx context.Context, adapter Adapter, ep models.Endpoint, payload Payload) (models.EndpointResult, bool) {
	res := models.EndpointResult{EndpointID: ep.ID, Channel: ep.Channel}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	err := adapter.Send(sendCtx, ep, payload)
	cancel()

	if err == nil {
		res.Status = models.StatusDelivered
		return res, false
	}

	perr := classify(ep.Channel, err)
	res.Error = perr.Error()
	if perr.Kind != Permanent {
		res.Status = models.StatusTransientFailure
		e.logger.Warn("push send failed, endpoint kept",
			zap.String("endpointId", ep.ID),
			zap.String("channel", string(ep.Channel)),
			zap.Error(err),
		)
		return res, false
	}

	res.Status = models.StatusPermanentFailure
	reason := perr.Reason
	if reason == "" {
		reason = models.ReasonProviderRejected
	}

	// The send deadline may already be spent; deactivation gets its own.
	deactCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	deactivated, derr := e.registry.DeactivateIfUnchanged(deactCtx, ep, reason)
	if derr != nil {
		e.logger.Error("failed to deactivate rejected endpoint",
			zap.String("endpointId", ep.ID),
			zap.Error(derr),
		)
		return res, false
	}
	return res, deactivated
}
