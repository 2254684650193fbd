package services

import (
	"net/url"

	"github.com/vidbridge/vidbridge/apperrors"
	"github.com/vidbridge/vidbridge/logging"
	"github.com/vidbridge/vidbridge/metrics"
	"github.com/vidbridge/vidbridge/models"
	"github.com/vidbridge/vidbridge/registry"
)

// Notifier pushes an event to one connected session. The websocket hub
// implements it; the router never touches transport internals.
type Notifier interface {
	Notify(sessionID, event string, payload any) error
}

// Router resolves recipients for a completed upload or a direct URL and
// notifies them. Every outcome is reported back to the caller; the origin
// session never blocks on a recipient.
type Router interface {
	Deliver(origin string, notice models.MobileVideo, targetID, requiredDevice string) models.DeliveryStatus
	DeliverURL(origin, rawURL, name, targetID string) models.DeliveryStatus
}

type RouterImpl struct {
	registry      registry.Registry
	notifier      Notifier
	defaultDevice string

	logger logging.Logger
}

func NewRouterImpl(reg registry.Registry, notifier Notifier, defaultDevice string, l logging.Logger) *RouterImpl {
	return &RouterImpl{
		registry:      reg,
		notifier:      notifier,
		defaultDevice: defaultDevice,
		logger:        l,
	}
}

// Deliver sends notice to targetID, or broadcasts to every eligible
// session when targetID is empty. A broadcast that reaches nobody is a
// successful no-op: delivered=true with recipients=0.
func (r *RouterImpl) Deliver(origin string, notice models.MobileVideo, targetID, requiredDevice string) models.DeliveryStatus {
	if requiredDevice == "" {
		requiredDevice = r.defaultDevice
	}

	if targetID != "" {
		return r.deliverDirect(origin, notice, targetID, requiredDevice)
	}

	recipients := r.registry.BroadcastRecipients(origin, requiredDevice)
	delivered := 0
	for _, id := range recipients {
		if err := r.notifier.Notify(id, models.EventMobileVideo, notice); err != nil {
			// Recipient disconnected between resolution and notify.
			r.logger.Warn("broadcast notify failed", "target", id, "error", err)
			continue
		}
		delivered++
	}

	metrics.DeliveriesTotal.WithLabelValues("broadcast").Inc()
	r.logger.Info("broadcast delivered", "origin", origin, "name", notice.Name, "recipients", delivered)
	return models.DeliveryStatus{Delivered: true, Recipients: delivered}
}

func (r *RouterImpl) deliverDirect(origin string, notice models.MobileVideo, targetID, requiredDevice string) models.DeliveryStatus {
	target, err := r.registry.Resolve(targetID)
	if err != nil {
		metrics.DeliveriesTotal.WithLabelValues("target-not-found").Inc()
		return models.DeliveryStatus{Delivered: false, To: targetID, Reason: "target-not-found"}
	}

	if target.Device != requiredDevice {
		metrics.DeliveriesTotal.WithLabelValues("wrong-device").Inc()
		return models.DeliveryStatus{Delivered: false, To: targetID, Reason: "target-not-" + requiredDevice}
	}

	if err := r.notifier.Notify(targetID, models.EventMobileVideo, notice); err != nil {
		r.logger.Warn("direct notify failed", "origin", origin, "target", targetID, "error", err)
		metrics.DeliveriesTotal.WithLabelValues("target-not-found").Inc()
		return models.DeliveryStatus{Delivered: false, To: targetID, Reason: "target-not-found"}
	}

	metrics.DeliveriesTotal.WithLabelValues("direct").Inc()
	r.logger.Info("delivered to target", "origin", origin, "target", targetID, "name", notice.Name)
	return models.DeliveryStatus{Delivered: true, To: targetID, Recipients: 1}
}

// DeliverURL relays a direct video URL without any upload involved. The
// URL is validated before any recipient is contacted.
func (r *RouterImpl) DeliverURL(origin, rawURL, name, targetID string) models.DeliveryStatus {
	if err := validateVideoURL(rawURL); err != nil {
		metrics.DeliveriesTotal.WithLabelValues("invalid-url").Inc()
		return models.DeliveryStatus{Delivered: false, To: targetID, Reason: "invalid-url"}
	}

	notice := models.MobileVideo{
		Name:        name,
		URL:         rawURL,
		From:        origin,
		IsDirectUrl: true,
	}
	return r.Deliver(origin, notice, targetID, "")
}

func validateVideoURL(rawURL string) error {
	u, err := url.ParseRequestURI(rawURL)
	if err != nil {
		return apperrors.ErrInvalidURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apperrors.ErrInvalidURL
	}
	return nil
}
