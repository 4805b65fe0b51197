// Package webhook receives signed content-change notifications and runs the
// prime pipeline for them.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/drinks-fyi/pkg/prime"
)

// Header names.
const (
	SignatureHeader = "X-Drinks-Signature"
	DeliveryHeader  = "X-Drinks-Delivery"
)

// Events.
const (
	EventPublished = "drink.published"
	EventUpdated   = "drink.updated"
	EventDeleted   = "drink.deleted"
	EventPurgeAll  = "cache.purge_all"
)

const maxBodyBytes = 1 << 20

var (
	// ErrBadSignature is returned when the signature header is missing or wrong.
	ErrBadSignature = errors.New("invalid webhook signature")

	// ErrBadPayload is returned for unparseable or incomplete payloads.
	ErrBadPayload = errors.New("invalid webhook payload")
)

var deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "drinks_webhook_deliveries_total",
	Help: "Webhook deliveries by event and result",
}, []string{"event", "result"})

// Payload is the JSON body of a delivery.
type Payload struct {
	Event        string   `json:"event"`
	Slug         string   `json:"slug,omitempty"`
	PreviousSlug string   `json:"previous_slug,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// Change maps the payload onto the content change it announces.
func (p Payload) Change() (prime.Change, error) {
	switch p.Event {
	case EventPurgeAll:
		return prime.Change{All: true}, nil
	case EventPublished, EventUpdated, EventDeleted:
		if p.Slug == "" {
			return prime.Change{}, fmt.Errorf("%w: %s requires a slug", ErrBadPayload, p.Event)
		}
		slugs := []string{p.Slug}
		if p.PreviousSlug != "" && p.PreviousSlug != p.Slug {
			slugs = append(slugs, p.PreviousSlug)
		}
		return prime.Change{Slugs: slugs, Tags: p.Tags}, nil
	default:
		return prime.Change{}, fmt.Errorf("%w: unknown event %q", ErrBadPayload, p.Event)
	}
}

// Sign returns the signature header value for body.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks header against the HMAC-SHA256 of body in constant time.
func Verify(secret, body []byte, header string) error {
	hexSig, ok := strings.CutPrefix(strings.TrimSpace(header), "sha256=")
	if !ok {
		return ErrBadSignature
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return ErrBadSignature
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return ErrBadSignature
	}
	return nil
}

// Primer runs the prime pipeline.
type Primer interface {
	Prime(ctx context.Context, change prime.Change) *prime.Report
}

// Response is the body of an accepted delivery.
type Response struct {
	DeliveryID string        `json:"delivery_id"`
	Event      string        `json:"event"`
	Report     *prime.Report `json:"report"`
}

// Handler returns the echo handler for POST /webhooks/content.
func Handler(secret []byte, primer Primer, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()

		deliveryID := req.Header.Get(DeliveryHeader)
		if deliveryID == "" {
			deliveryID = uuid.NewString()
		}
		log := logger.With().Str("delivery_id", deliveryID).Logger()

		body, err := io.ReadAll(io.LimitReader(req.Body, maxBodyBytes))
		if err != nil {
			deliveries.WithLabelValues("unknown", "bad_request").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, "can not read body").SetInternal(err)
		}

		if err := Verify(secret, body, req.Header.Get(SignatureHeader)); err != nil {
			deliveries.WithLabelValues("unknown", "unauthorized").Inc()
			log.Warn().Str("remote_ip", c.RealIP()).Msg("Rejected webhook with bad signature")
			return echo.NewHTTPError(http.StatusUnauthorized, ErrBadSignature.Error())
		}

		var payload Payload
		if err := json.Unmarshal(body, &payload); err != nil {
			deliveries.WithLabelValues("unknown", "bad_request").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, "can not understand the requested json").SetInternal(err)
		}
		change, err := payload.Change()
		if err != nil {
			deliveries.WithLabelValues("unknown", "bad_request").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}

		log.Info().
			Str("event", payload.Event).
			Strs("slugs", change.Slugs).
			Strs("tags", change.Tags).
			Msg("Webhook accepted")

		report := primer.Prime(req.Context(), change)
		deliveries.WithLabelValues(payload.Event, "accepted").Inc()

		return c.JSON(http.StatusAccepted, Response{
			DeliveryID: deliveryID,
			Event:      payload.Event,
			Report:     report,
		})
	}
}
