// Package gateway serves the participation HTTP API, health and metrics on a grpc-gateway mux.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/grpc-ecosystem/grpc-gateway/v2/runtime"
	"github.com/rbroggi/communityevents/internal/core/model"
	"github.com/rbroggi/communityevents/internal/metrics"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	routeRegister = "/v1/events/{event_id}/participations"
	routeCancel   = "/v1/participations/{participation_id}:cancel"
	routeHealthz  = "/healthz"
	routeMetrics  = "/metrics"
)

type registrationUsecase interface {
	Register(ctx context.Context, args model.RegisterArgs) (*model.RegisterResponse, error)
	Cancel(ctx context.Context, args model.CancelArgs) (*model.CancelResponse, error)
}

type healthChecker interface {
	Healthz(ctx context.Context) error
}

// GatewayArgs are the arguments to build the mux.
type GatewayArgs struct {
	// Registration serves the participation routes. They are not mounted when nil.
	Registration registrationUsecase

	// Health backs /healthz.
	Health healthChecker
}

// NewMux builds the HTTP mux.
func NewMux(args GatewayArgs) (*runtime.ServeMux, error) {
	mux := runtime.NewServeMux()
	g := &gateway{mux: mux, registration: args.Registration, health: args.Health}

	routes := []route{
		{method: http.MethodGet, pattern: routeHealthz, handler: g.healthz},
		{method: http.MethodGet, pattern: routeMetrics, handler: g.serveMetrics},
	}
	if args.Registration != nil {
		routes = append(routes,
			route{method: http.MethodPost, pattern: routeRegister, handler: g.register},
			route{method: http.MethodPost, pattern: routeCancel, handler: g.cancel},
		)
	}
	for _, r := range routes {
		if err := mux.HandlePath(r.method, r.pattern, r.handler); err != nil {
			return nil, err
		}
	}
	return mux, nil
}

type route struct {
	method  string
	pattern string
	handler runtime.HandlerFunc
}

type gateway struct {
	mux          *runtime.ServeMux
	registration registrationUsecase
	health       healthChecker
}

type registerRequest struct {
	UserID     string `json:"user_id"`
	EmailOptIn bool   `json:"email_opt_in"`
}

type participationJSON struct {
	ID           string     `json:"id"`
	EventID      string     `json:"event_id"`
	UserID       string     `json:"user_id"`
	Status       string     `json:"status"`
	RegisteredAt time.Time  `json:"registered_at"`
	CancelledAt  *time.Time `json:"cancelled_at"`
	EmailOptIn   bool       `json:"email_opt_in"`
}

type participationResponse struct {
	Participation participationJSON `json:"participation"`
	Reactivated   bool              `json:"reactivated,omitempty"`
}

func toParticipationJSON(p model.EventParticipation) participationJSON {
	out := participationJSON{
		ID:           p.ID,
		EventID:      p.EventID,
		UserID:       p.UserID,
		Status:       string(p.Status),
		RegisteredAt: p.RegisteredAt,
		EmailOptIn:   p.EmailOptIn,
	}
	if !p.CancelledAt.IsZero() {
		cancelledAt := p.CancelledAt
		out.CancelledAt = &cancelledAt
	}
	return out
}

func (g *gateway) register(w http.ResponseWriter, r *http.Request, params map[string]string) {
	inbound, outbound := runtime.MarshalerForRequest(g.mux, r)
	var req registerRequest
	if err := inbound.NewDecoder(r.Body).Decode(&req); err != nil {
		g.fail(w, r, routeRegister, outbound, status.Errorf(codes.InvalidArgument, "malformed body: %v", err))
		return
	}
	resp, err := g.registration.Register(r.Context(), model.RegisterArgs{
		EventID:    params["event_id"],
		UserID:     req.UserID,
		EmailOptIn: req.EmailOptIn,
	})
	if err != nil {
		g.fail(w, r, routeRegister, outbound, toStatus(err, "event not found"))
		return
	}
	g.write(w, routeRegister, outbound, http.StatusCreated, participationResponse{
		Participation: toParticipationJSON(resp.Participation),
		Reactivated:   resp.Reactivated,
	})
}

func (g *gateway) cancel(w http.ResponseWriter, r *http.Request, params map[string]string) {
	_, outbound := runtime.MarshalerForRequest(g.mux, r)
	resp, err := g.registration.Cancel(r.Context(), model.CancelArgs{ParticipationID: params["participation_id"]})
	if err != nil {
		g.fail(w, r, routeCancel, outbound, toStatus(err, "participation not found"))
		return
	}
	g.write(w, routeCancel, outbound, http.StatusOK, participationResponse{Participation: toParticipationJSON(resp.Participation)})
}

func (g *gateway) healthz(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	_, outbound := runtime.MarshalerForRequest(g.mux, r)
	if g.health != nil {
		if err := g.health.Healthz(r.Context()); err != nil {
			log.WithError(err).Warn("healthz failed")
			g.fail(w, r, routeHealthz, outbound, status.Error(codes.Unavailable, "unhealthy"))
			return
		}
	}
	g.write(w, routeHealthz, outbound, http.StatusOK, map[string]string{"status": "Ok"})
}

func (g *gateway) serveMetrics(w http.ResponseWriter, r *http.Request, _ map[string]string) {
	metrics.Handler().ServeHTTP(w, r)
}

func (g *gateway) write(w http.ResponseWriter, path string, outbound runtime.Marshaler, code int, body interface{}) {
	data, err := outbound.Marshal(body)
	if err != nil {
		log.WithError(err).Error("error marshaling response")
		code = http.StatusInternalServerError
		data = nil
	}
	w.Header().Set("Content-Type", outbound.ContentType(body))
	w.WriteHeader(code)
	if _, err := w.Write(data); err != nil {
		log.WithError(err).Debug("error writing response")
	}
	metrics.APIRequests.WithLabelValues(path, strconv.Itoa(code)).Inc()
}

func (g *gateway) fail(w http.ResponseWriter, r *http.Request, path string, outbound runtime.Marshaler, err error) {
	runtime.HTTPError(r.Context(), g.mux, outbound, w, r, err)
	metrics.APIRequests.WithLabelValues(path, strconv.Itoa(runtime.HTTPStatusFromCode(status.Code(err)))).Inc()
}

// toStatus maps usecase errors to gRPC statuses, which the mux renders as 404, 409 and 400.
func toStatus(err error, notFound string) error {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, notFound)
	case errors.Is(err, model.ErrAlreadyRegistered):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, model.ErrInvalidArgument):
		return status.Error(codes.InvalidArgument, err.Error())
	}
	log.WithError(err).Error("error invoking participation usecase")
	return status.Error(codes.Internal, "internal error")
}
