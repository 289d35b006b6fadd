// internal/server/mux.go
// Package server implements the HTTP handlers and routing for the gift
// service: the user-facing submission/listing/view endpoints, the secure
// share-link endpoint, and the admin state-machine endpoints, all behind
// JWT authentication against the identity service's JWKS.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	errordefs "github.com/MemoryHaze/memoryhaze-gift-go/internal/errors"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/gift"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/identity"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/jwks"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/metrics"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/model"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/schema"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/storage"
)

// ContextKey is used for context values to avoid collisions
// when storing values in request context
type ContextKey string

const (
	// Context keys for storing request-scoped values
	ContextKeyPrincipal     ContextKey = "principal"     // Authenticated caller
	ContextKeyCorrelationID ContextKey = "correlationId" // Unique ID for request tracking
)

// Mux handles HTTP requests for the gift service.
type Mux struct {
	mux         *http.ServeMux
	s           storage.Store
	svc         *gift.Service
	id          *identity.Client // Auth service directory client (may be nil)
	jwksClient  *jwks.Client
	jwtIssuer   string
	jwtAudience string
	validator   *schema.Validator
	metrics     *metrics.Metrics
}

// NewMux creates a new HTTP mux with all gift endpoints.
func NewMux(s storage.Store, svc *gift.Service, id *identity.Client, jwtIssuer, jwtAudience string, jwksClient *jwks.Client) *http.ServeMux {
	validator, err := schema.NewValidator()
	if err != nil {
		slog.Error("failed to initialize schema validator", "error", err)
		os.Exit(1)
	}

	// Use provided JWKS client or create a new one
	if jwksClient == nil {
		jwksClient = jwks.NewClient(fmt.Sprintf("%s/.well-known/jwks.json", jwtIssuer))
	}

	m := &Mux{
		mux:         http.NewServeMux(),
		s:           s,
		svc:         svc,
		id:          id,
		jwksClient:  jwksClient,
		jwtIssuer:   jwtIssuer,
		jwtAudience: jwtAudience,
		validator:   validator,
		metrics:     metrics.NewMetrics(),
	}

	// Health and metrics endpoints
	m.mux.HandleFunc("/healthz", m.handleHealthz)
	m.mux.HandleFunc("/readyz", m.handleReadyz)
	m.mux.Handle("/metrics", promhttp.Handler())

	// User-facing endpoints
	m.mux.HandleFunc("POST /v1/gifts/request", m.withAuth(m.handleCreateGift))
	m.mux.HandleFunc("GET /v1/gifts", m.withAuth(m.handleListGifts))
	m.mux.HandleFunc("GET /v1/gifts/{id}", m.withAuth(m.handleGetGift))
	m.mux.HandleFunc("GET /v1/gifts/{id}/{token}", m.withAuth(m.handleGetGiftShared))

	// Admin endpoints
	m.mux.HandleFunc("GET /v1/admin/requests", m.withAdmin(m.handleAdminQueue))
	m.mux.HandleFunc("PATCH /v1/admin/requests/{id}/verify", m.withAdmin(m.handleVerify))
	m.mux.HandleFunc("PATCH /v1/admin/requests/{id}/reject", m.withAdmin(m.handleReject))
	m.mux.HandleFunc("PATCH /v1/admin/requests/{id}/complete", m.withAdmin(m.handleComplete))
	m.mux.HandleFunc("PATCH /v1/admin/gifts/{id}/access", m.withAdmin(m.handleSetAccess))
	m.mux.HandleFunc("DELETE /v1/admin/gifts/{id}/permanent", m.withAdmin(m.handlePermanentDelete))

	return m.mux
}

// statusRecorder captures the response status for request logging/metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

// withAuth applies correlation id propagation, JWT authentication and
// request completion logging.
func (m *Mux) withAuth(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Add correlation ID if not present
		correlationID := r.Header.Get("X-Correlation-Id")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyCorrelationID, correlationID))
		w.Header().Set("X-Correlation-Id", correlationID)

		principal, err := m.authenticate(r)
		if err != nil {
			var errorDef *errordefs.Error
			if e, ok := err.(*errordefs.Error); ok {
				errorDef = e
				errorDef.CorrelationID = correlationID
			} else {
				errorDef = errordefs.New(errordefs.GIFT_AUTHN, err.Error(), correlationID)
			}
			m.writeErrorDef(w, errorDef)
			m.logRequest(r, errorDef.HTTPStatus, time.Since(start), correlationID, err)
			return
		}
		r = r.WithContext(context.WithValue(r.Context(), ContextKeyPrincipal, principal))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)

		duration := time.Since(start)
		m.metrics.HTTPRequestTotal.WithLabelValues(r.Method, r.URL.Path, fmt.Sprintf("%d", rec.status)).Inc()
		m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, r.URL.Path, fmt.Sprintf("%d", rec.status)).Observe(duration.Seconds())
		m.logRequest(r, rec.status, duration, correlationID, nil)
	}
}

// withAdmin is withAuth plus the admin role gate.
func (m *Mux) withAdmin(h http.HandlerFunc) http.HandlerFunc {
	return m.withAuth(func(w http.ResponseWriter, r *http.Request) {
		p := principalFrom(r.Context())
		if p == nil || !p.Admin {
			correlationID := correlationFrom(r.Context())
			m.writeErrorDef(w, errordefs.New(errordefs.GIFT_ADMIN_REQUIRED, "administrator role required", correlationID))
			return
		}
		h(w, r)
	})
}

// authenticate validates the bearer token and returns the caller principal.
func (m *Mux) authenticate(r *http.Request) (*jwks.Principal, error) {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, errordefs.New(errordefs.GIFT_AUTHN, "missing Authorization header", "")
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, errordefs.New(errordefs.GIFT_AUTHN, "invalid Authorization header format", "")
	}
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")

	principal, err := m.jwksClient.Authenticate(r.Context(), tokenString, m.jwtIssuer, m.jwtAudience)
	if err != nil {
		errStr := err.Error()
		switch {
		case strings.Contains(errStr, "expired"):
			return nil, errordefs.New(errordefs.GIFT_JWT_EXPIRED, "JWT token expired", "")
		case strings.Contains(errStr, "invalid issuer"):
			return nil, errordefs.New(errordefs.GIFT_JWT_INVALID, "invalid JWT issuer", "")
		case strings.Contains(errStr, "invalid audience"):
			return nil, errordefs.New(errordefs.GIFT_JWT_INVALID, "invalid JWT audience", "")
		case strings.Contains(errStr, "kid"):
			return nil, errordefs.New(errordefs.GIFT_JWT_MALFORMED, "missing or invalid kid in JWT header", "")
		case strings.Contains(errStr, "signature"), strings.Contains(errStr, "verify"):
			return nil, errordefs.New(errordefs.GIFT_JWT_INVALID, "invalid JWT signature", "")
		default:
			return nil, errordefs.New(errordefs.GIFT_JWT_INVALID, fmt.Sprintf("failed to validate JWT: %v", err), "")
		}
	}
	return principal, nil
}

func principalFrom(ctx context.Context) *jwks.Principal {
	p, _ := ctx.Value(ContextKeyPrincipal).(*jwks.Principal)
	return p
}

func correlationFrom(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyCorrelationID).(string)
	return id
}

// writeSuccess writes a successful response
func (m *Mux) writeSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"data": data,
	}
	_ = json.NewEncoder(w).Encode(response)
}

// writeErrorDef writes an error response using the error definitions package
func (m *Mux) writeErrorDef(w http.ResponseWriter, err *errordefs.Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.HTTPStatus)
	errBody := map[string]interface{}{
		"code":          string(err.Code),
		"message":       err.Message,
		"correlationId": err.CorrelationID,
	}
	if err.Details != nil {
		errBody["details"] = err.Details
	}
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"error": errBody})
}

// mapDomainError translates gift domain errors to wire error definitions.
// Unknown errors become opaque internals so storage detail never leaks.
func (m *Mux) mapDomainError(err error, correlationID string) *errordefs.Error {
	var ve *gift.ValidationError
	if errors.As(err, &ve) {
		return errordefs.NewWithDetails(errordefs.GIFT_VALIDATION, "validation failed", correlationID, ve.Fields)
	}

	var te *gift.TransitionError
	if errors.As(err, &te) {
		return errordefs.NewWithDetails(errordefs.GIFT_INVALID_TRANSITION, te.Error(), correlationID,
			map[string]string{"current": string(te.Current), "expected": te.Expected})
	}

	var oe *gift.OperationError
	if errors.As(err, &oe) {
		return errordefs.New(errordefs.GIFT_INVALID_OPERATION, oe.Error(), correlationID)
	}

	var ad *gift.AccessDeniedError
	if errors.As(err, &ad) {
		if ad.IntendedForDifferentUser {
			return errordefs.NewWithDetails(errordefs.GIFT_ACCESS_DENIED,
				"this gift is not intended for you", correlationID,
				map[string]bool{"intendedForDifferentUser": true})
		}
		return errordefs.New(errordefs.GIFT_ACCESS_DENIED, "this gift does not belong to you", correlationID)
	}

	switch {
	case errors.Is(err, gift.ErrInvalidLink):
		return errordefs.New(errordefs.GIFT_LINK_INVALID,
			"the link you used appears to be corrupted or invalid", correlationID)
	case errors.Is(err, gift.ErrNotFound):
		return errordefs.New(errordefs.GIFT_NOT_FOUND, "gift not found", correlationID)
	case errors.Is(err, gift.ErrGone):
		return errordefs.New(errordefs.GIFT_GONE,
			"this gift has been permanently deleted and is no longer available", correlationID)
	case errors.Is(err, gift.ErrAccessDisabled):
		return errordefs.New(errordefs.GIFT_ACCESS_DISABLED, "access to this gift has been disabled", correlationID)
	case errors.Is(err, gift.ErrAccessExpired):
		return errordefs.New(errordefs.GIFT_ACCESS_EXPIRED,
			"this gift has expired and is no longer accessible", correlationID)
	case errors.Is(err, gift.ErrExpiredGrant):
		return errordefs.New(errordefs.GIFT_EXPIRED_GRANT,
			"cannot re-enable access past expiry without resetting the window", correlationID)
	default:
		slog.Error("internal error", "error", err, "correlation_id", correlationID)
		return errordefs.New(errordefs.GIFT_INTERNAL, "internal server error", correlationID)
	}
}

// logRequest logs request details
func (m *Mux) logRequest(r *http.Request, status int, duration time.Duration, correlationID string, err error) {
	attrs := []slog.Attr{
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.Duration("duration", duration),
		slog.String("user_agent", r.UserAgent()),
		slog.String("remote_addr", r.RemoteAddr),
	}

	if correlationID != "" {
		attrs = append(attrs, slog.String("correlation_id", correlationID))
	}

	if p := principalFrom(r.Context()); p != nil {
		attrs = append(attrs, slog.String("user_id", p.UserID))
	}

	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
		slog.LogAttrs(r.Context(), slog.LevelError, "request completed with error", attrs...)
	} else {
		slog.LogAttrs(r.Context(), slog.LevelInfo, "request completed", attrs...)
	}
}

// handleHealthz handles liveness health check requests
func (m *Mux) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReadyz handles readiness health check requests
func (m *Mux) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	// A miss proves the store answers; any other failure means not ready.
	_, err := m.s.GetUser(ctx, "health-check")
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}

	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// decodeBody validates the raw body against the named schema and decodes it
// into dst.
func (m *Mux) decodeBody(r *http.Request, body string, dst interface{}) error {
	defer r.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	if err := m.validator.Validate(body, raw); err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}

// handleCreateGift handles POST /v1/gifts/request
func (m *Mux) handleCreateGift(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("gift-service").Start(r.Context(), "handleCreateGift")
	defer span.End()
	correlationID := correlationFrom(ctx)
	p := principalFrom(ctx)

	var req model.CreateGiftRequest
	if err := m.decodeBody(r, schema.BodyGiftRequest, &req); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		m.writeErrorDef(w, errordefs.New(errordefs.GIFT_VALIDATION, err.Error(), correlationID))
		return
	}

	span.SetAttributes(
		attribute.String("occasion", req.Occasion),
		attribute.String("plan", req.Plan),
		attribute.Int("photos", len(req.Photos)),
	)

	// Mirror the externally issued identity before the first gift insert.
	email := p.Email
	if email == "" && m.id != nil {
		if rec, err := m.id.Get(ctx, p.UserID); err == nil {
			email = rec.Email
		}
	}
	if _, err := m.s.EnsureUser(ctx, p.UserID, email); err != nil {
		m.writeErrorDef(w, m.mapDomainError(err, correlationID))
		return
	}

	g, err := m.svc.Create(ctx, p.UserID, req)
	if err != nil {
		span.SetStatus(codes.Error, "create failed")
		m.writeErrorDef(w, m.mapDomainError(err, correlationID))
		return
	}

	m.writeSuccess(w, http.StatusCreated, map[string]interface{}{
		"gift":    g.Summary(),
		"message": "Gift request submitted successfully! We will review your order and notify you once it's ready.",
	})
}

// handleListGifts handles GET /v1/gifts
func (m *Mux) handleListGifts(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("gift-service").Start(r.Context(), "handleListGifts")
	defer span.End()
	correlationID := correlationFrom(ctx)
	p := principalFrom(ctx)

	summaries, err := m.svc.ListOwn(ctx, p.UserID)
	if err != nil {
		span.SetStatus(codes.Error, "list failed")
		m.writeErrorDef(w, m.mapDomainError(err, correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"gifts": summaries})
}

// handleGetGift handles GET /v1/gifts/{id}
func (m *Mux) handleGetGift(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("gift-service").Start(r.Context(), "handleGetGift")
	defer span.End()
	correlationID := correlationFrom(ctx)
	p := principalFrom(ctx)
	giftID := r.PathValue("id")

	g, err := m.svc.ViewOwn(ctx, p.UserID, giftID)
	if err != nil {
		span.SetStatus(codes.Error, "gate refused")
		m.writeErrorDef(w, m.mapDomainError(err, correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"gift": g})
}

// handleGetGiftShared handles GET /v1/gifts/{id}/{token}, the secure link
// from the notification email.
func (m *Mux) handleGetGiftShared(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("gift-service").Start(r.Context(), "handleGetGiftShared")
	defer span.End()
	correlationID := correlationFrom(ctx)
	p := principalFrom(ctx)
	giftID := r.PathValue("id")
	token := r.PathValue("token")

	g, err := m.svc.ViewShared(ctx, p.UserID, giftID, token)
	if err != nil {
		span.SetStatus(codes.Error, "gate refused")
		m.writeErrorDef(w, m.mapDomainError(err, correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"gift": g, "validated": true})
}

// handleAdminQueue handles GET /v1/admin/requests?status=
func (m *Mux) handleAdminQueue(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("gift-service").Start(r.Context(), "handleAdminQueue")
	defer span.End()
	correlationID := correlationFrom(ctx)

	status := model.Status(r.URL.Query().Get("status"))
	gifts, err := m.svc.ListByStatus(ctx, status)
	if err != nil {
		span.SetStatus(codes.Error, "list failed")
		m.writeErrorDef(w, m.mapDomainError(err, correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"gifts": gifts})
}

// handleVerify handles PATCH /v1/admin/requests/{id}/verify
func (m *Mux) handleVerify(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("gift-service").Start(r.Context(), "handleVerify")
	defer span.End()
	correlationID := correlationFrom(ctx)

	g, err := m.svc.Verify(ctx, r.PathValue("id"))
	if err != nil {
		span.SetStatus(codes.Error, "verify failed")
		m.writeErrorDef(w, m.mapDomainError(err, correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"gift": g})
}

// handleReject handles PATCH /v1/admin/requests/{id}/reject
func (m *Mux) handleReject(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("gift-service").Start(r.Context(), "handleReject")
	defer span.End()
	correlationID := correlationFrom(ctx)

	var req model.RejectGiftRequest
	if err := m.decodeBody(r, schema.BodyGiftReject, &req); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		m.writeErrorDef(w, errordefs.New(errordefs.GIFT_VALIDATION, err.Error(), correlationID))
		return
	}

	g, err := m.svc.Reject(ctx, r.PathValue("id"), req.Reason)
	if err != nil {
		span.SetStatus(codes.Error, "reject failed")
		m.writeErrorDef(w, m.mapDomainError(err, correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"gift": g})
}

// handleComplete handles PATCH /v1/admin/requests/{id}/complete
func (m *Mux) handleComplete(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("gift-service").Start(r.Context(), "handleComplete")
	defer span.End()
	correlationID := correlationFrom(ctx)

	var req model.CompleteGiftRequest
	if err := m.decodeBody(r, schema.BodyGiftComplete, &req); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		m.writeErrorDef(w, errordefs.New(errordefs.GIFT_VALIDATION, err.Error(), correlationID))
		return
	}

	g, err := m.svc.Complete(ctx, r.PathValue("id"), req)
	if err != nil {
		span.SetStatus(codes.Error, "complete failed")
		m.writeErrorDef(w, m.mapDomainError(err, correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"gift": g})
}

// handleSetAccess handles PATCH /v1/admin/gifts/{id}/access
func (m *Mux) handleSetAccess(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("gift-service").Start(r.Context(), "handleSetAccess")
	defer span.End()
	correlationID := correlationFrom(ctx)

	var req model.SetAccessRequest
	if err := m.decodeBody(r, schema.BodyGiftAccess, &req); err != nil {
		span.SetStatus(codes.Error, "invalid body")
		m.writeErrorDef(w, errordefs.New(errordefs.GIFT_VALIDATION, err.Error(), correlationID))
		return
	}

	g, err := m.svc.SetAccess(ctx, r.PathValue("id"), req)
	if err != nil {
		span.SetStatus(codes.Error, "set access failed")
		m.writeErrorDef(w, m.mapDomainError(err, correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"gift": g})
}

// handlePermanentDelete handles DELETE /v1/admin/gifts/{id}/permanent
func (m *Mux) handlePermanentDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("gift-service").Start(r.Context(), "handlePermanentDelete")
	defer span.End()
	correlationID := correlationFrom(ctx)

	g, err := m.svc.PermanentDelete(ctx, r.PathValue("id"))
	if err != nil {
		span.SetStatus(codes.Error, "permanent delete failed")
		m.writeErrorDef(w, m.mapDomainError(err, correlationID))
		return
	}

	m.writeSuccess(w, http.StatusOK, map[string]interface{}{"gift": g})
}
