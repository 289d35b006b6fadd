// Package conformance provides an end-to-end test harness for verifying the
// gift service's behavior over its public HTTP surface.
package conformance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MemoryHaze/memoryhaze-gift-go/internal/assets"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/event"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/gift"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/jwks"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/notify"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/server"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/storage"
	"github.com/MemoryHaze/memoryhaze-gift-go/internal/token"
)

// Config holds configuration for the conformance test harness.
type Config struct {
	// JWTIssuer is the expected JWT issuer
	JWTIssuer string

	// JWTAudience is the expected JWT audience
	JWTAudience string

	// EncryptionSecret derives the share-link token key
	EncryptionSecret string
}

// recordingAssets is an assets.Store that records every deletion so
// scenarios can assert on asset cleanup.
type recordingAssets struct {
	mu       sync.Mutex
	deleted  []string
	prefixes []string
}

func (r *recordingAssets) DeleteByID(ctx context.Context, assetID string, kind assets.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, fmt.Sprintf("%s:%s", kind, assetID))
	return nil
}

func (r *recordingAssets) DeleteByPrefix(ctx context.Context, prefix string, kind assets.Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prefixes = append(r.prefixes, fmt.Sprintf("%s:%s", kind, prefix))
	return nil
}

// Deleted returns a snapshot of recorded per-asset deletions.
func (r *recordingAssets) Deleted() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.deleted...)
}

// Harness drives the gift service through a real HTTP server backed by
// in-memory storage.
type Harness struct {
	server *httptest.Server
	store  storage.Store
	pub    event.Publisher
	codec  *token.Codec
	assets *recordingAssets
	cfg    Config
}

// NewHarness creates a new conformance test harness.
func NewHarness(cfg Config) (*Harness, error) {
	store := storage.NewMemory()
	pub := event.NewPublisher("")
	rec := &recordingAssets{}

	codec, err := token.NewCodec(cfg.EncryptionSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token codec: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := gift.NewService(store, rec, pub, notify.NewNoop(), codec, nil, logger,
		"https://memoryhaze.example")

	mux := server.NewMux(store, svc, nil, cfg.JWTIssuer, cfg.JWTAudience, jwks.NewTestClient())

	return &Harness{
		server: httptest.NewServer(mux),
		store:  store,
		pub:    pub,
		codec:  codec,
		assets: rec,
		cfg:    cfg,
	}, nil
}

// URL returns the base URL of the test server.
func (h *Harness) URL() string {
	return h.server.URL
}

// Close shuts down the test server and cleans up resources.
func (h *Harness) Close() {
	h.server.Close()
	h.pub.Close()
}

// Token mints a JWT for the test-mode JWKS client.
func (h *Harness) Token(sub, role string) (string, error) {
	claims := jwt.MapClaims{
		"iss":   h.cfg.JWTIssuer,
		"aud":   h.cfg.JWTAudience,
		"sub":   sub,
		"email": sub + "@example.com",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
	if role != "" {
		claims["role"] = role
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("conformance"))
}

// ShareToken encrypts a share-link token naming the given user.
func (h *Harness) ShareToken(userID string) (string, error) {
	return h.codec.Encode(userID)
}

// Do performs an authenticated JSON request against the harness server and
// decodes the response body.
func (h *Harness) Do(method, path, bearer string, body interface{}) (int, map[string]interface{}, error) {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		rd = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, h.server.URL+path, rd)
	if err != nil {
		return 0, nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := h.server.Client().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	var decoded map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded, nil
}

// SubmissionBody returns a gift request body that passes validation.
func SubmissionBody(plan string) map[string]interface{} {
	scenario := strings.Repeat("the road trip where everything went wrong but we laughed anyway ", 3)
	return map[string]interface{}{
		"recipientName": "Sam",
		"occasion":      "birthday",
		"occasionDate":  "2026-11-02",
		"scenarios":     []string{scenario, scenario, scenario},
		"songGenre":     "indie folk",
		"photos": []string{
			"https://cdn.example.com/upload/v42/beach.jpg",
			"https://cdn.example.com/upload/v42/cabin.jpg",
		},
		"plan": plan,
	}
}
