package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

type contextKey struct{}

// DefaultClient names requests authorized with the configured default key.
const DefaultClient = "default"

// ClientFromContext returns the authorized client name, if any.
func ClientFromContext(ctx context.Context) string {
	client, _ := ctx.Value(contextKey{}).(string)
	return client
}

// WithClient stores the client name on ctx.
func WithClient(ctx context.Context, client string) context.Context {
	return context.WithValue(ctx, contextKey{}, client)
}

// Authenticator checks bearer keys against the default key and a KeyStore.
type Authenticator struct {
	apiKey string
	store  *KeyStore
	log    *slog.Logger
}

func NewAuthenticator(apiKey string, store *KeyStore, log *slog.Logger) *Authenticator {
	return &Authenticator{apiKey: apiKey, store: store, log: log}
}

// Enabled reports whether any credential source is configured.
func (a *Authenticator) Enabled() bool {
	return a != nil && (a.apiKey != "" || (a.store != nil && a.store.path != ""))
}

// Authorize resolves key to a client name.
func (a *Authenticator) Authorize(key string) (string, bool) {
	if client, ok := a.store.Lookup(key); ok {
		if client == "" {
			client = DefaultClient
		}
		return client, true
	}
	if a.apiKey != "" && subtle.ConstantTimeCompare([]byte(key), []byte(a.apiKey)) == 1 {
		return DefaultClient, true
	}
	return "", false
}

// Middleware rejects requests without a valid bearer key. It is a no-op
// when authentication is disabled.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	if !a.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeDetail(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		client, ok := a.Authorize(key)
		if !ok {
			writeDetail(w, http.StatusForbidden, "Invalid API Key")
			return
		}
		if client == DefaultClient {
			a.log.Info("authorized request using the default api key")
		} else {
			a.log.Info("authorized request", slog.String("client", client))
		}
		next.ServeHTTP(w, r.WithContext(WithClient(r.Context(), client)))
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}
