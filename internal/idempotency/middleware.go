package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/apgms/apgms/internal/platform/httpx"
	"github.com/apgms/apgms/internal/shared"
)

// HeaderKey carries the client's idempotency key.
const HeaderKey = "Idempotency-Key"

// HeaderReplay marks a response served from the store instead of a fresh
// execution.
const HeaderReplay = "X-Idempotency-Replay"

const maxPayloadBytes = 1 << 20

// Middleware wraps mutating endpoints with the store. The scope keeps keys
// from colliding across endpoints that share a router.
func Middleware(logger *slog.Logger, store *Store, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(HeaderKey)
			if key == "" {
				httpx.Problem(w, http.StatusBadRequest, "Missing Idempotency Key", "set the Idempotency-Key header on this endpoint")
				return
			}
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
			if err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
				return
			}
			_ = r.Body.Close()

			outcome, err := store.Execute(r.Context(), identity.OrgID, scope, key, HashPayload(payload), func(ctx context.Context) (int, []byte, error) {
				rec := newRecorder()
				r2 := r.Clone(ctx)
				r2.Body = io.NopCloser(bytes.NewReader(payload))
				next.ServeHTTP(rec, r2)
				return rec.status, rec.body.Bytes(), nil
			})
			if err != nil {
				switch {
				case errors.Is(err, ErrConflict):
					httpx.Problem(w, http.StatusConflict, "Idempotency Conflict", "this key was used with a different payload")
				case errors.Is(err, ErrInFlight):
					httpx.Problem(w, http.StatusConflict, "Request In Flight", "the first request with this key has not finished")
				default:
					logger.Error("idempotent execute", slog.String("scope", scope), slog.Any("error", err))
					httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
				}
				return
			}
			if outcome.Replayed {
				w.Header().Set(HeaderReplay, "true")
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(outcome.Status)
			_, _ = w.Write(outcome.Body)
		})
	}
}

type recorder struct {
	status int
	body   bytes.Buffer
	header http.Header
}

func newRecorder() *recorder {
	return &recorder{status: http.StatusOK, header: make(http.Header)}
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) { r.status = status }

func (r *recorder) Write(p []byte) (int, error) { return r.body.Write(p) }
