package http

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/fjod/go_cart/fixed-checkout/internal/i18n"
)

type contextKey string

const languageKey contextKey = "language"

// SignatureHeader carries the provider's HMAC-SHA256 of the callback body,
// hex encoded, optionally prefixed with "sha256=".
const SignatureHeader = "X-Payment-Signature"

// LanguageMiddleware negotiates the response language from Accept-Language
func LanguageMiddleware(translator *i18n.Translator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			lang := translator.Negotiate(r.Header.Get("Accept-Language"))
			w.Header().Set("Content-Language", lang)
			ctx := context.WithValue(r.Context(), languageKey, lang)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestIDHeader echoes the chi request id back to the caller
func RequestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if requestID := middleware.GetReqID(r.Context()); requestID != "" {
			w.Header().Set(middleware.RequestIDHeader, requestID)
		}
		next.ServeHTTP(w, r)
	})
}

// BodyLimit caps request bodies at maxBytes
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && maxBytes > 0 {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SignedCallback only lets through requests signed with secret. Without a
// secret every request is refused.
func SignedCallback(secret string) func(http.Handler) http.Handler {
	key := []byte(secret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				respondError(w, http.StatusBadRequest, "invalid_request", "unreadable body")
				return
			}
			if len(key) == 0 || !validSignature(key, body, r.Header.Get(SignatureHeader)) {
				slog.WarnContext(r.Context(), "payment callback with invalid signature",
					slog.String("remote_addr", r.RemoteAddr))
				respondError(w, http.StatusUnauthorized, "invalid_signature", "missing or invalid signature")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}
}

func validSignature(key, body []byte, header string) bool {
	sig, err := hex.DecodeString(strings.TrimPrefix(header, "sha256="))
	if err != nil || len(sig) == 0 {
		return false
	}
	return hmac.Equal(sig, sign(key, body))
}

func sign(key, body []byte) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return mac.Sum(nil)
}

func getLanguage(ctx context.Context) string {
	if lang, ok := ctx.Value(languageKey).(string); ok {
		return lang
	}
	return ""
}
