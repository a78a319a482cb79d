package server

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
)

const (
	signatureHeader = "X-HubSpot-Signature-v3"
	timestampHeader = "X-HubSpot-Request-Timestamp"
	portalHeader    = "X-HubSpot-Portal-Id"

	// Requests older or newer than this are replays or clock drift.
	maxTimestampSkew = 5 * time.Minute
)

// SignatureMiddleware validates the v3 request signature: base64 of
// HMAC-SHA256(secret, method + absolute URL + body + timestamp). The
// timestamp header is unix milliseconds. When allowedPortals is non-empty
// the portal header must match one of its entries.
func SignatureMiddleware(secret string, allowedPortals []string, log zerolog.Logger) func(http.Handler) http.Handler {
	sigLog := log.With().Str("component", "signature").Logger()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			signature := r.Header.Get(signatureHeader)
			timestamp := r.Header.Get(timestampHeader)
			if signature == "" || timestamp == "" {
				sigLog.Warn().Str("path", r.URL.Path).Msg("Missing signature headers")
				writeUnauthorized(w, "missing signature")
				return
			}

			millis, err := strconv.ParseInt(timestamp, 10, 64)
			if err != nil {
				writeUnauthorized(w, "invalid timestamp")
				return
			}
			skew := time.Since(time.UnixMilli(millis))
			if skew > maxTimestampSkew || skew < -maxTimestampSkew {
				sigLog.Warn().Str("timestamp", timestamp).Msg("Signature timestamp outside allowed window")
				writeUnauthorized(w, "timestamp outside allowed window")
				return
			}

			if len(allowedPortals) > 0 {
				portal := r.Header.Get(portalHeader)
				if !containsString(allowedPortals, portal) {
					sigLog.Warn().Str("portal", portal).Msg("Portal not in allow-list")
					writeUnauthorized(w, "unknown portal")
					return
				}
			}

			body, err := io.ReadAll(r.Body)
			if err != nil {
				writeUnauthorized(w, "unreadable body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			mac := hmac.New(sha256.New, []byte(secret))
			mac.Write([]byte(r.Method))
			mac.Write([]byte(requestURL(r)))
			mac.Write(body)
			mac.Write([]byte(timestamp))
			expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

			if !hmac.Equal([]byte(expected), []byte(signature)) {
				sigLog.Warn().Str("path", r.URL.Path).Msg("Signature mismatch")
				writeUnauthorized(w, "invalid signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// requestURL reconstructs the absolute URL the caller signed. The scheme
// comes from the forwarding proxy when present.
func requestURL(r *http.Request) string {
	scheme := "https"
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	} else if r.TLS == nil {
		scheme = "http"
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
