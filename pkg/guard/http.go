package guard

import (
	"net/http"
)

// Middleware returns HTTP middleware that validates every request under
// the given scheme before passing it to the next handler. Rejected
// requests are answered directly; allowed requests are forwarded with
// the validated headers set and the claim placed in the request context.
//
// Usage:
//
//	engine, err := guard.NewEngine(guard.DefaultEngineConfig(), provider)
//	if err != nil {
//		log.Fatal(err)
//	}
//	handler := guard.Middleware(engine, guard.SchemeEncryptedEnvelope)(mux)
func Middleware(engine *Engine, scheme Scheme) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			resp := engine.Evaluate(r.Context(), scheme, CredentialsFromHeader(r.Header))
			if !resp.Allow {
				WriteReject(w, resp)
				return
			}

			// Set, not Add: a client-supplied value for a validated
			// header must never survive past the gateway.
			for name, value := range resp.HeadersToAdd {
				r.Header.Set(name, value)
			}

			ctx := ContextWithClaim(r.Context(), resp.Claim)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WriteReject writes a reject verdict as an HTTP response.
func WriteReject(w http.ResponseWriter, resp EdgeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.Status)
	w.Write(resp.Body)
}
