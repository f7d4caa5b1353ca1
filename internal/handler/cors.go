package handler

import "net/http"

// The extension calls these endpoints cross-origin, so every /api response
// carries a permissive CORS policy and each route answers its own preflight.
const corsMaxAge = "86400"

// setCORSHeaders applies the extension CORS policy to a response.
func setCORSHeaders(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// handlePreflight answers an OPTIONS preflight with 204 and the CORS policy.
func handlePreflight(methods string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		setCORSHeaders(w, methods)
		w.Header().Set("Access-Control-Max-Age", corsMaxAge)
		w.WriteHeader(http.StatusNoContent)
	}
}
