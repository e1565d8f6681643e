package correlation

import "net/http"

// Middleware returns HTTP middleware that adopts the inbound correlation id
// from the configured header (minting one when absent), injects it into the
// request context, and echoes it on the response. Events published while
// serving the request therefore carry the same id as the trigger.
func Middleware(headerName string) func(http.Handler) http.Handler {
	if headerName == "" {
		headerName = DefaultHeader
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(headerName)
			if id == "" {
				_, id = Ensure(r.Context())
			}
			w.Header().Set(headerName, id)
			next.ServeHTTP(w, r.WithContext(WithID(r.Context(), id)))
		})
	}
}
