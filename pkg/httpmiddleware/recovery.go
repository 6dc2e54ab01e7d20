package httpmiddleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/lewisedginton/aiboy_relay/pkg/logger"
)

// Recovery returns a middleware that turns handler panics into a plain-text 500
// and logs the panic with its stack trace.
func Recovery(log logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				// Let the server abort the connection as it normally would
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				if log != nil {
					log.Error("HTTP request panic recovered",
						logger.StringField("panic_error", fmt.Sprintf("%v", rec)),
						logger.HTTPMethodField(r.Method),
						logger.HTTPPathField(r.URL.Path),
						logger.CorrelationIDField(r.Header.Get(logger.CorrelationIDHeader)),
						logger.StringField("stack_trace", string(debug.Stack())),
					)
				}

				w.Header().Set("Connection", "close")
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
