// Package gateway serves the chat GraphQL API over HTTP.
package gateway

import (
	_ "embed"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	graphql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"CodeChat/internal/config"
)

//go:embed schema.graphql
var schemaSDL string

// NewSchema parses the API schema against r. It fails if a schema field
// has no resolver.
func NewSchema(r *Resolver) (*graphql.Schema, error) {
	return graphql.ParseSchema(schemaSDL, r, graphql.UseFieldResolvers())
}

// NewRouter mounts /graphql and /healthz behind the standard middleware
// stack.
func NewRouter(cfg config.Server, schema *graphql.Schema, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(CORS(cfg.CORSOrigin))
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(Logger(logger))
	r.Use(chimw.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimw.Timeout(cfg.RequestTimeout))
	}
	if cfg.BodyLimit > 0 {
		r.Use(limitBody(cfg.BodyLimit))
	}

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/graphql", (&relay.Handler{Schema: schema}).ServeHTTP)
	r.Get("/graphql", queryHandler(schema))

	return otelhttp.NewHandler(r, "codechat")
}

// NewServer wraps handler with timeouts derived from cfg.
func NewServer(cfg config.Server, handler http.Handler) *http.Server {
	write := 60 * time.Second
	if cfg.RequestTimeout > 0 {
		write = cfg.RequestTimeout + 10*time.Second
	}
	return &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      write,
		IdleTimeout:       120 * time.Second,
	}
}

// queryHandler executes GET /graphql?query=...&operationName=...&variables=...
// Mutations are only accepted over POST.
func queryHandler(schema *graphql.Schema) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		query := q.Get("query")
		if query == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing query parameter"})
			return
		}
		if hasMutation(query) {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "mutations must be sent with POST"})
			return
		}

		var variables map[string]any
		if v := q.Get("variables"); v != "" {
			if err := json.Unmarshal([]byte(v), &variables); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid variables: " + err.Error()})
				return
			}
		}

		resp := schema.Exec(r.Context(), query, q.Get("operationName"), variables)
		writeJSON(w, http.StatusOK, resp)
	}
}

// hasMutation reports whether a document declares a mutation or
// subscription operation. It scans top-level keywords only, skipping
// comments, strings and anything inside braces or parentheses.
func hasMutation(doc string) bool {
	depth := 0
	for i := 0; i < len(doc); {
		c := doc[i]
		switch {
		case c == '#':
			for i < len(doc) && doc[i] != '\n' {
				i++
			}
		case c == '"':
			i = skipString(doc, i)
		case c == '{' || c == '(':
			depth++
			i++
		case c == '}' || c == ')':
			depth--
			i++
		case isNameStart(c):
			start := i
			for i < len(doc) && (isNameStart(doc[i]) || (doc[i] >= '0' && doc[i] <= '9')) {
				i++
			}
			if depth == 0 {
				switch doc[start:i] {
				case "mutation", "subscription":
					return true
				}
			}
		default:
			i++
		}
	}
	return false
}

// skipString returns the index just past the string literal starting at i.
func skipString(doc string, i int) int {
	if strings.HasPrefix(doc[i:], `"""`) {
		end := strings.Index(doc[i+3:], `"""`)
		if end < 0 {
			return len(doc)
		}
		return i + 3 + end + 3
	}
	for i++; i < len(doc); i++ {
		switch doc[i] {
		case '\\':
			i++
		case '"':
			return i + 1
		}
	}
	return len(doc)
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
