package router

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"ResourceAPI/internal/controller"
	"ResourceAPI/internal/logger"
	"ResourceAPI/internal/resource"

	"github.com/goccy/go-json"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

type Options struct {
	Prefix           string
	IdentityHeader   string
	AllowOrigin      string
	AllowCredentials bool
}

type action func(ctx context.Context, def *resource.Definition, rc *resource.Context, body map[string]any) controller.Response

// New routes every frozen resource of ctrl under opts.Prefix.
func New(ctrl *controller.Controller, opts Options) http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix(opts.Prefix).Subrouter()

	for _, def := range ctrl.Resources().Definitions() {
		collection := "/" + def.Plural
		member := collection + "/{id}"
		h := func(a resource.Action, fn action) http.HandlerFunc {
			return endpoint(def, a, opts.IdentityHeader, fn)
		}

		if def.Batch {
			api.HandleFunc(collection+"/batch_update", h(resource.BatchUpdate, ctrl.BatchUpdate)).Methods(http.MethodPost)
			api.HandleFunc(collection+"/batch_delete", h(resource.BatchDelete, ctrl.BatchDelete)).Methods(http.MethodPost)
		}
		if def.Upload {
			api.HandleFunc(collection+"/upload", h(resource.Upload, ctrl.Upload)).Methods(http.MethodPost)
		}
		api.HandleFunc(collection, h(resource.Index, withoutBody(ctrl.Index))).Methods(http.MethodGet)
		api.HandleFunc(collection, h(resource.Create, ctrl.Create)).Methods(http.MethodPost)
		api.HandleFunc(member, h(resource.Show, withoutBody(ctrl.Show))).Methods(http.MethodGet)
		api.HandleFunc(member, h(resource.Update, ctrl.Update)).Methods(http.MethodPut, http.MethodPatch)
		api.HandleFunc(member, h(resource.Destroy, withoutBody(ctrl.Destroy))).Methods(http.MethodDelete)

		logger.Debug("routes_registered", map[string]any{
			"resource": def.Plural,
			"prefix":   opts.Prefix,
			"batch":    def.Batch,
			"upload":   def.Upload,
		})
	}

	var handler http.Handler = withLogging(r.ServeHTTP)
	handler = handlers.CompressHandler(handler)
	handler = withCORS(opts.AllowOrigin, opts.AllowCredentials, opts.IdentityHeader, handler.ServeHTTP)
	return handlers.RecoveryHandler(handlers.RecoveryLogger(panicLogger{}))(handler)
}

func withoutBody(fn func(ctx context.Context, def *resource.Definition, rc *resource.Context) controller.Response) action {
	return func(ctx context.Context, def *resource.Definition, rc *resource.Context, _ map[string]any) controller.Response {
		return fn(ctx, def, rc)
	}
}

func endpoint(def *resource.Definition, a resource.Action, identityHeader string, fn action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := readBody(r)
		if err != nil {
			logger.Warn("invalid_json", map[string]any{
				"path":  r.URL.Path,
				"error": err.Error(),
			})
			writeJSON(w, controller.Response{
				Status: http.StatusBadRequest,
				Body:   map[string]any{"errors": []string{"Invalid JSON body: " + err.Error()}},
			})
			return
		}
		params, err := parseParams(r, body)
		if err != nil {
			writeJSON(w, controller.Response{
				Status: http.StatusBadRequest,
				Body:   map[string]any{"errors": []string{err.Error()}},
			})
			return
		}
		rc := &resource.Context{
			Action:   a,
			Identity: identity(r, identityHeader),
			Params:   params,
		}
		writeJSON(w, fn(r.Context(), def, rc, body))
	}
}

func identity(r *http.Request, header string) any {
	if header == "" {
		return nil
	}
	if v := r.Header.Get(header); v != "" {
		return v
	}
	return nil
}

// readBody decodes a JSON object body. An empty body is an empty object.
func readBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	body := map[string]any{}
	if len(data) == 0 {
		return body, nil
	}
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	return normalizeNumbers(body).(map[string]any), nil
}

func writeJSON(w http.ResponseWriter, res controller.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Status)
	if err := json.NewEncoder(w).Encode(res.Body); err != nil {
		logger.Error("write_response_failed", map[string]any{
			"error": err.Error(),
		})
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, entry := logger.WithRequest(r.Context())
		started := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next(sw, r.WithContext(ctx))

		entry = entry.WithFields(map[string]any{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      sw.status,
			"duration_ms": time.Since(started).Milliseconds(),
		})
		switch {
		case sw.status >= 500:
			entry.Error("response")
		case sw.status >= 400:
			entry.Warn("response")
		default:
			entry.Info("response")
		}
	}
}

type panicLogger struct{}

func (panicLogger) Println(v ...any) {
	logger.Error("panic_recovered", map[string]any{
		"panic": fmt.Sprint(v...),
	})
}
