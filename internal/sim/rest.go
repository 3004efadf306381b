package sim

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
)

type valueRequest struct {
	Value *float64 `json:"value"`
}

// Routes exposes the bank over HTTP:
//
//	GET /registers          all values
//	GET /registers/{name}   one value
//	PUT /registers/{name}   {"value": 12.5}
func Routes(b *Bank) http.Handler {
	r := chi.NewRouter()
	r.Route("/registers", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, b.Values())
		})
		r.Get("/{name}", func(w http.ResponseWriter, req *http.Request) {
			name := chi.URLParam(req, "name")
			v, err := b.Get(name)
			if err != nil {
				failErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"name": name, "value": v})
		})
		r.Put("/{name}", func(w http.ResponseWriter, req *http.Request) {
			name := chi.URLParam(req, "name")
			var body valueRequest
			if err := readJSON(req, &body); err != nil || body.Value == nil {
				fail(w, http.StatusBadRequest, "bad json, want {\"value\": <number>}")
				return
			}
			if err := b.Set(name, *body.Value); err != nil {
				failErr(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})
	})
	return r
}

/* ------------------------ helpers: json & errors ------------------------ */

func readJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func failErr(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrUnknownRegister) {
		fail(w, http.StatusNotFound, err.Error())
		return
	}
	fail(w, http.StatusBadRequest, err.Error())
}
