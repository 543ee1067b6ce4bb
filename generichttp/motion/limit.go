package motion

import (
	"bytes"
	"encoding/json"
	"errors"
	"io/ioutil"
	"net/http"
	"strings"

	"github.com/nasa-jpl/frog/generichttp"
	"github.com/nasa-jpl/frog/util"
)

var (
	errClamped = errors.New("requested angle violates software limits, aborted")
)

// LimitMiddleware is a type that can impose limits on the angles the mirror
// may be driven to over HTTP.  Presets are resolved before checking.
type LimitMiddleware struct {
	// Limits contains the server imposed limits on the mirror, nil for none
	Limits *util.Limiter
}

// Check verifies if a move would violate the limit, if it exists,
// and if it does, responds with StatusBadRequest
// otherwise, flows control to the next handler
func (l *LimitMiddleware) Check(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if l.Limits == nil || r.Method != http.MethodPost || !strings.HasSuffix(r.URL.Path, "/angle") {
			next.ServeHTTP(w, r)
			return
		}
		// downstream functions want the body...
		// read it all here, then "paste" it back with ioutil
		bodyContent, _ := ioutil.ReadAll(r.Body)
		r.Body.Close()
		r.Body = ioutil.NopCloser(bytes.NewBuffer(bodyContent))
		t := targetT{}
		if err := json.NewDecoder(bytes.NewReader(bodyContent)).Decode(&t); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		a, err := t.angle()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		deg, err := a.Resolve()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if !l.Limits.Check(deg) {
			http.Error(w, errClamped.Error(), http.StatusBadRequest)
			return
		}
		// at this point, all checks have passed and we can move on
		next.ServeHTTP(w, r)
	})
}

// Inject places a /limits route on the table of the HTTPer
func (l LimitMiddleware) Inject(h generichttp.HTTPer) {
	h.RT()[generichttp.MethodPath{Method: http.MethodGet, Path: "/limits"}] = Limits(l)
}

// Limits returns an HTTP handler func that returns the limits, or null
func Limits(l LimitMiddleware) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		generichttp.RespondJSON(w, l.Limits)
	}
}
