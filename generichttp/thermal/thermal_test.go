package thermal_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi"
	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/generichttp"
	"github.com/nasa-jpl/frog/generichttp/thermal"
	"github.com/nasa-jpl/frog/temperature"
)

func setup() (*bus.Broker, http.Handler) {
	b := bus.New()
	rec := temperature.NewRecorder(b, 10)
	h := thermal.NewHTTPController(b, rec, "hot_bb")
	r := chi.NewRouter()
	h.RT().Bind(r)
	return b, r
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestReadings(t *testing.T) {
	b, h := setup()
	if w := do(h, http.MethodGet, "/temperature", ""); w.Code != http.StatusInternalServerError {
		t.Errorf("expected %d got %d", http.StatusInternalServerError, w.Code)
	}
	topic := temperature.Ref("hot_bb").Topic() + ".data"
	b.Publish(topic, temperature.Reading{Temperature: 40, SetPoint: 70, Time: time.Now()})
	b.Publish(topic, temperature.Reading{Temperature: 55, SetPoint: 70, Time: time.Now()})
	b.Drain()
	cases := []struct {
		path string
		exp  string
	}{
		{"/temperature", `{"f64":55}`},
		{"/temperature-setpoint", `{"f64":70}`},
	}
	for _, c := range cases {
		w := do(h, http.MethodGet, c.path, "")
		if body := strings.TrimSpace(w.Body.String()); body != c.exp {
			t.Errorf("%s: expected %s got %s", c.path, c.exp, body)
		}
	}
}

func TestSetTemperatureSetpoint(t *testing.T) {
	b, h := setup()
	var got []interface{}
	b.Subscribe(temperature.Ref("hot_bb").Topic()+".change_set_point", func(m bus.Message) {
		got = append(got, m.Data)
	})
	if w := do(h, http.MethodPost, "/temperature-setpoint", `{"f64": 80}`); w.Code != http.StatusOK {
		t.Errorf("expected %d got %d", http.StatusOK, w.Code)
	}
	if w := do(h, http.MethodPost, "/temperature-setpoint", `{"f64": -300}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected %d got %d", http.StatusBadRequest, w.Code)
	}
	b.Drain()
	if len(got) != 1 || got[0] != (generichttp.FloatT{F64: 80}) {
		t.Errorf("expected one request for 80 got %v", got)
	}
}
