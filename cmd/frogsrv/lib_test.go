package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nasa-jpl/frog/script"
	"github.com/nasa-jpl/frog/sensors"
	"github.com/nasa-jpl/frog/util"
)

func newTestMux(t *testing.T, c Config) (*System, http.Handler) {
	t.Helper()
	sys, err := NewSystem(c)
	if err != nil {
		t.Fatal(err)
	}
	return sys, BuildMux(c, sys)
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func TestLoadYaml(t *testing.T) {
	path := filepath.Join(t.TempDir(), "frogsrv.yml")
	body := "addr: \":9000\"\nhistory: 10\nlimits:\n  min: 0\n  max: 270\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadYaml(path)
	if err != nil {
		t.Fatal(err)
	}
	exp := Config{Addr: ":9000", History: 10, Limits: util.Limiter{Min: 0, Max: 270}}
	if c != exp {
		t.Errorf("expected %+v got %+v", exp, c)
	}
}

func TestEndpoints(t *testing.T) {
	_, h := newTestMux(t, Config{})
	w := do(h, http.MethodGet, "/endpoints", "")
	graph := map[string][]string{}
	if err := json.NewDecoder(w.Body).Decode(&graph); err != nil {
		t.Fatal(err)
	}
	for _, stem := range []string{"/motor", "/script", "/hardware"} {
		if len(graph[stem]) == 0 {
			t.Errorf("expected routes under %s, got %v", stem, graph)
		}
	}
}

func TestMotorLockedWhileScriptRuns(t *testing.T) {
	sys, h := newTestMux(t, Config{})
	sys.Broker.Publish(script.TopicBegin, nil)
	sys.Broker.Drain()
	if w := do(h, http.MethodPost, "/motor/angle", `{"f64": 10}`); w.Code != http.StatusLocked {
		t.Errorf("expected %d got %d", http.StatusLocked, w.Code)
	}
	if w := do(h, http.MethodPost, "/motor/stop", ""); w.Code != http.StatusLocked {
		t.Errorf("expected %d got %d", http.StatusLocked, w.Code)
	}
	sys.Broker.Publish(script.TopicEnd, nil)
	sys.Broker.Drain()
	if w := do(h, http.MethodPost, "/motor/angle", `{"f64": 10}`); w.Code != http.StatusOK {
		t.Errorf("expected %d got %d", http.StatusOK, w.Code)
	}
}

func TestMotorLimits(t *testing.T) {
	_, h := newTestMux(t, Config{Limits: util.Limiter{Min: 0, Max: 180}})
	if w := do(h, http.MethodPost, "/motor/angle", `{"str": "hot_bb"}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected %d got %d", http.StatusBadRequest, w.Code)
	}
	if w := do(h, http.MethodPost, "/motor/angle", `{"str": "zenith"}`); w.Code != http.StatusOK {
		t.Errorf("expected %d got %d", http.StatusOK, w.Code)
	}
}

func TestStartupScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sky.yaml")
	body := "version: 1\nrepeats: 2\nsequence:\n  - angle: zenith\n    measurements: 1\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	sys, h := newTestMux(t, Config{Script: path})
	if sys.Runner.Script() == nil {
		t.Fatal("expected the script to be loaded")
	}
	if w := do(h, http.MethodGet, "/script/script", ""); w.Code != http.StatusOK {
		t.Errorf("expected %d got %d", http.StatusOK, w.Code)
	}
	if _, err := NewSystem(Config{Script: filepath.Join(t.TempDir(), "missing.yaml")}); err == nil {
		t.Errorf("expected a missing script to be an error")
	}
}

func TestSensorsServed(t *testing.T) {
	sys, h := newTestMux(t, Config{History: 5})
	if _, base, ok := sys.Registry.Lookup(sensors.DummyInfo.ClassName); !ok || base != sensors.BaseType.Name {
		t.Fatalf("expected %s to be registered", sensors.DummyInfo.ClassName)
	}
	sys.Broker.Publish(sensors.TopicData, []sensors.Reading{{Name: "Voltage", Value: 24, Unit: "V"}})
	sys.Broker.Drain()
	w := do(h, http.MethodGet, "/sensors", "")
	out := map[string]struct {
		Unit  string    `json:"unit"`
		Value []float64 `json:"value"`
	}{}
	if err := json.NewDecoder(w.Body).Decode(&out); err != nil {
		t.Fatal(err)
	}
	if got := out["Voltage"]; got.Unit != "V" || len(got.Value) != 1 || got.Value[0] != 24 {
		t.Errorf("expected 24 V got %v", got)
	}
}
