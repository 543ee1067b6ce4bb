// Package thermal exposes an HTTP interface to the black body temperature
// controllers.  Readings come from a temperature.Recorder and set point
// changes are published to the controller over the bus.
package thermal

import (
	"encoding/json"
	"errors"
	"go/types"
	"net/http"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/generichttp"
	"github.com/nasa-jpl/frog/temperature"
)

var errNoReading = errors.New("no reading has been received from the controller")

// HTTPController wraps the temperature controller called Name with HTTP
type HTTPController struct {
	Name string

	broker   *bus.Broker
	recorder *temperature.Recorder

	RouteTable generichttp.RouteTable
}

// NewHTTPController returns a new HTTP wrapper with the route table pre-configured
func NewHTTPController(b *bus.Broker, rec *temperature.Recorder, name string) HTTPController {
	h := HTTPController{Name: name, broker: b, recorder: rec}
	h.RouteTable = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/temperature"}:           h.GetTemperature,
		{Method: http.MethodGet, Path: "/temperature-setpoint"}:  h.GetTemperatureSetpoint,
		{Method: http.MethodPost, Path: "/temperature-setpoint"}: h.SetTemperatureSetpoint,
	}
	return h
}

// RT satisfies the HTTPer interface
func (h HTTPController) RT() generichttp.RouteTable {
	return h.RouteTable
}

func (h HTTPController) latest() (temperature.Reading, error) {
	rs := h.recorder.Readings(h.Name)
	if len(rs) == 0 {
		return temperature.Reading{}, errNoReading
	}
	return rs[len(rs)-1], nil
}

// GetTemperature returns the latest temperature as JSON over HTTP
func (h HTTPController) GetTemperature(w http.ResponseWriter, r *http.Request) {
	rd, err := h.latest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := generichttp.HumanPayload{T: types.Float64, Float: float64(rd.Temperature)}
	hp.EncodeAndRespond(w, r)
}

// GetTemperatureSetpoint returns the latest reported set point as JSON over HTTP
func (h HTTPController) GetTemperatureSetpoint(w http.ResponseWriter, r *http.Request) {
	rd, err := h.latest()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	hp := generichttp.HumanPayload{T: types.Float64, Float: float64(rd.SetPoint)}
	hp.EncodeAndRespond(w, r)
}

// SetTemperatureSetpoint asks the controller to change its set point
func (h HTTPController) SetTemperatureSetpoint(w http.ResponseWriter, r *http.Request) {
	f := generichttp.FloatT{}
	err := json.NewDecoder(r.Body).Decode(&f)
	defer r.Body.Close()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if temperature.C2K(temperature.Celsius(f.F64)) < 0 {
		http.Error(w, temperature.ErrBelowAbsoluteZero.Error(), http.StatusBadRequest)
		return
	}
	h.broker.Publish(temperature.Ref(h.Name).Topic()+".change_set_point", f)
	w.WriteHeader(http.StatusOK)
}
