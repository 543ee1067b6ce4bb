// Package hardware provides an HTTP interface to the device registry and
// manager: which device types exist, which devices are open, and requests to
// open and close them.
package hardware

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/generichttp"
	"github.com/nasa-jpl/frog/hardwareset"
)

// HTTPHardware wraps a device registry and manager with HTTP
type HTTPHardware struct {
	broker   *bus.Broker
	registry *device.Registry
	manager  *device.Manager

	// SetDir is the directory hardware sets are listed from, may be empty
	SetDir string

	RouteTable generichttp.RouteTable
}

// NewHTTPHardware returns a new HTTP wrapper with the route table pre-configured
func NewHTTPHardware(b *bus.Broker, r *device.Registry, m *device.Manager, setDir string) *HTTPHardware {
	h := &HTTPHardware{broker: b, registry: r, manager: m, SetDir: setDir}
	h.RouteTable = generichttp.RouteTable{
		{Method: http.MethodGet, Path: "/types"}:        h.Types,
		{Method: http.MethodGet, Path: "/devices"}:      h.Devices,
		{Method: http.MethodPost, Path: "/open"}:        h.Open,
		{Method: http.MethodPost, Path: "/close"}:       h.Close,
		{Method: http.MethodGet, Path: "/hardwaresets"}: h.HardwareSets,
		{Method: http.MethodPost, Path: "/hardwareset"}: h.OpenHardwareSet,
	}
	return h
}

// RT satisfies the HTTPer interface
func (h *HTTPHardware) RT() generichttp.RouteTable {
	return h.RouteTable
}

// Types returns the registered device types grouped by base type
func (h *HTTPHardware) Types(w http.ResponseWriter, r *http.Request) {
	generichttp.RespondJSON(w, h.registry.Groups())
}

// Devices returns the devices held by the manager
func (h *HTTPHardware) Devices(w http.ResponseWriter, r *http.Request) {
	generichttp.RespondJSON(w, h.manager.Devices())
}

// Open requests that a device be opened.  The body is an OpenRequest.
func (h *HTTPHardware) Open(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req := device.OpenRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	_, base, ok := h.registry.Lookup(req.ClassName)
	if !ok {
		http.Error(w, fmt.Sprintf("%v: %s", device.ErrUnknownType, req.ClassName), http.StatusBadRequest)
		return
	}
	if req.Instance.BaseType == "" {
		req.Instance.BaseType = base
	}
	h.broker.Publish(device.TopicOpen, req)
	w.WriteHeader(http.StatusAccepted)
}

// Close requests that a device be closed.  The body is a CloseRequest.
func (h *HTTPHardware) Close(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	req := device.CloseRequest{}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if h.manager.Status(req.Instance) == device.Disconnected {
		http.Error(w, fmt.Sprintf("%v: %s", device.ErrNotOpen, req.Instance), http.StatusNotFound)
		return
	}
	h.broker.Publish(device.TopicClose, req)
	w.WriteHeader(http.StatusAccepted)
}

// HardwareSets lists the hardware sets in SetDir
func (h *HTTPHardware) HardwareSets(w http.ResponseWriter, r *http.Request) {
	if h.SetDir == "" {
		generichttp.RespondJSON(w, []*hardwareset.HardwareSet{})
		return
	}
	sets, err := hardwareset.LoadDir(h.SetDir)
	if err != nil && len(sets) == 0 {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	generichttp.RespondJSON(w, sets)
}

// OpenHardwareSet opens every device of the hardware set at the path given
// as {"str": path}
func (h *HTTPHardware) OpenHardwareSet(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	s := generichttp.StrT{}
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hs, err := hardwareset.Load(s.Str)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	hs.Open(h.broker)
	w.WriteHeader(http.StatusAccepted)
}
