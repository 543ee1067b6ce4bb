package stepper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/nasa-jpl/frog/bus"
	"github.com/nasa-jpl/frog/device"
	"github.com/nasa-jpl/frog/generichttp"
	"github.com/nasa-jpl/frog/motion"
	"github.com/nasa-jpl/frog/util"
	"golang.org/x/time/rate"
)

// ErrMoveTimeout is generated when an axis does not report in position in time
var ErrMoveTimeout = errors.New("timed out waiting for axis to reach position")

// RemoteInfo describes a stepper motor behind a motion controller HTTP server
var RemoteInfo = device.TypeInfo{
	ClassName:   "stepper_motor.remote.RemoteStepperMotor",
	Description: "Motion controller (HTTP)",
	Parameters: map[string]device.Parameter{
		"url": {
			Description: "Root URL of the motion controller, e.g. http://bench:8000/mirror",
			Type:        device.TypeString,
		},
		"axis": {
			Description: "Axis the mirror is mounted on",
			Type:        device.TypeString,
			Default:     "X",
		},
		"units_per_degree": {
			Description: "Controller position units per degree of rotation",
			Type:        device.TypeFloat,
			Default:     1.,
		},
		"timeout": {
			Description: "HTTP request timeout, in seconds",
			Type:        device.TypeFloat,
			Default:     10.,
		},
		"poll_interval": {
			Description: "Interval between in-position queries, in seconds",
			Type:        device.TypeFloat,
			Default:     .1,
		},
		"move_timeout": {
			Description: "Maximum duration of a move, in seconds",
			Type:        device.TypeFloat,
			Default:     30.,
		},
		"retries": {
			Description: "Number of times a failed request is retried",
			Type:        device.TypeInt,
			Default:     3,
		},
	},
}

// RemoteConfig holds the parameters of a Remote
type RemoteConfig struct {
	URL            string  `mapstructure:"url"`
	Axis           string  `mapstructure:"axis"`
	UnitsPerDegree float64 `mapstructure:"units_per_degree"`
	Timeout        float64 `mapstructure:"timeout"`
	PollInterval   float64 `mapstructure:"poll_interval"`
	MoveTimeout    float64 `mapstructure:"move_timeout"`
	Retries        int     `mapstructure:"retries"`
}

// Remote drives the mirror through the /axis/{axis}/... routes of a motion
// controller HTTP server.  All communication happens on the device's worker.
type Remote struct {
	*device.Base

	cfg     RemoteConfig
	client  *http.Client
	worker  *device.Worker
	limiter *rate.Limiter

	mu         sync.Mutex
	cancelMove context.CancelFunc
}

// NewRemote returns a new Remote.  The device opens asynchronously, once the
// controller has answered a position query.
func NewRemote(b *bus.Broker, cfg RemoteConfig) (*Remote, error) {
	if cfg.UnitsPerDegree == 0 {
		return nil, fmt.Errorf("%w: units_per_degree must not be zero", device.ErrBadParameter)
	}
	base, err := device.NewBase(b, BaseType, RemoteInfo.ClassName, "")
	if err != nil {
		return nil, err
	}
	cfg.URL = strings.TrimSuffix(cfg.URL, "/")
	r := &Remote{
		Base:    base,
		cfg:     cfg,
		client:  &http.Client{Timeout: util.SecsToDuration(cfg.Timeout)},
		limiter: rate.NewLimiter(rate.Every(util.SecsToDuration(cfg.PollInterval)), 1),
	}
	r.worker = device.NewWorker(base, 8)
	Bind(base, r)
	r.worker.Submit(func(ctx context.Context) error {
		if _, err := r.Position(ctx); err != nil {
			return fmt.Errorf("opening motion controller at %s: %w", cfg.URL, err)
		}
		r.SignalOpened()
		return nil
	})
	return r, nil
}

// NewRemoteDevice is the registry factory for Remote
func NewRemoteDevice(b *bus.Broker, name string, params map[string]interface{}) (device.Device, error) {
	cfg := RemoteConfig{}
	if err := device.DecodeParams(params, &cfg); err != nil {
		return nil, err
	}
	return NewRemote(b, cfg)
}

func (r *Remote) axisURL(route string) string {
	return r.cfg.URL + "/axis/" + r.cfg.Axis + "/" + route
}

// do performs a request with retries, decoding a JSON response into out if
// it is not nil.  Client errors (4xx) are not retried.
func (r *Remote) do(ctx context.Context, method, url string, body, out interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return err
		}
	}
	return device.Retry(ctx, r.cfg.Retries, func() error {
		req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		resp, err := r.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			buf := new(bytes.Buffer)
			buf.ReadFrom(resp.Body)
			err = fmt.Errorf("%s %s: %s %s", method, url, resp.Status, strings.TrimSpace(buf.String()))
			if resp.StatusCode < 500 {
				return backoff.Permanent(err)
			}
			return err
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(fmt.Errorf("malformed response from %s: %w", url, err))
		}
		return nil
	})
}

// Position queries the controller for the mirror angle in degrees
func (r *Remote) Position(ctx context.Context) (float64, error) {
	f := generichttp.FloatT{}
	if err := r.do(ctx, http.MethodGet, r.axisURL("pos"), nil, &f); err != nil {
		return 0, err
	}
	return f.F64 / r.cfg.UnitsPerDegree, nil
}

// InPosition queries whether the axis has finished moving
func (r *Remote) InPosition(ctx context.Context) (bool, error) {
	b := generichttp.BoolT{}
	err := r.do(ctx, http.MethodGet, r.axisURL("inposition"), nil, &b)
	return b.Bool, err
}

// MoveTo queues a move to target on the worker
func (r *Remote) MoveTo(target motion.Angle) error {
	if err := target.Validate(); err != nil {
		return err
	}
	deg, _ := target.Resolve()
	r.mu.Lock()
	if r.cancelMove != nil {
		r.cancelMove()
	}
	ctx, cancel := context.WithTimeout(r.worker.Context(), util.SecsToDuration(r.cfg.MoveTimeout))
	r.cancelMove = cancel
	r.mu.Unlock()

	r.worker.Submit(func(context.Context) error {
		defer cancel()
		err := r.move(ctx, deg)
		if errors.Is(err, context.Canceled) {
			// superseded by Stop or another move
			return nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: %v", ErrMoveTimeout, deg)
		}
		return err
	})
	return nil
}

func (r *Remote) move(ctx context.Context, deg float64) error {
	err := r.do(ctx, http.MethodPost, r.axisURL("pos"), generichttp.FloatT{F64: deg * r.cfg.UnitsPerDegree}, nil)
	if err != nil {
		return err
	}
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		ok, err := r.InPosition(ctx)
		if err != nil {
			return err
		}
		if ok {
			break
		}
	}
	pos, err := r.Position(ctx)
	if err != nil {
		return err
	}
	r.Send("move.end", MoveEnd{MovedTo: pos})
	return nil
}

// Stop cancels a move in progress and halts the axis
func (r *Remote) Stop() error {
	r.mu.Lock()
	if r.cancelMove != nil {
		r.cancelMove()
		r.cancelMove = nil
	}
	r.mu.Unlock()
	r.worker.Submit(func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, 3*time.Duration(r.cfg.Retries+1)*r.client.Timeout)
		defer cancel()
		if err := r.do(ctx, http.MethodPost, r.axisURL("stop"), nil, nil); err != nil {
			return err
		}
		pos, err := r.Position(ctx)
		if err != nil {
			return err
		}
		r.Send("move.end", MoveEnd{MovedTo: pos})
		return nil
	})
	return nil
}

// Close stops the worker and releases the device
func (r *Remote) Close() error {
	r.worker.Stop()
	return r.Base.Close()
}
