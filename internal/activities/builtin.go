package activities

import (
	"io"
	"net/http"
	"os"
	"time"
)

// Built-in activity type names.
const (
	TypeAdd         = "AddTask"
	TypeWriteLine   = "WriteLineTask"
	TypeSetVariable = "SetVariableTask"
	TypeIfElse      = "IfElseTask"
	TypeFork        = "ForkTask"
	TypeJoin        = "JoinTask"
	TypeSignal      = "SignalTask"
	TypeTimer       = "TimerTask"
	TypeFault       = "FaultTask"
	TypeHTTPRequest = "HttpRequestTask"
	TypeMissing     = "Missing"
)

// BuiltinOptions configures the built-in activities.
type BuiltinOptions struct {
	Output io.Writer        // WriteLineTask destination (default os.Stdout)
	Now    func() time.Time // TimerTask clock (default time.Now)

	// HTTPClient sends HttpRequestTask requests (default a fresh client
	// cloned from http.DefaultTransport).
	HTTPClient      *http.Client
	MaxResponseBody int64
}

// RegisterBuiltins registers every built-in activity type on c.
func RegisterBuiltins(c *Catalog, opts BuiltinOptions) error {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()}
	}
	if opts.MaxResponseBody <= 0 {
		opts.MaxResponseBody = defaultMaxResponseBody
	}
	out := &lineWriter{w: opts.Output}

	builtins := map[string]Factory{
		TypeAdd:         func() Activity { return &AddTask{} },
		TypeWriteLine:   func() Activity { return &WriteLineTask{out: out} },
		TypeSetVariable: func() Activity { return &SetVariableTask{} },
		TypeIfElse:      func() Activity { return &IfElseTask{} },
		TypeFork:        func() Activity { return &ForkTask{} },
		TypeJoin:        func() Activity { return &JoinTask{} },
		TypeSignal:      func() Activity { return &SignalTask{} },
		TypeTimer:       func() Activity { return &TimerTask{now: opts.Now} },
		TypeFault:       func() Activity { return &FaultTask{} },
		TypeHTTPRequest: func() Activity {
			return &HTTPRequestTask{client: opts.HTTPClient, maxResponseBody: opts.MaxResponseBody}
		},
	}
	for name, f := range builtins {
		if err := c.Register(name, f); err != nil {
			return err
		}
	}
	return nil
}

// NewDefaultCatalog returns a Catalog holding the built-in activities.
func NewDefaultCatalog(opts BuiltinOptions) (*Catalog, error) {
	c := NewCatalog()
	if err := RegisterBuiltins(c, opts); err != nil {
		return nil, err
	}
	return c, nil
}
