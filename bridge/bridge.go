// Package bridge ties the interface codec to the network agent: it
// fetches canister interfaces, converts JSON arguments to wire bytes,
// dispatches query and update calls, and renders replies back to JSON.
package bridge

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/canscript/canscript/agent"
	"github.com/canscript/canscript/candid"
	"github.com/canscript/canscript/errors"
	"github.com/canscript/canscript/identity"
	"github.com/canscript/canscript/principal"
	"github.com/canscript/canscript/transcoder"
)

// InterfaceMetadataKey names the certified metadata entry canisters
// advertise their interface description under.
const InterfaceMetadataKey = "candid:service"

// CallKind selects the dispatch path of a remote call.
type CallKind string

const (
	KindQuery          CallKind = "query"
	KindUpdate         CallKind = "update"
	KindCompositeQuery CallKind = "composite_query"
)

// Transport is the slice of the network agent the bridge needs. It is
// satisfied by *agent.Agent.
type Transport interface {
	Query(ctx context.Context, canister principal.Principal, method string, arg []byte) ([]byte, error)
	Call(ctx context.Context, canister principal.Principal, method string, arg []byte) ([]byte, error)
	GetCanisterMetadata(ctx context.Context, canister principal.Principal, name string) ([]byte, error)
}

// Request describes one remote call.
type Request struct {
	// Canister is the textual principal of the target canister.
	Canister string

	// Method is the name of the method to call.
	Method string

	// Kind overrides the dispatch path. Empty means the kind the
	// canister's interface declares for the method.
	Kind CallKind

	// Args carries the JSON arguments. Ignored for zero-argument
	// methods.
	Args json.RawMessage

	// Identity signs the call. Nil means anonymous.
	Identity identity.Identity

	// Host overrides the gateway. Empty means the default host.
	Host string
}

// Client dispatches remote calls. Every call builds a fresh transport,
// so a zero-configured client carries no cross-call state.
type Client struct {
	// Dial builds the transport for one request. Nil means a network
	// agent for the request's host and identity.
	Dial func(cfg agent.Config) (Transport, error)
}

func (c *Client) dial(req Request) (Transport, error) {
	cfg := agent.Config{Host: req.Host, Identity: req.Identity}
	if c.Dial != nil {
		return c.Dial(cfg)
	}
	return agent.New(cfg)
}

// ParseInterface parses and type-checks an interface description.
func ParseInterface(source string) (*candid.Service, error) {
	return candid.Parse(source)
}

// FetchInterface performs a certified read of the canister's advertised
// interface description and returns its source text. The transport
// bootstraps the root key before the read.
func (c *Client) FetchInterface(ctx context.Context, canister, host string) (string, error) {
	p, err := principal.FromText(canister)
	if err != nil {
		return "", err
	}
	t, err := c.dial(Request{Host: host})
	if err != nil {
		return "", err
	}
	source, err := t.GetCanisterMetadata(ctx, p, InterfaceMetadataKey)
	if err != nil {
		return "", err
	}
	return string(source), nil
}

// Call performs one remote call: fetch the interface, encode the JSON
// arguments, dispatch, decode the reply. Encoding failures surface
// before the call is dispatched.
func (c *Client) Call(ctx context.Context, req Request) (json.RawMessage, error) {
	p, err := principal.FromText(req.Canister)
	if err != nil {
		return nil, err
	}
	t, err := c.dial(req)
	if err != nil {
		return nil, err
	}

	svc, err := c.fetchService(ctx, t, p)
	if err != nil {
		return nil, err
	}
	m, ok := svc.Method(req.Method)
	if !ok {
		return nil, errors.NotFound(errors.PhaseEncode, "method", req.Method)
	}
	arg, err := transcoder.EncodeArgs(svc, req.Method, req.Args)
	if err != nil {
		return nil, err
	}

	kind := req.Kind
	if kind == "" {
		kind = declaredKind(m.Kind)
	}

	var reply []byte
	switch kind {
	case KindQuery, KindCompositeQuery:
		reply, err = t.Query(ctx, p, req.Method, arg)
	case KindUpdate:
		reply, err = t.Call(ctx, p, req.Method, arg)
	default:
		return nil, errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Detail("unknown call kind %q", kind).
			Build()
	}
	if err != nil {
		return nil, err
	}

	return c.decodeReply(ctx, t, p, req.Method, reply)
}

// decodeReply renders reply bytes as JSON. The typed path re-fetches the
// interface so decoded records carry field names; when the interface is
// unavailable the reply still decodes untyped, with numeric labels.
func (c *Client) decodeReply(ctx context.Context, t Transport, p principal.Principal, method string, reply []byte) (json.RawMessage, error) {
	svc, ferr := c.fetchService(ctx, t, p)
	if ferr == nil {
		if m, ok := svc.Method(method); ok {
			values, err := candid.DecodeWithTypes(reply, m.Rets)
			if err != nil {
				return nil, err
			}
			return transcoder.ResultToJSON(values)
		}
		ferr = errors.NotFound(errors.PhaseDecode, "method", method)
	}

	Logger().Warn("typed decode unavailable, falling back to untyped",
		zap.String("canister", p.Text()),
		zap.String("method", method),
		zap.Error(ferr))
	values, err := candid.Decode(reply)
	if err != nil {
		return nil, err
	}
	return transcoder.ResultToJSON(values)
}

func (c *Client) fetchService(ctx context.Context, t Transport, p principal.Principal) (*candid.Service, error) {
	source, err := t.GetCanisterMetadata(ctx, p, InterfaceMetadataKey)
	if err != nil {
		return nil, err
	}
	return candid.Parse(string(source))
}

func declaredKind(k candid.MethodKind) CallKind {
	switch k {
	case candid.KindCompositeQuery:
		return KindCompositeQuery
	case candid.KindQuery:
		return KindQuery
	default:
		return KindUpdate
	}
}
