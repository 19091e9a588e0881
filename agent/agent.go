// Package agent implements the HTTPS interface of the replicated
// network: CBOR request envelopes, query and update calls, certified
// state reads and root key discovery.
package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fxamacker/cbor/v2"
	"go.uber.org/zap"

	"github.com/canscript/canscript/certification"
	"github.com/canscript/canscript/errors"
	"github.com/canscript/canscript/identity"
	"github.com/canscript/canscript/internal/leb128"
	"github.com/canscript/canscript/principal"
)

// DefaultHost is the public API gateway.
const DefaultHost = "https://icp-api.io"

const (
	ingressExpiry   = 4 * time.Minute
	pollInterval    = time.Second
	requestBodyCap  = 2 << 20
	requestIDPrefix = "\x0Aic-request"
)

// Self-describing CBOR, required on every request body.
var cborSelfDescribe = []byte{0xd9, 0xd9, 0xf7}

// Config carries the agent's connection settings.
type Config struct {
	// Host is the gateway base URL. Empty means DefaultHost.
	Host string

	// Identity signs requests. Nil means the anonymous identity.
	Identity identity.Identity

	// Client is the HTTP client to use. Nil means a client with a
	// one-minute timeout.
	Client *http.Client

	// RootKey preloads the network root key (DER). When nil the key is
	// fetched from the status endpoint before the first certified read.
	RootKey []byte
}

// Agent is a client for one gateway host. It is safe for concurrent use.
type Agent struct {
	host     *url.URL
	client   *http.Client
	identity identity.Identity

	mu      sync.Mutex // guards rootKey
	rootKey []byte
}

// New builds an agent from the config.
func New(cfg Config) (*Agent, error) {
	host := cfg.Host
	if host == "" {
		host = DefaultHost
	}
	u, err := url.Parse(host)
	if err != nil {
		return nil, errors.Net("invalid host URL "+host, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.Net("host URL needs an http or https scheme: "+host, nil)
	}

	id := cfg.Identity
	if id == nil {
		id = identity.Anonymous{}
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}

	return &Agent{
		host:     u,
		client:   client,
		identity: id,
		rootKey:  cfg.RootKey,
	}, nil
}

// Sender is the principal this agent's requests are attributed to.
func (a *Agent) Sender() principal.Principal {
	return a.identity.Sender()
}

// FetchRootKey loads the network root key from the status endpoint if it
// is not already known. Certified reads call this implicitly.
func (a *Agent) FetchRootKey(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.rootKey != nil {
		return nil
	}

	body, err := a.get(ctx, "/api/v2/status")
	if err != nil {
		return err
	}
	var status struct {
		RootKey []byte `cbor:"root_key"`
	}
	if err := cbor.Unmarshal(body, &status); err != nil {
		return errors.Net("decoding status response", err)
	}
	if len(status.RootKey) == 0 {
		return errors.Net("status response carries no root key", nil)
	}
	Logger().Debug("fetched root key",
		zap.String("host", a.host.String()),
		zap.Int("der_bytes", len(status.RootKey)))
	a.rootKey = status.RootKey
	return nil
}

func (a *Agent) currentRootKey(ctx context.Context) ([]byte, error) {
	if err := a.FetchRootKey(ctx); err != nil {
		return nil, err
	}
	a.mu.Lock()
	key := a.rootKey
	a.mu.Unlock()
	return key, nil
}

// Query performs a read-only call and returns the raw reply argument.
func (a *Agent) Query(ctx context.Context, canister principal.Principal, method string, arg []byte) ([]byte, error) {
	content := map[string]any{
		"request_type":   "query",
		"sender":         a.identity.Sender().Raw,
		"canister_id":    canister.Raw,
		"method_name":    method,
		"arg":            arg,
		"ingress_expiry": expiry(),
	}
	body, err := a.post(ctx, "/api/v2/canister/"+canister.Text()+"/query", content)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status        string `cbor:"status"`
		RejectCode    uint64 `cbor:"reject_code"`
		RejectMessage string `cbor:"reject_message"`
		Reply         struct {
			Arg []byte `cbor:"arg"`
		} `cbor:"reply"`
	}
	if err := cbor.Unmarshal(body, &resp); err != nil {
		return nil, errors.Net("decoding query response", err)
	}
	switch resp.Status {
	case "replied":
		return resp.Reply.Arg, nil
	case "rejected":
		return nil, errors.Rejected(resp.RejectCode, resp.RejectMessage)
	default:
		return nil, errors.Net("unexpected query status "+resp.Status, nil)
	}
}

// Call submits an update call and polls the certified request status
// until the network replies, rejects, or the context expires.
func (a *Agent) Call(ctx context.Context, canister principal.Principal, method string, arg []byte) ([]byte, error) {
	content := map[string]any{
		"request_type":   "call",
		"sender":         a.identity.Sender().Raw,
		"canister_id":    canister.Raw,
		"method_name":    method,
		"arg":            arg,
		"ingress_expiry": expiry(),
	}
	requestID, err := RequestID(content)
	if err != nil {
		return nil, err
	}
	if _, err := a.post(ctx, "/api/v2/canister/"+canister.Text()+"/call", content); err != nil {
		return nil, err
	}

	Logger().Debug("update call submitted",
		zap.String("canister", canister.Text()),
		zap.String("method", method))
	return a.pollRequestStatus(ctx, canister, requestID)
}

func (a *Agent) pollRequestStatus(ctx context.Context, canister principal.Principal, requestID [32]byte) ([]byte, error) {
	statusPath := [][]byte{[]byte("request_status"), requestID[:]}

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		tree, err := a.readState(ctx, canister, [][][]byte{statusPath})
		if err != nil {
			return nil, err
		}

		status, found := certification.Lookup(tree, []byte("request_status"), requestID[:], []byte("status"))
		if found == certification.LookupFound {
			switch string(status) {
			case "replied":
				reply, found := certification.Lookup(tree, []byte("request_status"), requestID[:], []byte("reply"))
				if found != certification.LookupFound {
					return nil, errors.Net("replied status without a reply", nil)
				}
				return reply, nil
			case "rejected":
				return nil, rejectionFromTree(tree, requestID)
			case "done":
				return nil, errors.Net("call completed without a retrievable reply", nil)
			}
			// received / processing: keep polling.
		}

		select {
		case <-ctx.Done():
			return nil, errors.Net("waiting for call result", ctx.Err())
		case <-ticker.C:
		}
	}
}

func rejectionFromTree(tree certification.Node, requestID [32]byte) error {
	var code uint64
	if raw, found := certification.Lookup(tree, []byte("request_status"), requestID[:], []byte("reject_code")); found == certification.LookupFound {
		if n, err := leb128.ReadUint(bytes.NewReader(raw)); err == nil {
			code = n
		}
	}
	msg := "call rejected"
	if raw, found := certification.Lookup(tree, []byte("request_status"), requestID[:], []byte("reject_message")); found == certification.LookupFound {
		msg = string(raw)
	}
	return errors.Rejected(code, msg)
}

// ReadState fetches and verifies a certified view of the given state
// paths.
func (a *Agent) ReadState(ctx context.Context, canister principal.Principal, paths [][][]byte) (certification.Node, error) {
	return a.readState(ctx, canister, paths)
}

func (a *Agent) readState(ctx context.Context, canister principal.Principal, paths [][][]byte) (certification.Node, error) {
	rootKey, err := a.currentRootKey(ctx)
	if err != nil {
		return nil, err
	}

	cborPaths := make([]any, len(paths))
	for i, p := range paths {
		segs := make([]any, len(p))
		for j, s := range p {
			segs[j] = s
		}
		cborPaths[i] = segs
	}
	content := map[string]any{
		"request_type":   "read_state",
		"sender":         a.identity.Sender().Raw,
		"paths":          cborPaths,
		"ingress_expiry": expiry(),
	}
	body, err := a.post(ctx, "/api/v2/canister/"+canister.Text()+"/read_state", content)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Certificate []byte `cbor:"certificate"`
	}
	if err := cbor.Unmarshal(body, &resp); err != nil {
		return nil, errors.Net("decoding read_state response", err)
	}
	return certification.Verify(resp.Certificate, rootKey, canister)
}

// GetCanisterMetadata reads one entry of the canister's certified
// metadata, such as its interface description.
func (a *Agent) GetCanisterMetadata(ctx context.Context, canister principal.Principal, name string) ([]byte, error) {
	path := [][]byte{[]byte("canister"), canister.Raw, []byte("metadata"), []byte(name)}
	tree, err := a.readState(ctx, canister, [][][]byte{path})
	if err != nil {
		return nil, err
	}
	value, found := certification.Lookup(tree, path...)
	switch found {
	case certification.LookupFound:
		return value, nil
	case certification.LookupAbsent:
		return nil, errors.NotFound(errors.PhaseNet, "canister metadata", name)
	default:
		return nil, errors.Net("metadata lookup pruned from certificate", nil)
	}
}

func expiry() uint64 {
	return uint64(time.Now().Add(ingressExpiry).UnixNano())
}

func (a *Agent) signEnvelope(content map[string]any) ([]byte, error) {
	requestID, err := RequestID(content)
	if err != nil {
		return nil, err
	}
	sig, err := a.identity.Sign(append([]byte(requestIDPrefix), requestID[:]...))
	if err != nil {
		return nil, errors.Net("signing request", err)
	}

	envelope := map[string]any{"content": content}
	if pub := a.identity.PublicKeyDER(); pub != nil {
		envelope["sender_pubkey"] = pub
		envelope["sender_sig"] = sig
	}
	data, err := cbor.Marshal(envelope)
	if err != nil {
		return nil, errors.Net("encoding request envelope", err)
	}
	return append(append([]byte(nil), cborSelfDescribe...), data...), nil
}

func (a *Agent) post(ctx context.Context, path string, content map[string]any) ([]byte, error) {
	body, err := a.signEnvelope(content)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint(path), bytes.NewReader(body))
	if err != nil {
		return nil, errors.Net("building request", err)
	}
	req.Header.Set("Content-Type", "application/cbor")
	return a.do(req)
}

func (a *Agent) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.endpoint(path), nil)
	if err != nil {
		return nil, errors.Net("building request", err)
	}
	return a.do(req)
}

func (a *Agent) endpoint(path string) string {
	u := *a.host
	u.Path = strings.TrimSuffix(u.Path, "/") + path
	return u.String()
}

func (a *Agent) do(req *http.Request) ([]byte, error) {
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, errors.Net("request to "+req.URL.Path+" failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, requestBodyCap))
	if err != nil {
		return nil, errors.Net("reading response from "+req.URL.Path, err)
	}
	switch resp.StatusCode {
	case http.StatusOK, http.StatusAccepted:
		return body, nil
	default:
		detail := fmt.Sprintf("%s returned HTTP %d", req.URL.Path, resp.StatusCode)
		if len(body) > 0 && len(body) <= 200 {
			detail += ": " + string(body)
		}
		return nil, errors.Net(detail, nil)
	}
}
