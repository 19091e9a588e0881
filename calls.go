package canscript

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/canscript/canscript/bridge"
	"github.com/canscript/canscript/errors"
	"github.com/canscript/canscript/identity"
)

// CallIdentity carries raw signing key material for an authenticated
// call: a base64 32-byte key, ed25519 unless stated otherwise.
type CallIdentity struct {
	Algorithm string `json:"algorithm,omitempty"`
	Key       string `json:"key"`
}

// CallRequest is the JSON shape of one remote call.
type CallRequest struct {
	Canister string          `json:"canister_id"`
	Method   string          `json:"method"`
	Kind     string          `json:"kind,omitempty"`
	Args     json.RawMessage `json:"args,omitempty"`
	Identity *CallIdentity   `json:"identity,omitempty"`
	Host     string          `json:"host,omitempty"`
}

// Call performs a remote canister call described by a CallRequest JSON
// document. The call blocks until the network answers; updates poll
// until the replicated computation settles.
func Call(requestJSON string) string {
	var req CallRequest
	if err := json.Unmarshal([]byte(requestJSON), &req); err != nil {
		return failure(errors.New(errors.PhaseEncode, errors.KindInvalidData).
			Cause(err).
			Detail("parsing call request").
			Build())
	}

	var id identity.Identity
	if req.Identity != nil {
		key, err := base64.StdEncoding.DecodeString(req.Identity.Key)
		if err != nil {
			return failure(errors.Key("identity key is not valid base64", err))
		}
		id, err = identityFromRawKey(req.Identity.Algorithm, key)
		if err != nil {
			return failure(err)
		}
	}

	client := &bridge.Client{}
	out, err := client.Call(context.Background(), bridge.Request{
		Canister: req.Canister,
		Method:   req.Method,
		Kind:     bridge.CallKind(req.Kind),
		Args:     req.Args,
		Identity: id,
		Host:     req.Host,
	})
	if err != nil {
		return failure(err)
	}
	return success(out)
}

// FetchInterface performs a certified read of a canister's interface
// description and returns its source text.
func FetchInterface(canister, host string) string {
	client := &bridge.Client{}
	source, err := client.FetchInterface(context.Background(), canister, host)
	if err != nil {
		return failure(err)
	}
	return success(source)
}

// MethodInfo is the JSON summary of one service method.
type MethodInfo struct {
	Name string   `json:"name"`
	Kind string   `json:"kind"`
	Args []string `json:"args"`
	Rets []string `json:"rets"`
}

// ParseInterface parses an interface description and summarizes its
// methods.
func ParseInterface(source string) string {
	svc, err := bridge.ParseInterface(source)
	if err != nil {
		return failure(err)
	}
	methods := make([]MethodInfo, len(svc.Methods))
	for i, m := range svc.Methods {
		info := MethodInfo{
			Name: m.Name,
			Kind: m.Kind.String(),
			Args: make([]string, len(m.Args)),
			Rets: make([]string, len(m.Rets)),
		}
		for j, t := range m.Args {
			info.Args[j] = t.String()
		}
		for j, t := range m.Rets {
			info.Rets[j] = t.String()
		}
		methods[i] = info
	}
	return success(map[string]any{"methods": methods})
}
