package agent

import (
	"context"
	"encoding/hex"
	stderrors "errors"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/fxamacker/cbor/v2"

	"github.com/canscript/canscript/certification"
	"github.com/canscript/canscript/errors"
	"github.com/canscript/canscript/identity"
	"github.com/canscript/canscript/principal"
)

func TestRequestIDVector(t *testing.T) {
	// Documented example of the representation-independent hash.
	id, err := RequestID(map[string]any{
		"request_type": "call",
		"canister_id":  []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04, 0xD2},
		"method_name":  "hello",
		"arg":          []byte("DIDL\x00\xFD*"),
	})
	if err != nil {
		t.Fatalf("RequestID() error: %v", err)
	}
	want := "8781291c347db32a9d8c10eb62b710fce5a93be676474c42babc74c51858f94b"
	if got := hex.EncodeToString(id[:]); got != want {
		t.Fatalf("RequestID() = %s, want %s", got, want)
	}
}

func TestRequestIDSensitivity(t *testing.T) {
	base := map[string]any{
		"request_type":   "query",
		"sender":         []byte{0x04},
		"canister_id":    []byte{0, 0, 0, 1},
		"method_name":    "ping",
		"arg":            []byte{},
		"ingress_expiry": uint64(1720000000000000000),
	}
	a, err := RequestID(base)
	if err != nil {
		t.Fatalf("RequestID() error: %v", err)
	}
	b, err := RequestID(base)
	if err != nil {
		t.Fatalf("RequestID() error: %v", err)
	}
	if a != b {
		t.Fatal("same content hashed differently")
	}

	changed := map[string]any{}
	for k, v := range base {
		changed[k] = v
	}
	changed["method_name"] = "pong"
	c, err := RequestID(changed)
	if err != nil {
		t.Fatalf("RequestID() error: %v", err)
	}
	if a == c {
		t.Fatal("different content hashed identically")
	}
}

func TestRequestIDRejectsUnhashable(t *testing.T) {
	if _, err := RequestID(map[string]any{"bad": 3.14}); err == nil {
		t.Fatal("want error for unhashable field")
	}
}

// blsSigner issues the certificates a replica would.
type blsSigner struct {
	secret *big.Int
	pub    bls12381.G2Affine
}

func newBLSSigner(secret int64) *blsSigner {
	s := &blsSigner{secret: big.NewInt(secret)}
	_, _, _, g2 := bls12381.Generators()
	s.pub.ScalarMultiplication(&g2, s.secret)
	return s
}

func (s *blsSigner) rootKeyDER() []byte {
	pub := s.pub.Bytes()
	der := make([]byte, 37, 37+len(pub))
	return append(der, pub[:]...)
}

func (s *blsSigner) certify(t *testing.T, tree certification.Node) []byte {
	t.Helper()
	treeCBOR, err := cbor.Marshal(nodeToCBOR(tree))
	if err != nil {
		t.Fatalf("encoding tree: %v", err)
	}

	digest := tree.Digest()
	msg := []byte{byte(len("ic-state-root"))}
	msg = append(msg, "ic-state-root"...)
	msg = append(msg, digest[:]...)
	hm, err := bls12381.HashToG1(msg, []byte("BLS_SIG_BLS12381G1_XMD:SHA-256_SSWU_RO_NULL_"))
	if err != nil {
		t.Fatalf("HashToG1() error: %v", err)
	}
	var sig bls12381.G1Affine
	sig.ScalarMultiplication(&hm, s.secret)
	sigBytes := sig.Bytes()

	raw, err := cbor.Marshal(certification.Certificate{
		Tree:      treeCBOR,
		Signature: sigBytes[:],
	})
	if err != nil {
		t.Fatalf("encoding certificate: %v", err)
	}
	return raw
}

func nodeToCBOR(n certification.Node) any {
	switch v := n.(type) {
	case certification.EmptyNode:
		return []any{0}
	case certification.ForkNode:
		return []any{1, nodeToCBOR(v.Left), nodeToCBOR(v.Right)}
	case certification.LabeledNode:
		return []any{2, v.Label, nodeToCBOR(v.Tree)}
	case certification.LeafNode:
		return []any{3, v.Value}
	case certification.PrunedNode:
		return []any{4, v.Hash[:]}
	default:
		panic("unhandled node")
	}
}

func decodeEnvelope(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		t.Fatalf("reading request body: %v", err)
	}
	if len(body) < 3 || body[0] != 0xd9 || body[1] != 0xd9 || body[2] != 0xf7 {
		t.Fatal("request body lacks the self-describing CBOR prefix")
	}
	var envelope struct {
		Content map[string]any `cbor:"content"`
	}
	if err := cbor.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decoding envelope: %v", err)
	}
	return envelope.Content
}

func testCanister(t *testing.T) principal.Principal {
	t.Helper()
	p, err := principal.FromText("ryjl3-tyaaa-aaaaa-aaaba-cai")
	if err != nil {
		t.Fatalf("FromText() error: %v", err)
	}
	return p
}

func TestQuery(t *testing.T) {
	canister := testCanister(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/canister/"+canister.Text()+"/query" {
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/cbor" {
			t.Errorf("Content-Type = %q", ct)
		}
		content := decodeEnvelope(t, r)
		if content["method_name"] != "greet" {
			t.Errorf("method_name = %v", content["method_name"])
		}
		resp, _ := cbor.Marshal(map[string]any{
			"status": "replied",
			"reply":  map[string]any{"arg": []byte("DIDL\x00\x01\x71\x02hi")},
		})
		w.Write(resp)
	}))
	defer srv.Close()

	a, err := New(Config{Host: srv.URL})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	reply, err := a.Query(context.Background(), canister, "greet", []byte("DIDL\x00\x00"))
	if err != nil {
		t.Fatalf("Query() error: %v", err)
	}
	if string(reply) != "DIDL\x00\x01\x71\x02hi" {
		t.Fatalf("Query() reply = %x", reply)
	}
}

func TestQueryRejected(t *testing.T) {
	canister := testCanister(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp, _ := cbor.Marshal(map[string]any{
			"status":         "rejected",
			"reject_code":    uint64(4),
			"reject_message": "method does not exist",
		})
		w.Write(resp)
	}))
	defer srv.Close()

	a, err := New(Config{Host: srv.URL})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	_, err = a.Query(context.Background(), canister, "missing", nil)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseNet, Kind: errors.KindRejected}) {
		t.Fatalf("want rejection, got %v", err)
	}
}

func TestQuerySignedEnvelope(t *testing.T) {
	canister := testCanister(t)
	id, err := identity.NewEd25519()
	if err != nil {
		t.Fatalf("NewEd25519() error: %v", err)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var envelope struct {
			Content      map[string]any `cbor:"content"`
			SenderPubkey []byte         `cbor:"sender_pubkey"`
			SenderSig    []byte         `cbor:"sender_sig"`
		}
		if err := cbor.Unmarshal(body, &envelope); err != nil {
			t.Errorf("decoding envelope: %v", err)
		}
		if len(envelope.SenderPubkey) == 0 || len(envelope.SenderSig) != 64 {
			t.Errorf("envelope not signed: pubkey=%d sig=%d", len(envelope.SenderPubkey), len(envelope.SenderSig))
		}
		resp, _ := cbor.Marshal(map[string]any{
			"status": "replied",
			"reply":  map[string]any{"arg": []byte{}},
		})
		w.Write(resp)
	}))
	defer srv.Close()

	a, err := New(Config{Host: srv.URL, Identity: id})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if _, err := a.Query(context.Background(), canister, "greet", nil); err != nil {
		t.Fatalf("Query() error: %v", err)
	}
}

func TestFetchRootKeyOnce(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/status" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		calls++
		resp, _ := cbor.Marshal(map[string]any{"root_key": []byte("not-a-real-key-but-long-enough")})
		w.Write(resp)
	}))
	defer srv.Close()

	a, err := New(Config{Host: srv.URL})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := a.FetchRootKey(context.Background()); err != nil {
		t.Fatalf("FetchRootKey() error: %v", err)
	}
	if err := a.FetchRootKey(context.Background()); err != nil {
		t.Fatalf("FetchRootKey() error: %v", err)
	}
	if calls != 1 {
		t.Fatalf("status endpoint hit %d times, want 1", calls)
	}
}

func TestGetCanisterMetadata(t *testing.T) {
	canister := testCanister(t)
	signer := newBLSSigner(7331)
	const didSource = "service : { greet : (text) -> (text) query }"

	tree := certification.LabeledNode{Label: []byte("canister"), Tree: certification.LabeledNode{
		Label: canister.Raw,
		Tree: certification.LabeledNode{Label: []byte("metadata"), Tree: certification.LabeledNode{
			Label: []byte("candid:service"),
			Tree:  certification.LeafNode{Value: []byte(didSource)},
		}},
	}}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/status":
			resp, _ := cbor.Marshal(map[string]any{"root_key": signer.rootKeyDER()})
			w.Write(resp)
		case "/api/v2/canister/" + canister.Text() + "/read_state":
			resp, _ := cbor.Marshal(map[string]any{"certificate": signer.certify(t, tree)})
			w.Write(resp)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a, err := New(Config{Host: srv.URL})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	source, err := a.GetCanisterMetadata(context.Background(), canister, "candid:service")
	if err != nil {
		t.Fatalf("GetCanisterMetadata() error: %v", err)
	}
	if string(source) != didSource {
		t.Fatalf("GetCanisterMetadata() = %q", source)
	}
}

func TestCallPollsToReply(t *testing.T) {
	canister := testCanister(t)
	signer := newBLSSigner(9009)
	reads := 0

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v2/status":
			resp, _ := cbor.Marshal(map[string]any{"root_key": signer.rootKeyDER()})
			w.Write(resp)
		case "/api/v2/canister/" + canister.Text() + "/call":
			w.WriteHeader(http.StatusAccepted)
		case "/api/v2/canister/" + canister.Text() + "/read_state":
			reads++
			content := decodeEnvelope(t, r)
			paths := content["paths"].([]any)
			segs := paths[0].([]any)
			requestID := segs[1].([]byte)

			var tree certification.Node
			if reads == 1 {
				tree = certification.LabeledNode{Label: []byte("request_status"), Tree: certification.LabeledNode{
					Label: requestID,
					Tree:  certification.LabeledNode{Label: []byte("status"), Tree: certification.LeafNode{Value: []byte("processing")}},
				}}
			} else {
				tree = certification.LabeledNode{Label: []byte("request_status"), Tree: certification.LabeledNode{
					Label: requestID,
					Tree: certification.ForkNode{
						Left:  certification.LabeledNode{Label: []byte("reply"), Tree: certification.LeafNode{Value: []byte("DIDL\x00\x00")}},
						Right: certification.LabeledNode{Label: []byte("status"), Tree: certification.LeafNode{Value: []byte("replied")}},
					},
				}}
			}
			resp, _ := cbor.Marshal(map[string]any{"certificate": signer.certify(t, tree)})
			w.Write(resp)
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	a, err := New(Config{Host: srv.URL})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	reply, err := a.Call(ctx, canister, "put_listing", []byte("DIDL\x00\x00"))
	if err != nil {
		t.Fatalf("Call() error: %v", err)
	}
	if string(reply) != "DIDL\x00\x00" {
		t.Fatalf("Call() reply = %x", reply)
	}
	if reads < 2 {
		t.Fatalf("read_state hit %d times, want at least 2", reads)
	}
}
