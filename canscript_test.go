package canscript

import (
	"encoding/base64"
	"encoding/json"
	"testing"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon about"

func decodeResult(t *testing.T, out string) Result {
	t.Helper()
	var r Result
	if err := json.Unmarshal([]byte(out), &r); err != nil {
		t.Fatalf("operation returned invalid JSON %q: %v", out, err)
	}
	return r
}

func TestGenerateKeypairDeterministic(t *testing.T) {
	for _, algorithm := range []string{AlgorithmEd25519, AlgorithmSecp256k1} {
		t.Run(algorithm, func(t *testing.T) {
			r := decodeResult(t, GenerateKeypair(algorithm, testPhrase))
			if !r.OK {
				t.Fatalf("GenerateKeypair failed: %s", r.Error)
			}
			var kp Keypair
			if err := json.Unmarshal(r.Result, &kp); err != nil {
				t.Fatalf("decoding keypair: %v", err)
			}
			if kp.Mnemonic != testPhrase {
				t.Fatalf("mnemonic = %q", kp.Mnemonic)
			}

			again := decodeResult(t, GenerateKeypair(algorithm, testPhrase))
			var kp2 Keypair
			if err := json.Unmarshal(again.Result, &kp2); err != nil {
				t.Fatalf("decoding keypair: %v", err)
			}
			if kp.Principal != kp2.Principal || kp.PrivateKey != kp2.PrivateKey {
				t.Fatal("same phrase produced different keypairs")
			}

			// The advertised principal is the self-authenticating
			// derivation of the public key.
			derived := decodeResult(t, DerivePrincipal(kp.PublicKeyDER))
			if !derived.OK {
				t.Fatalf("DerivePrincipal failed: %s", derived.Error)
			}
			var p string
			if err := json.Unmarshal(derived.Result, &p); err != nil {
				t.Fatalf("decoding principal: %v", err)
			}
			if p != kp.Principal {
				t.Fatalf("DerivePrincipal = %q, keypair says %q", p, kp.Principal)
			}
		})
	}
}

func TestGenerateKeypairFreshPhrase(t *testing.T) {
	r := decodeResult(t, GenerateKeypair(AlgorithmEd25519, ""))
	if !r.OK {
		t.Fatalf("GenerateKeypair failed: %s", r.Error)
	}
	var kp Keypair
	if err := json.Unmarshal(r.Result, &kp); err != nil {
		t.Fatalf("decoding keypair: %v", err)
	}
	if kp.Mnemonic == "" {
		t.Fatal("fresh keypair carries no recovery phrase")
	}

	// The phrase alone recovers the keypair.
	recovered := decodeResult(t, GenerateKeypair(AlgorithmEd25519, kp.Mnemonic))
	var kp2 Keypair
	if err := json.Unmarshal(recovered.Result, &kp2); err != nil {
		t.Fatalf("decoding keypair: %v", err)
	}
	if kp2.Principal != kp.Principal {
		t.Fatal("recovery phrase did not recover the keypair")
	}
}

func TestGenerateKeypairUnknownAlgorithm(t *testing.T) {
	r := decodeResult(t, GenerateKeypair("rsa", ""))
	if r.OK {
		t.Fatal("want failure for unknown algorithm")
	}
}

func TestSignMessage(t *testing.T) {
	kpResult := decodeResult(t, GenerateKeypair(AlgorithmEd25519, testPhrase))
	var kp Keypair
	if err := json.Unmarshal(kpResult.Result, &kp); err != nil {
		t.Fatalf("decoding keypair: %v", err)
	}

	msg := base64.StdEncoding.EncodeToString([]byte("hello"))
	r := decodeResult(t, SignMessage(AlgorithmEd25519, kp.PrivateKey, msg))
	if !r.OK {
		t.Fatalf("SignMessage failed: %s", r.Error)
	}
	var signed struct {
		Signature string `json:"signature"`
		Principal string `json:"principal"`
	}
	if err := json.Unmarshal(r.Result, &signed); err != nil {
		t.Fatalf("decoding signature: %v", err)
	}
	sig, err := base64.StdEncoding.DecodeString(signed.Signature)
	if err != nil {
		t.Fatalf("signature is not base64: %v", err)
	}
	if len(sig) != 64 {
		t.Fatalf("signature length = %d, want 64", len(sig))
	}
	if signed.Principal != kp.Principal {
		t.Fatalf("signing principal = %q, keypair says %q", signed.Principal, kp.Principal)
	}
}

func TestCallRejectsBadRequest(t *testing.T) {
	r := decodeResult(t, Call(`{"canister_id": "not-a-principal", "method": "get"}`))
	if r.OK {
		t.Fatal("want failure")
	}
	if r.Code != "InvalidCanisterId" {
		t.Fatalf("Code = %q, want InvalidCanisterId", r.Code)
	}

	r = decodeResult(t, Call(`{broken json`))
	if r.OK {
		t.Fatal("want failure for malformed request JSON")
	}
}

func TestParseInterfaceSummary(t *testing.T) {
	r := decodeResult(t, ParseInterface(`
service counter : {
	get : (text) -> (nat64) query;
	add : (text, nat64) -> (nat64);
}
`))
	if !r.OK {
		t.Fatalf("ParseInterface failed: %s", r.Error)
	}
	var summary struct {
		Methods []MethodInfo `json:"methods"`
	}
	if err := json.Unmarshal(r.Result, &summary); err != nil {
		t.Fatalf("decoding summary: %v", err)
	}
	if len(summary.Methods) != 2 {
		t.Fatalf("methods = %+v", summary.Methods)
	}
	byName := map[string]MethodInfo{}
	for _, m := range summary.Methods {
		byName[m.Name] = m
	}
	if byName["get"].Kind != "query" || byName["add"].Kind != "update" {
		t.Fatalf("kinds = %+v", summary.Methods)
	}
	if len(byName["add"].Args) != 2 {
		t.Fatalf("add args = %v", byName["add"].Args)
	}

	r = decodeResult(t, ParseInterface("type X = nat;"))
	if r.OK {
		t.Fatal("want failure for a document with no service")
	}
	if r.Code != "CandidParse" {
		t.Fatalf("Code = %q, want CandidParse", r.Code)
	}
}

func TestScriptOperations(t *testing.T) {
	const script = `
function init(arg)
	return {count = arg.start}, {}
end
`
	r := decodeResult(t, InitScript(script, `{"start": 5}`, 5000))
	if !r.OK {
		t.Fatalf("InitScript failed: %s", r.Error)
	}
	var tr struct {
		State   json.RawMessage `json:"state"`
		Effects json.RawMessage `json:"effects"`
	}
	if err := json.Unmarshal(r.Result, &tr); err != nil {
		t.Fatalf("decoding transition: %v", err)
	}
	if string(tr.State) != `{"count":5}` {
		t.Fatalf("state = %s", tr.State)
	}

	r = decodeResult(t, EvalScript("return 2 + 2", 5000))
	if !r.OK || string(r.Result) != "4" {
		t.Fatalf("EvalScript = %+v", r)
	}

	r = decodeResult(t, InitScript(`function init() error("boom") end`, "null", 5000))
	if r.OK {
		t.Fatal("want failure")
	}
	if r.Code != "LuaRuntimeError" {
		t.Fatalf("Code = %q, want LuaRuntimeError", r.Code)
	}

	r = decodeResult(t, LintScript("function broken( end"))
	if !r.OK {
		t.Fatalf("LintScript failed: %s", r.Error)
	}
	var lint struct {
		Issues []struct {
			Line    int    `json:"line"`
			Message string `json:"message"`
		} `json:"issues"`
	}
	if err := json.Unmarshal(r.Result, &lint); err != nil {
		t.Fatalf("decoding lint result: %v", err)
	}
	if len(lint.Issues) != 1 {
		t.Fatalf("lint issues = %+v", lint.Issues)
	}

	r = decodeResult(t, ValidateScript(`x = os.execute`))
	if !r.OK {
		t.Fatalf("ValidateScript failed: %s", r.Error)
	}
}
