package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	canscript "github.com/canscript/canscript"
	"github.com/canscript/canscript/agent"
	"github.com/canscript/canscript/bridge"
	"github.com/canscript/canscript/engine"
)

func main() {
	var (
		op          = flag.String("op", "", "Operation: call, fetch, parse, keygen, principal, sign, init, view, update, eval, lint, validate")
		canister    = flag.String("canister", "", "Canister ID in textual form")
		method      = flag.String("method", "", "Method name to call")
		kind        = flag.String("kind", "", "Call kind override (query, update, composite_query)")
		args        = flag.String("args", "", "JSON argument array for the call")
		host        = flag.String("host", "", "Gateway host URL")
		did         = flag.String("did", "", "Path to a Candid interface file")
		alg         = flag.String("alg", "", "Key algorithm (ed25519 or secp256k1)")
		mnemonic    = flag.String("mnemonic", "", "Recovery phrase for keygen")
		key         = flag.String("key", "", "Base64 private key for sign/call")
		pubkey      = flag.String("pubkey", "", "Base64 DER public key for principal")
		message     = flag.String("msg", "", "Message to sign, or update message JSON")
		script      = flag.String("script", "", "Path to a Lua script")
		arg         = flag.String("arg", "", "JSON argument for script init")
		state       = flag.String("state", "", "JSON state for script view/update")
		budget      = flag.Int64("budget", 0, "Script wall-clock budget in milliseconds (0 = unlimited)")
		interactive = flag.Bool("i", false, "Interactive script mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging to stderr")
	)
	flag.Parse()

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		agent.SetLogger(logger)
		bridge.SetLogger(logger)
		engine.SetLogger(logger)
	}

	if *interactive {
		if *script == "" {
			fmt.Fprintln(os.Stderr, "Usage: canscript -i -script <file.lua> [-arg json] [-budget ms]")
			os.Exit(1)
		}
		if err := runInteractive(*script, *arg, *budget); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *op == "" {
		usage()
		os.Exit(1)
	}

	out, err := run(*op, options{
		canister: *canister,
		method:   *method,
		kind:     *kind,
		args:     *args,
		host:     *host,
		did:      *did,
		alg:      *alg,
		mnemonic: *mnemonic,
		key:      *key,
		pubkey:   *pubkey,
		message:  *message,
		script:   *script,
		arg:      *arg,
		state:    *state,
		budget:   *budget,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(out)
	var envelope canscript.Result
	if json.Unmarshal([]byte(out), &envelope) == nil && !envelope.OK {
		os.Exit(1)
	}
}

type options struct {
	canister string
	method   string
	kind     string
	args     string
	host     string
	did      string
	alg      string
	mnemonic string
	key      string
	pubkey   string
	message  string
	script   string
	arg      string
	state    string
	budget   int64
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: canscript -op call -canister <id> -method <name> [-kind query|update|composite_query] [-args json] [-alg a -key b64] [-host url]")
	fmt.Fprintln(os.Stderr, "       canscript -op fetch -canister <id> [-host url]")
	fmt.Fprintln(os.Stderr, "       canscript -op parse -did <file.did>")
	fmt.Fprintln(os.Stderr, "       canscript -op keygen [-alg ed25519|secp256k1] [-mnemonic phrase]")
	fmt.Fprintln(os.Stderr, "       canscript -op principal -pubkey <b64 der>")
	fmt.Fprintln(os.Stderr, "       canscript -op sign -key <b64> -msg <text> [-alg a]")
	fmt.Fprintln(os.Stderr, "       canscript -op init|view|update|eval|lint|validate -script <file.lua> [-arg json] [-state json] [-msg json] [-budget ms]")
	fmt.Fprintln(os.Stderr, "       canscript -i -script <file.lua>  (interactive mode)")
}

func run(op string, o options) (string, error) {
	switch op {
	case "call":
		req := canscript.CallRequest{
			Canister: o.canister,
			Method:   o.method,
			Kind:     o.kind,
			Args:     json.RawMessage(o.args),
			Host:     o.host,
		}
		if o.key != "" {
			req.Identity = &canscript.CallIdentity{Algorithm: o.alg, Key: o.key}
		}
		raw, err := json.Marshal(req)
		if err != nil {
			return "", err
		}
		return canscript.Call(string(raw)), nil

	case "fetch":
		return canscript.FetchInterface(o.canister, o.host), nil

	case "parse":
		source, err := os.ReadFile(o.did)
		if err != nil {
			return "", err
		}
		return canscript.ParseInterface(string(source)), nil

	case "keygen":
		return canscript.GenerateKeypair(o.alg, o.mnemonic), nil

	case "principal":
		return canscript.DerivePrincipal(o.pubkey), nil

	case "sign":
		return canscript.SignMessage(o.alg, o.key, o.message), nil

	case "init", "view", "update", "eval", "lint", "validate":
		source, err := os.ReadFile(o.script)
		if err != nil {
			return "", err
		}
		return runScript(op, string(source), o), nil

	default:
		return "", fmt.Errorf("unknown operation %q", op)
	}
}

func runScript(op, source string, o options) string {
	switch op {
	case "init":
		return canscript.InitScript(source, o.arg, o.budget)
	case "view":
		return canscript.ViewScript(source, o.state, o.budget)
	case "update":
		return canscript.UpdateScript(source, o.message, o.state, o.budget)
	case "eval":
		return canscript.EvalScript(source, o.budget)
	case "lint":
		return canscript.LintScript(source)
	default:
		return canscript.ValidateScript(source)
	}
}
