package engine

import (
	stderrors "errors"
	"strings"
	"testing"
	"time"

	"github.com/canscript/canscript/errors"
)

const budget = 5 * time.Second

const counterScript = `
function init(arg)
	return {count = (arg and arg.start) or 0}, {}
end

function view(state)
	return {type = "text", text = tostring(state.count)}
end

function update(msg, state)
	if msg.type == "inc" then state.count = state.count + 1 end
	return state, {}
end
`

func TestLifecycle(t *testing.T) {
	tr, err := Init(counterScript, []byte(`{"start": 1}`), budget)
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if string(tr.State) != `{"count":1}` {
		t.Fatalf("Init() state = %s", tr.State)
	}
	if string(tr.Effects) != `{}` {
		t.Fatalf("Init() effects = %s", tr.Effects)
	}

	ui, err := View(counterScript, tr.State, budget)
	if err != nil {
		t.Fatalf("View() error: %v", err)
	}
	if string(ui) != `{"text":"1","type":"text"}` {
		t.Fatalf("View() = %s", ui)
	}

	next, err := Update(counterScript, []byte(`{"type": "inc"}`), tr.State, budget)
	if err != nil {
		t.Fatalf("Update() error: %v", err)
	}
	if string(next.State) != `{"count":2}` {
		t.Fatalf("Update() state = %s", next.State)
	}
}

func TestInitWithoutArg(t *testing.T) {
	tr, err := Init(counterScript, nil, budget)
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if string(tr.State) != `{"count":0}` {
		t.Fatalf("Init() state = %s", tr.State)
	}
}

func TestSandboxContainment(t *testing.T) {
	script := `
function init(arg)
	os.execute("ls")
	return {}, {}
end
`
	_, err := Init(script, nil, budget)
	if err == nil {
		t.Fatal("want sandbox failure")
	}
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseScript, Kind: errors.KindLuaRuntime}) {
		t.Fatalf("want script runtime error, got %v", err)
	}
	if !strings.Contains(err.Error(), "attempt to call") {
		t.Fatalf("error should read as a call on nil, got %v", err)
	}
}

func TestSandboxStripsCapabilities(t *testing.T) {
	tests := []string{
		`io.open("/etc/passwd")`,
		`require("socket")`,
		`dofile("x.lua")`,
		`loadfile("x.lua")`,
		`debug.getinfo(1)`,
		`package.loadlib("x", "y")`,
	}
	for _, stmt := range tests {
		t.Run(stmt, func(t *testing.T) {
			script := "function init(arg)\n\t" + stmt + "\n\treturn {}, {}\nend\n"
			_, err := Init(script, nil, budget)
			if err == nil {
				t.Fatal("want sandbox failure")
			}
		})
	}
}

func TestClockSurvivesSandbox(t *testing.T) {
	script := `
function init(arg)
	return {now = os.time() > 0}, {}
end
`
	tr, err := Init(script, nil, budget)
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if string(tr.State) != `{"now":true}` {
		t.Fatalf("Init() state = %s", tr.State)
	}
}

func TestTimeout(t *testing.T) {
	script := `
function init(arg)
	while true do end
end
`
	start := time.Now()
	_, err := Init(script, nil, 50*time.Millisecond)
	elapsed := time.Since(start)

	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseScript, Kind: errors.KindTimeout}) {
		t.Fatalf("want timeout, got %v", err)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("timeout enforcement took %v", elapsed)
	}
}

func TestMissingLifecycleFunction(t *testing.T) {
	_, err := View(`function init(arg) return {}, {} end`, nil, budget)
	if err == nil || !strings.Contains(err.Error(), "view") {
		t.Fatalf("error should name the missing function, got %v", err)
	}
}

func TestMarshalErrors(t *testing.T) {
	t.Run("invalid arg json", func(t *testing.T) {
		_, err := Init(counterScript, []byte(`{not json`), budget)
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseMarshal, Kind: errors.KindInvalidArg}) {
			t.Fatalf("want invalid arg, got %v", err)
		}
	})

	t.Run("unrepresentable ui", func(t *testing.T) {
		script := `
function view(state)
	return function() end
end
`
		_, err := View(script, nil, budget)
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseMarshal, Kind: errors.KindInvalidUI}) {
			t.Fatalf("want invalid ui, got %v", err)
		}
	})

	t.Run("cyclic state", func(t *testing.T) {
		script := `
function init(arg)
	local s = {}
	s.self = s
	return s, {}
end
`
		_, err := Init(script, nil, budget)
		if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseMarshal, Kind: errors.KindInvalidState}) {
			t.Fatalf("want invalid state, got %v", err)
		}
	})
}

func TestScriptErrorIsStructured(t *testing.T) {
	script := `
function init(arg)
	error("deliberate failure")
end
`
	_, err := Init(script, nil, budget)
	if !stderrors.Is(err, &errors.Error{Phase: errors.PhaseScript, Kind: errors.KindLuaRuntime}) {
		t.Fatalf("want script runtime error, got %v", err)
	}
	if errors.CodeOf(err) != "LuaRuntimeError" {
		t.Fatalf("CodeOf() = %q", errors.CodeOf(err))
	}
}

func TestJSONNamespace(t *testing.T) {
	script := `
function init(arg)
	local text = json.encode({a = 1, b = {2, 3}})
	local back = json.decode(text)
	return {sum = back.a + back.b[1] + back.b[2]}, {}
end
`
	tr, err := Init(script, nil, budget)
	if err != nil {
		t.Fatalf("Init() error: %v", err)
	}
	if string(tr.State) != `{"sum":6}` {
		t.Fatalf("Init() state = %s", tr.State)
	}
}

func TestFreshSessionPerCall(t *testing.T) {
	script := `
counter = (counter or 0) + 1

function view(state)
	return counter
end
`
	for i := 0; i < 2; i++ {
		ui, err := View(script, nil, budget)
		if err != nil {
			t.Fatalf("View() error: %v", err)
		}
		// Top-level code re-executes on every call, so the global
		// never advances past 1.
		if string(ui) != `1` {
			t.Fatalf("View() = %s, want 1", ui)
		}
	}
}

func TestEval(t *testing.T) {
	out, err := Eval(`return 6 * 7`, budget)
	if err != nil {
		t.Fatalf("Eval() error: %v", err)
	}
	if string(out) != `42` {
		t.Fatalf("Eval() = %s", out)
	}

	out, err = Eval(`local t = {msg = "hi"} return t`, budget)
	if err != nil {
		t.Fatalf("Eval() error: %v", err)
	}
	if string(out) != `{"msg":"hi"}` {
		t.Fatalf("Eval() = %s", out)
	}

	if _, err := Eval(`this is not lua`, budget); err == nil {
		t.Fatal("want compile error")
	}
}

func TestLint(t *testing.T) {
	if issues := Lint(counterScript); len(issues) != 0 {
		t.Fatalf("Lint() = %v, want none", issues)
	}

	issues := Lint("function broken(\nreturn 1\nend")
	if len(issues) != 1 {
		t.Fatalf("Lint() found %d issues, want 1", len(issues))
	}
	if issues[0].Line == 0 || issues[0].Message == "" {
		t.Fatalf("Lint() issue lacks position or message: %+v", issues[0])
	}
}

func TestValidate(t *testing.T) {
	issues := Validate(`
function init(arg)
	os.execute("rm -rf /")
	while true do end
	return {}, {}
end
`)
	var capability, busyLoop bool
	for _, issue := range issues {
		if issue.Severity != SeverityWarning {
			continue
		}
		if strings.Contains(issue.Message, "os.execute") {
			capability = true
		}
		if strings.Contains(issue.Message, "while true") {
			busyLoop = true
		}
	}
	if !capability || !busyLoop {
		t.Fatalf("Validate() = %v, missing expected warnings", issues)
	}

	issues = Validate(`x = 1`)
	var missingLifecycle bool
	for _, issue := range issues {
		if strings.Contains(issue.Message, "none of init") {
			missingLifecycle = true
		}
	}
	if !missingLifecycle {
		t.Fatalf("Validate() = %v, missing lifecycle warning", issues)
	}

	issues = Validate(`function init( end`)
	var syntax bool
	for _, issue := range issues {
		if issue.Severity == SeverityError {
			syntax = true
		}
	}
	if !syntax {
		t.Fatalf("Validate() = %v, missing syntax error", issues)
	}
}
