package candid

import (
	"bytes"
	"math/big"
	"reflect"
	"testing"

	"github.com/canscript/canscript/principal"
)

func mustParse(t *testing.T, src string) *Service {
	t.Helper()
	svc, err := Parse(src)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return svc
}

func TestEncodeDecodePrimitives(t *testing.T) {
	owner := principal.Anonymous()

	tests := []struct {
		name string
		typ  Type
		val  Value
	}{
		{"bool", PrimType{Kind: Bool}, BoolValue{V: true}},
		{"nat", PrimType{Kind: Nat}, NatValue{V: big.NewInt(624485)}},
		{"int negative", PrimType{Kind: Int}, IntValue{V: big.NewInt(-123456)}},
		{"nat8", PrimType{Kind: Nat8}, Nat8Value{V: 0xff}},
		{"nat64 max", PrimType{Kind: Nat64}, Nat64Value{V: 18446744073709551615}},
		{"int64 min", PrimType{Kind: Int64}, Int64Value{V: -9223372036854775808}},
		{"float64", PrimType{Kind: Float64}, Float64Value{V: 3.5}},
		{"text", PrimType{Kind: Text}, TextValue{V: "héllo wörld"}},
		{"principal", PrimType{Kind: PrincipalKind}, PrincipalValue{P: owner}},
		{"null", PrimType{Kind: Null}, NullValue{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeArgs([]Type{tt.typ}, []Value{tt.val})
			if err != nil {
				t.Fatalf("EncodeArgs: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("decoded %d values, want 1", len(got))
			}
			if !valueEqual(got[0], tt.val) {
				t.Errorf("round trip = %#v, want %#v", got[0], tt.val)
			}
		})
	}
}

func TestEncodeDecodeComposites(t *testing.T) {
	svc := mustParse(t, marketInterface)
	m, _ := svc.Method("put_listing")
	listingType := m.Args[0]

	listing := RecordValue{Fields: []FieldValue{
		{Label: NameLabel("id"), V: Nat64Value{V: 42}},
		{Label: NameLabel("title"), V: TextValue{V: "vintage synth"}},
		{Label: NameLabel("price"), V: NatValue{V: big.NewInt(150)}},
		{Label: NameLabel("tags"), V: VecValue{Elems: []Value{
			TextValue{V: "music"}, TextValue{V: "hardware"},
		}}},
		{Label: NameLabel("owner"), V: PrincipalValue{P: principal.Anonymous()}},
		{Label: NameLabel("thumbnail"), V: OptValue{V: BlobValue{Bytes: []byte{1, 2, 3}}}},
	}}
	sortRecord(&listing)

	data, err := EncodeArgs([]Type{listingType}, []Value{listing})
	if err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}

	// Untyped decode recovers structure with numeric labels only.
	untyped, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rec := untyped[0].(RecordValue)
	for _, f := range rec.Fields {
		if f.Label.Named {
			t.Fatalf("untyped decode produced a named label %q", f.Label.Name)
		}
	}

	// Reconciliation restores the names.
	named, err := DecodeWithTypes(data, []Type{listingType})
	if err != nil {
		t.Fatalf("DecodeWithTypes: %v", err)
	}
	if !valueEqual(named[0], listing) {
		t.Errorf("reconciled value mismatch:\n got %#v\nwant %#v", named[0], listing)
	}
}

func TestEncodeDecodeVariant(t *testing.T) {
	svc := mustParse(t, marketInterface)
	m, _ := svc.Method("list_events")
	eventType := m.Rets[0].(VecType).Elem

	resolved, _ := unwrap(eventType)
	variant := resolved.(VariantType)

	c, ordinal, ok := variant.CaseByName("Removed")
	if !ok {
		t.Fatal("case Removed not found")
	}
	if _, ok := c.Type.(PrimType); !ok {
		t.Fatalf("Removed payload type = %T", c.Type)
	}

	val := VariantValue{Label: NameLabel("Removed"), V: Nat64Value{V: 7}, Index: ordinal}
	data, err := EncodeArgs([]Type{eventType}, []Value{val})
	if err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}
	named, err := DecodeWithTypes(data, []Type{eventType})
	if err != nil {
		t.Fatalf("DecodeWithTypes: %v", err)
	}
	got := named[0].(VariantValue)
	if got.Label.Name != "Removed" || got.Index != ordinal {
		t.Errorf("got case %q (ordinal %d), want Removed (%d)", got.Label.Name, got.Index, ordinal)
	}
	if !valueEqual(got.V, Nat64Value{V: 7}) {
		t.Errorf("payload = %#v", got.V)
	}
}

func TestEncodeDecodeRecursive(t *testing.T) {
	svc := mustParse(t, `
type Tree = record { label : text; children : vec Tree };
service : { root : () -> (Tree) query; };
`)
	m, _ := svc.Method("root")
	treeType := m.Rets[0]

	leaf := func(name string) RecordValue {
		r := RecordValue{Fields: []FieldValue{
			{Label: NameLabel("label"), V: TextValue{V: name}},
			{Label: NameLabel("children"), V: VecValue{}},
		}}
		sortRecord(&r)
		return r
	}
	root := RecordValue{Fields: []FieldValue{
		{Label: NameLabel("label"), V: TextValue{V: "root"}},
		{Label: NameLabel("children"), V: VecValue{Elems: []Value{leaf("a"), leaf("b")}}},
	}}
	sortRecord(&root)

	data, err := EncodeArgs([]Type{treeType}, []Value{root})
	if err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}
	named, err := DecodeWithTypes(data, []Type{treeType})
	if err != nil {
		t.Fatalf("DecodeWithTypes: %v", err)
	}
	if !valueEqual(named[0], root) {
		t.Errorf("recursive round trip mismatch:\n got %#v\nwant %#v", named[0], root)
	}
}

func TestDecodeEmptyArgs(t *testing.T) {
	data, err := EncodeArgs(nil, nil)
	if err != nil {
		t.Fatalf("EncodeArgs: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("DIDL")) {
		t.Fatalf("missing magic: %x", data)
	}
	vals, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(vals) != 0 {
		t.Errorf("decoded %d values, want 0", len(vals))
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", []byte("NOPE\x00\x00")},
		{"truncated table", []byte("DIDL\x05")},
		{"truncated value", []byte{'D', 'I', 'D', 'L', 0x00, 0x01, 0x7d}}, // one nat, no payload
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode(tt.data); err == nil {
				t.Error("Decode succeeded on malformed input")
			}
		})
	}
}

func TestEncodeArityMismatch(t *testing.T) {
	_, err := EncodeArgs([]Type{PrimType{Kind: Text}}, nil)
	if err == nil {
		t.Fatal("expected arity error")
	}
}

// sortRecord orders fields by label ID so literals in tests match wire order.
func sortRecord(r *RecordValue) {
	for i := 1; i < len(r.Fields); i++ {
		for j := i; j > 0 && r.Fields[j-1].Label.ID > r.Fields[j].Label.ID; j-- {
			r.Fields[j-1], r.Fields[j] = r.Fields[j], r.Fields[j-1]
		}
	}
}

// valueEqual compares values structurally; big.Int needs Cmp, everything
// else is plain reflect equality.
func valueEqual(a, b Value) bool {
	switch av := a.(type) {
	case NatValue:
		bv, ok := b.(NatValue)
		return ok && av.V.Cmp(bv.V) == 0
	case IntValue:
		bv, ok := b.(IntValue)
		return ok && av.V.Cmp(bv.V) == 0
	case OptValue:
		bv, ok := b.(OptValue)
		if !ok {
			return false
		}
		if av.V == nil || bv.V == nil {
			return av.V == nil && bv.V == nil
		}
		return valueEqual(av.V, bv.V)
	case VecValue:
		bv, ok := b.(VecValue)
		if !ok || len(av.Elems) != len(bv.Elems) {
			return false
		}
		for i := range av.Elems {
			if !valueEqual(av.Elems[i], bv.Elems[i]) {
				return false
			}
		}
		return true
	case RecordValue:
		bv, ok := b.(RecordValue)
		if !ok || len(av.Fields) != len(bv.Fields) {
			return false
		}
		for i := range av.Fields {
			if av.Fields[i].Label != bv.Fields[i].Label {
				return false
			}
			if !valueEqual(av.Fields[i].V, bv.Fields[i].V) {
				return false
			}
		}
		return true
	case VariantValue:
		bv, ok := b.(VariantValue)
		if !ok || av.Label != bv.Label || av.Index != bv.Index {
			return false
		}
		return valueEqual(av.V, bv.V)
	default:
		return reflect.DeepEqual(a, b)
	}
}
