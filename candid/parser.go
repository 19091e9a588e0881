package candid

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/canscript/canscript/errors"
)

// Parser for the Candid textual interface-description grammar. The output
// Service is fully type-checked: every named reference is bound and every
// method resolves to a function type.

// Parse parses and type-checks an interface-description document.
// It fails if the document has no service block or if a declaration does
// not type-check.
func Parse(source string) (*Service, error) {
	toks, err := lexAll(source)
	if err != nil {
		return nil, errors.ParseFailed("lexing interface description", err)
	}

	p := &parser{
		toks: toks,
		defs: &Definitions{Types: map[string]Type{}},
	}
	svc, err := p.parseProgram()
	if err != nil {
		return nil, errors.ParseFailed("parsing interface description", err)
	}
	if svc == nil {
		return nil, errors.ParseFailed("document has no service definition", nil)
	}
	if err := p.typecheck(svc); err != nil {
		return nil, errors.New(errors.PhaseTypecheck, errors.KindCandidParse).
			Cause(err).
			Detail("interface description failed type checking").
			Build()
	}
	return svc, nil
}

type parser struct {
	toks []token
	pos  int
	defs *Definitions
}

func (p *parser) cur() token {
	return p.toks[p.pos]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.typ != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(typ tokenType) bool {
	if p.cur().typ == typ {
		p.advance()
		return true
	}
	return false
}

func (p *parser) acceptKeyword(kw string) bool {
	if p.cur().typ == tokIdent && p.cur().text == kw {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(typ tokenType) (token, error) {
	t := p.cur()
	if t.typ != typ {
		return token{}, p.errorf("expected %s, found %s", typ, describe(t))
	}
	return p.advance(), nil
}

func (p *parser) errorf(format string, args ...any) error {
	t := p.cur()
	return fmt.Errorf("%d:%d: %s", t.line, t.col, fmt.Sprintf(format, args...))
}

func describe(t token) string {
	if t.typ == tokIdent || t.typ == tokNumber {
		return fmt.Sprintf("%q", t.text)
	}
	return t.typ.String()
}

// rawMethod is a parsed but not yet resolved service method.
type rawMethod struct {
	name string
	typ  Type
}

func (p *parser) parseProgram() (*Service, error) {
	var raw []rawMethod
	sawService := false

	for p.cur().typ != tokEOF {
		switch {
		case p.acceptKeyword("type"):
			if err := p.parseTypeDef(); err != nil {
				return nil, err
			}
		case p.acceptKeyword("import"):
			// Imports cannot be fetched here; the advertised metadata is
			// expected to be self-contained.
			if _, err := p.expect(tokText); err != nil {
				return nil, err
			}
			if _, err := p.expect(tokSemi); err != nil {
				return nil, err
			}
		case p.acceptKeyword("service"):
			if sawService {
				return nil, p.errorf("duplicate service definition")
			}
			sawService = true
			methods, err := p.parseServiceDef()
			if err != nil {
				return nil, err
			}
			raw = methods
			p.accept(tokSemi)
		default:
			return nil, p.errorf("expected 'type', 'import' or 'service', found %s", describe(p.cur()))
		}
	}

	if !sawService {
		return nil, nil
	}
	return p.buildService(raw)
}

func (p *parser) parseTypeDef() error {
	name, err := p.expect(tokIdent)
	if err != nil {
		return err
	}
	if _, err := p.expect(tokEquals); err != nil {
		return err
	}
	typ, err := p.parseType()
	if err != nil {
		return fmt.Errorf("in type %q: %w", name.text, err)
	}
	if _, err := p.expect(tokSemi); err != nil {
		return err
	}
	if _, exists := p.defs.Types[name.text]; exists {
		return fmt.Errorf("type %q defined twice", name.text)
	}
	p.defs.Types[name.text] = typ
	p.defs.Order = append(p.defs.Order, name.text)
	return nil
}

func (p *parser) parseServiceDef() ([]rawMethod, error) {
	// Optional service name.
	if p.cur().typ == tokIdent {
		p.advance()
	}
	if _, err := p.expect(tokColon); err != nil {
		return nil, err
	}

	// Optional init arguments: service : (args) -> { ... }
	if p.cur().typ == tokLParen {
		if _, err := p.parseTypeSeq(); err != nil {
			return nil, err
		}
		if _, err := p.expect(tokArrow); err != nil {
			return nil, err
		}
	}

	if p.cur().typ == tokIdent {
		// Service body given as a named service type.
		name := p.advance().text
		ref := RefType{Name: name, defs: p.defs}
		resolved, err := unwrap(ref)
		if err != nil {
			return nil, fmt.Errorf("service body: %w", err)
		}
		svcType, ok := resolved.(ServiceRefType)
		if !ok {
			return nil, fmt.Errorf("service body %q is not a service type", name)
		}
		raw := make([]rawMethod, len(svcType.Methods))
		for i, m := range svcType.Methods {
			raw[i] = rawMethod{name: m.Name, typ: FuncRefType{
				Args:        m.Args,
				Rets:        m.Rets,
				Annotations: annotationsOf(m.Kind),
			}}
		}
		return raw, nil
	}

	return p.parseServiceBody()
}

func (p *parser) parseServiceBody() ([]rawMethod, error) {
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	var methods []rawMethod
	seen := map[string]bool{}
	for p.cur().typ != tokRBrace {
		name, err := p.parseMethodName()
		if err != nil {
			return nil, err
		}
		if seen[name] {
			return nil, fmt.Errorf("method %q declared twice", name)
		}
		seen[name] = true
		if _, err := p.expect(tokColon); err != nil {
			return nil, err
		}

		var typ Type
		if p.cur().typ == tokIdent && !isTypeKeyword(p.cur().text) {
			typ = RefType{Name: p.advance().text, defs: p.defs}
		} else {
			typ, err = p.parseFuncSig()
			if err != nil {
				return nil, fmt.Errorf("in method %q: %w", name, err)
			}
		}
		methods = append(methods, rawMethod{name: name, typ: typ})

		if !p.accept(tokSemi) {
			break
		}
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}
	return methods, nil
}

func (p *parser) parseMethodName() (string, error) {
	t := p.cur()
	switch t.typ {
	case tokIdent:
		p.advance()
		return t.text, nil
	case tokText:
		p.advance()
		return t.text, nil
	default:
		return "", p.errorf("expected method name, found %s", describe(t))
	}
}

// parseFuncSig parses "(args) -> (rets) annotations".
func (p *parser) parseFuncSig() (FuncRefType, error) {
	args, err := p.parseTypeSeq()
	if err != nil {
		return FuncRefType{}, err
	}
	if _, err := p.expect(tokArrow); err != nil {
		return FuncRefType{}, err
	}
	rets, err := p.parseTypeSeq()
	if err != nil {
		return FuncRefType{}, err
	}
	var annotations []string
	for {
		switch {
		case p.acceptKeyword("query"):
			annotations = append(annotations, "query")
		case p.acceptKeyword("composite_query"):
			annotations = append(annotations, "composite_query")
		case p.acceptKeyword("oneway"):
			annotations = append(annotations, "oneway")
		default:
			return FuncRefType{Args: args, Rets: rets, Annotations: annotations}, nil
		}
	}
}

// parseTypeSeq parses "(t1, t2, ...)" allowing named arguments "n : t".
func (p *parser) parseTypeSeq() ([]Type, error) {
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	var types []Type
	for p.cur().typ != tokRParen {
		// A leading "name :" is documentation only; skip it.
		if p.cur().typ == tokIdent && p.toks[p.pos+1].typ == tokColon && !isTypeKeyword(p.cur().text) {
			p.advance()
			p.advance()
		}
		typ, err := p.parseType()
		if err != nil {
			return nil, err
		}
		types = append(types, typ)
		if !p.accept(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return types, nil
}

var primNames = map[string]PrimKind{
	"null": Null, "bool": Bool, "nat": Nat, "int": Int,
	"nat8": Nat8, "nat16": Nat16, "nat32": Nat32, "nat64": Nat64,
	"int8": Int8, "int16": Int16, "int32": Int32, "int64": Int64,
	"float32": Float32, "float64": Float64,
	"text": Text, "reserved": Reserved, "empty": Empty,
	"principal": PrincipalKind,
}

func isTypeKeyword(name string) bool {
	if _, ok := primNames[name]; ok {
		return true
	}
	switch name {
	case "opt", "vec", "blob", "record", "variant", "func", "service":
		return true
	}
	return false
}

func (p *parser) parseType() (Type, error) {
	t := p.cur()
	if t.typ != tokIdent && t.typ != tokLParen {
		return nil, p.errorf("expected a type, found %s", describe(t))
	}

	switch {
	case p.acceptKeyword("opt"):
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return OptType{Elem: elem}, nil
	case p.acceptKeyword("vec"):
		elem, err := p.parseType()
		if err != nil {
			return nil, err
		}
		return VecType{Elem: elem}, nil
	case p.acceptKeyword("blob"):
		return VecType{Elem: PrimType{Kind: Nat8}}, nil
	case p.acceptKeyword("record"):
		fields, err := p.parseFieldBlock(false)
		if err != nil {
			return nil, err
		}
		return RecordType{Fields: fields}, nil
	case p.acceptKeyword("variant"):
		cases, err := p.parseFieldBlock(true)
		if err != nil {
			return nil, err
		}
		return VariantType{Cases: cases}, nil
	case p.acceptKeyword("func"):
		return p.parseFuncSig()
	case p.acceptKeyword("service"):
		methods, err := p.parseServiceBody()
		if err != nil {
			return nil, err
		}
		svc, err := p.buildService(methods)
		if err != nil {
			return nil, err
		}
		return ServiceRefType{Methods: svc.Methods}, nil
	default:
		if kind, ok := primNames[t.text]; ok {
			p.advance()
			return PrimType{Kind: kind}, nil
		}
		p.advance()
		return RefType{Name: t.text, defs: p.defs}, nil
	}
}

// parseFieldBlock parses "{ field; field; ... }" for records and variants.
// Unlabeled fields take consecutive numeric labels (tuple shorthand); for
// variants a bare name is a payload-less case.
func (p *parser) parseFieldBlock(isVariant bool) ([]Field, error) {
	if _, err := p.expect(tokLBrace); err != nil {
		return nil, err
	}
	var fields []Field
	nextID := uint32(0)
	seen := map[uint32]string{}

	for p.cur().typ != tokRBrace {
		field, err := p.parseField(isVariant, &nextID)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[field.Label.ID]; dup {
			return nil, p.errorf("field label %q collides with %q", field.Label.Key(), prev)
		}
		seen[field.Label.ID] = field.Label.Key()
		fields = append(fields, field)
		if !p.accept(tokSemi) {
			break
		}
	}
	if _, err := p.expect(tokRBrace); err != nil {
		return nil, err
	}

	sortFields(fields)
	return fields, nil
}

func (p *parser) parseField(isVariant bool, nextID *uint32) (Field, error) {
	t := p.cur()

	// Numeric label: "12 : t" (or bare "12" in variants).
	if t.typ == tokNumber {
		id, err := parseFieldID(t.text)
		if err != nil {
			return Field{}, p.errorf("%v", err)
		}
		p.advance()
		*nextID = id + 1
		if p.accept(tokColon) {
			typ, err := p.parseType()
			if err != nil {
				return Field{}, err
			}
			return Field{Label: IDLabel(id), Type: typ}, nil
		}
		if !isVariant {
			return Field{}, p.errorf("record field %s needs a type", t.text)
		}
		return Field{Label: IDLabel(id), Type: PrimType{Kind: Null}}, nil
	}

	// Named label: "name : t", quoted name, or bare variant case.
	if (t.typ == tokIdent && !isTypeKeyword(t.text)) || t.typ == tokText {
		name := t.text
		p.advance()
		if p.accept(tokColon) {
			typ, err := p.parseType()
			if err != nil {
				return Field{}, err
			}
			return Field{Label: NameLabel(name), Type: typ}, nil
		}
		if !isVariant {
			return Field{}, p.errorf("record field %q needs a type", name)
		}
		return Field{Label: NameLabel(name), Type: PrimType{Kind: Null}}, nil
	}

	// Tuple shorthand: a bare type takes the next consecutive label.
	typ, err := p.parseType()
	if err != nil {
		return Field{}, err
	}
	id := *nextID
	*nextID = id + 1
	return Field{Label: IDLabel(id), Type: typ}, nil
}

func parseFieldID(text string) (uint32, error) {
	clean := strings.ReplaceAll(text, "_", "")
	n := new(big.Int)
	if strings.HasPrefix(clean, "0x") || strings.HasPrefix(clean, "0X") {
		if _, ok := n.SetString(clean[2:], 16); !ok {
			return 0, fmt.Errorf("invalid hex field label %q", text)
		}
	} else {
		if _, ok := n.SetString(clean, 10); !ok {
			return 0, fmt.Errorf("invalid field label %q", text)
		}
	}
	if !n.IsUint64() || n.Uint64() > 0xFFFFFFFF {
		return 0, fmt.Errorf("field label %q exceeds 32 bits", text)
	}
	return uint32(n.Uint64()), nil
}

func annotationsOf(kind MethodKind) []string {
	switch kind {
	case KindCompositeQuery:
		return []string{"composite_query"}
	case KindQuery:
		return []string{"query"}
	default:
		return nil
	}
}

// buildService resolves raw methods into the final Service, classifying each
// method's kind. composite_query wins over query wins over update.
func (p *parser) buildService(raw []rawMethod) (*Service, error) {
	svc := &Service{Methods: make([]Method, 0, len(raw))}
	for _, rm := range raw {
		resolved, err := unwrap(rm.typ)
		if err != nil {
			return nil, fmt.Errorf("method %q: %w", rm.name, err)
		}
		fn, ok := resolved.(FuncRefType)
		if !ok {
			return nil, fmt.Errorf("method %q: type %s is not a function type", rm.name, resolved)
		}

		kind := KindUpdate
		for _, a := range fn.Annotations {
			if a == "composite_query" {
				kind = KindCompositeQuery
				break
			}
			if a == "query" {
				kind = KindQuery
			}
		}

		svc.Methods = append(svc.Methods, Method{
			Name: rm.name,
			Kind: kind,
			Args: fn.Args,
			Rets: fn.Rets,
		})
	}
	return svc, nil
}

// typecheck verifies that every type reference reachable from the service
// or the definitions table is bound and free of degenerate reference cycles.
func (p *parser) typecheck(svc *Service) error {
	for _, name := range p.defs.Order {
		if err := checkRefs(p.defs.Types[name], map[string]bool{name: true}); err != nil {
			return fmt.Errorf("in type %q: %w", name, err)
		}
	}
	for _, m := range svc.Methods {
		for _, t := range m.Args {
			if err := checkRefs(t, nil); err != nil {
				return fmt.Errorf("in method %q: %w", m.Name, err)
			}
		}
		for _, t := range m.Rets {
			if err := checkRefs(t, nil); err != nil {
				return fmt.Errorf("in method %q: %w", m.Name, err)
			}
		}
	}
	return nil
}

// checkRefs verifies reference bindings one level deep; recursion through
// composite types is fine (that is how recursive types are expressed), only
// a pure reference chain that never reaches a structural type is an error.
func checkRefs(t Type, chain map[string]bool) error {
	switch ty := t.(type) {
	case RefType:
		resolved, err := ty.Resolve()
		if err != nil {
			return err
		}
		if next, isRef := resolved.(RefType); isRef {
			if chain == nil {
				chain = map[string]bool{}
			}
			if chain[next.Name] {
				return fmt.Errorf("reference cycle through %q never reaches a concrete type", next.Name)
			}
			chain[ty.Name] = true
			return checkRefs(resolved, chain)
		}
		return nil
	case OptType:
		return checkRefs(ty.Elem, nil)
	case VecType:
		return checkRefs(ty.Elem, nil)
	case RecordType:
		for _, f := range ty.Fields {
			if err := checkRefs(f.Type, nil); err != nil {
				return err
			}
		}
		return nil
	case VariantType:
		for _, c := range ty.Cases {
			if err := checkRefs(c.Type, nil); err != nil {
				return err
			}
		}
		return nil
	case FuncRefType:
		for _, a := range ty.Args {
			if err := checkRefs(a, nil); err != nil {
				return err
			}
		}
		for _, r := range ty.Rets {
			if err := checkRefs(r, nil); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}
