// Package gdbmi speaks GDB's Machine Interface (MI2) over a pair of pipes.
//
// It decodes output records, matches result records to the commands that
// produced them and forwards async records, such as *stopped, to a
// single event stream.
package gdbmi

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedRecord is wrapped by every ParseRecord error.
var ErrMalformedRecord = errors.New("malformed MI record")

// RecordKind identifies the leading character of an output record.
type RecordKind int

const (
	KindResult  RecordKind = iota // ^
	KindExec                      // *
	KindStatus                    // +
	KindNotify                    // =
	KindConsole                   // ~
	KindTarget                    // @
	KindLog                       // &
	KindPrompt                    // (gdb)
)

// String returns the record kind name.
func (k RecordKind) String() string {
	switch k {
	case KindResult:
		return "result"
	case KindExec:
		return "exec"
	case KindStatus:
		return "status"
	case KindNotify:
		return "notify"
	case KindConsole:
		return "console"
	case KindTarget:
		return "target"
	case KindLog:
		return "log"
	case KindPrompt:
		return "prompt"
	default:
		return fmt.Sprintf("unknown(%d)", int(k))
	}
}

// IsAsync reports whether records of this kind go to the event stream.
func (k RecordKind) IsAsync() bool {
	return k == KindExec || k == KindStatus || k == KindNotify
}

// ValueKind identifies the shape of a Value.
type ValueKind int

const (
	ValueConst ValueKind = iota
	ValueTuple
	ValueList
)

// Result is a name=value pair.
type Result struct {
	Name  string
	Value Value
}

// Value is an MI value: a C-string constant, a tuple of results, or a list.
// Lists hold either Items (values) or Results (name=value pairs).
type Value struct {
	Kind    ValueKind
	Const   string
	Results []Result
	Items   []Value
}

// String returns the constant, or "" for tuples and lists.
func (v Value) String() string {
	if v.Kind != ValueConst {
		return ""
	}
	return v.Const
}

// Field looks up name among the value's results.
func (v Value) Field(name string) (Value, bool) {
	return lookup(v.Results, name)
}

// Record is one decoded line of MI output.
type Record struct {
	Token string
	Kind  RecordKind
	// Class is the result or async class, e.g. "done" or "stopped".
	Class   string
	Results []Result
	// Text is the unescaped payload of stream records.
	Text string
}

// Get looks up a top-level result.
func (r Record) Get(name string) (Value, bool) {
	return lookup(r.Results, name)
}

// String returns the constant value of a top-level result, or "".
func (r Record) String(name string) string {
	v, _ := r.Get(name)
	return v.String()
}

func lookup(results []Result, name string) (Value, bool) {
	for _, res := range results {
		if res.Name == name {
			return res.Value, true
		}
	}
	return Value{}, false
}

// ParseRecord decodes a single line of MI output without its line ending.
func ParseRecord(line string) (Record, error) {
	line = strings.TrimRight(line, "\r\n")
	if strings.TrimSpace(line) == "(gdb)" {
		return Record{Kind: KindPrompt}, nil
	}

	p := &parser{src: line}
	token := p.takeWhile(isDigit)

	if p.eof() {
		return Record{}, p.errorf("missing record type")
	}

	rec := Record{Token: token}
	switch c := p.next(); c {
	case '^', '*', '+', '=':
		rec.Kind = map[byte]RecordKind{'^': KindResult, '*': KindExec, '+': KindStatus, '=': KindNotify}[c]
		rec.Class = p.takeWhile(isClassChar)
		if rec.Class == "" {
			return Record{}, p.errorf("missing class")
		}
		for !p.eof() {
			if err := p.expect(','); err != nil {
				return Record{}, err
			}
			res, err := p.result()
			if err != nil {
				return Record{}, err
			}
			rec.Results = append(rec.Results, res)
		}
	case '~', '@', '&':
		if token != "" {
			return Record{}, p.errorf("token on stream record")
		}
		rec.Kind = map[byte]RecordKind{'~': KindConsole, '@': KindTarget, '&': KindLog}[c]
		text, err := p.cstring()
		if err != nil {
			return Record{}, err
		}
		if !p.eof() {
			return Record{}, p.errorf("trailing data after stream record")
		}
		rec.Text = text
	default:
		return Record{}, p.errorf("unknown record type %q", c)
	}

	return rec, nil
}

type parser struct {
	src string
	pos int
}

func (p *parser) eof() bool { return p.pos >= len(p.src) }

func (p *parser) peek() byte {
	if p.eof() {
		return 0
	}
	return p.src[p.pos]
}

func (p *parser) next() byte {
	c := p.peek()
	p.pos++
	return c
}

func (p *parser) takeWhile(fn func(byte) bool) string {
	start := p.pos
	for !p.eof() && fn(p.src[p.pos]) {
		p.pos++
	}
	return p.src[start:p.pos]
}

func (p *parser) expect(c byte) error {
	if p.peek() != c {
		return p.errorf("expected %q", c)
	}
	p.pos++
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s at offset %d in %q", ErrMalformedRecord, fmt.Sprintf(format, args...), p.pos, p.src)
}

func (p *parser) result() (Result, error) {
	name := p.takeWhile(isVariableChar)
	if name == "" {
		return Result{}, p.errorf("missing result name")
	}
	if err := p.expect('='); err != nil {
		return Result{}, err
	}
	v, err := p.value()
	if err != nil {
		return Result{}, err
	}
	return Result{Name: name, Value: v}, nil
}

func (p *parser) value() (Value, error) {
	switch p.peek() {
	case '"':
		s, err := p.cstring()
		if err != nil {
			return Value{}, err
		}
		return Value{Kind: ValueConst, Const: s}, nil
	case '{':
		p.pos++
		v := Value{Kind: ValueTuple}
		if p.peek() == '}' {
			p.pos++
			return v, nil
		}
		for {
			res, err := p.result()
			if err != nil {
				return Value{}, err
			}
			v.Results = append(v.Results, res)
			if p.peek() == ',' {
				p.pos++
				continue
			}
			if err := p.expect('}'); err != nil {
				return Value{}, err
			}
			return v, nil
		}
	case '[':
		p.pos++
		v := Value{Kind: ValueList}
		if p.peek() == ']' {
			p.pos++
			return v, nil
		}
		named := isVariableChar(p.peek()) && p.peek() != '-'
		for {
			if named {
				res, err := p.result()
				if err != nil {
					return Value{}, err
				}
				v.Results = append(v.Results, res)
			} else {
				item, err := p.value()
				if err != nil {
					return Value{}, err
				}
				v.Items = append(v.Items, item)
			}
			if p.peek() == ',' {
				p.pos++
				continue
			}
			if err := p.expect(']'); err != nil {
				return Value{}, err
			}
			return v, nil
		}
	default:
		return Value{}, p.errorf("expected value")
	}
}

// cstring reads a double-quoted C string and unescapes it.
func (p *parser) cstring() (string, error) {
	if err := p.expect('"'); err != nil {
		return "", err
	}
	var b strings.Builder
	for {
		if p.eof() {
			return "", p.errorf("unterminated string")
		}
		c := p.next()
		switch c {
		case '"':
			return b.String(), nil
		case '\\':
			if p.eof() {
				return "", p.errorf("unterminated escape")
			}
			e := p.next()
			switch e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case 'a':
				b.WriteByte('\a')
			case 'b':
				b.WriteByte('\b')
			case 'f':
				b.WriteByte('\f')
			case 'v':
				b.WriteByte('\v')
			case 'e':
				b.WriteByte(0x1b)
			case '0', '1', '2', '3', '4', '5', '6', '7':
				n := int(e - '0')
				for i := 0; i < 2 && p.peek() >= '0' && p.peek() <= '7'; i++ {
					n = n*8 + int(p.next()-'0')
				}
				b.WriteByte(byte(n))
			default:
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
	}
}

// QuoteCString quotes s for use as an MI command argument.
func QuoteCString(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case '"', '\\':
			b.WriteByte('\\')
			b.WriteByte(c)
		case '\n':
			b.WriteString(`\n`)
		case '\t':
			b.WriteString(`\t`)
		case '\r':
			b.WriteString(`\r`)
		default:
			b.WriteByte(c)
		}
	}
	b.WriteByte('"')
	return b.String()
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isClassChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c == '-' || c == '_'
}

func isVariableChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || isDigit(c) || c == '-' || c == '_'
}
