// Package serialize provides the typed wire-argument wrappers
// callback.Wrap uses to convert a Packet's decoded arguments into a
// handler's declared parameter types, and Convert, the single function
// that does that conversion for one argument (spec.md §4.3, event
// handler dispatch).
//
// https://github.com/socketio/socket.io/tree/master/examples/custom-parsers
package serialize

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"reflect"
	"strconv"
)

type SerializableParam interface {
	Serializable
	Interface() interface{}
	Param() Serializable
}

type SerializableWrap interface {
	Serializable
	Interface() interface{}
}

type Serializable interface {
	Serialize() (string, error)
	Unserialize(string) error
}

// number is the shared shape behind Integer, Uinteger and Float64:
// a parsed scalar plus the strconv pair that knows how to round-trip
// its own Go type through a string.
type number[T int | uint | float64] struct {
	v     T
	parse func(string) (T, error)
	show  func(T) string
}

func newNumber[T int | uint | float64](v T, parse func(string) (T, error), show func(T) string) *number[T] {
	return &number[T]{v: v, parse: parse, show: show}
}

func (x *number[T]) String() (str string)      { str, _ = x.Serialize(); return }
func (x *number[T]) Serialize() (string, error) { return x.show(x.v), nil }
func (x *number[T]) Unserialize(str string) error {
	v, err := x.parse(str)
	if err != nil {
		return err
	}
	x.v = v
	return nil
}
func (x *number[T]) Interface() interface{} { return x.v }
func (x *number[T]) Param() Serializable    { return &number[T]{parse: x.parse, show: x.show} }

func Integer(v int) *number[int] {
	return newNumber(v,
		func(s string) (int, error) {
			n, err := strconv.ParseInt(s, 10, bits.UintSize)
			return int(n), err
		},
		func(n int) string { return strconv.FormatInt(int64(n), 10) })
}

func Uinteger(v uint) *number[uint] {
	return newNumber(v,
		func(s string) (uint, error) {
			n, err := strconv.ParseUint(s, 10, bits.UintSize)
			return uint(n), err
		},
		func(n uint) string { return strconv.FormatUint(uint64(n), 10) })
}

func Float64(v float64) *number[float64] {
	return newNumber(v,
		func(s string) (float64, error) { return strconv.ParseFloat(s, 64) },
		func(n float64) string { return strconv.FormatFloat(n, 'f', -1, 64) })
}

// paramSentinel is the placeholder a handler registers as its declared
// parameter type; dispatch calls Param() on it to get a fresh instance
// to Unserialize the real decoded value into. Every scalar and Map
// share this one shape.
type paramSentinel struct{ SerializableParam }

func (paramSentinel) Unserialize(string) error { return nil }
func (paramSentinel) String() string           { return "" }

var (
	F64Param  = paramSentinel{Float64(0)}
	IntParam  = paramSentinel{Integer(0)}
	MapParam  = paramSentinel{Map(nil)}
	StrParam  = paramSentinel{String("")}
	UintParam = paramSentinel{Uinteger(0)}
)

// wrapSentinel is paramSentinel's counterpart for the kinds whose
// decoded value passes through unconverted instead of via Param():
// Any, Binary and Error.
type wrapSentinel struct{ SerializableWrap }

func (wrapSentinel) Unserialize(string) error { return nil }
func (wrapSentinel) String() string           { return "" }

var (
	AnyParam = wrapSentinel{Any(nil)}
	BinParam = wrapSentinel{Binary(nil)}
	ErrParam = wrapSentinel{Error(nil)}
)

type _any struct{ a interface{} }

func Any(v interface{}) *_any                      { return &_any{v} }
func (x *_any) String() (str string)               { str, _ = x.Serialize(); return }
func (x *_any) Serialize() (str string, err error) { return "", ErrUnsupported }
func (x *_any) Unserialize(str string) (err error) { return ErrUnsupported }
func (x *_any) Interface() (v interface{})         { return x.a }

type _binary struct{ r io.Reader }

func Binary(v io.Reader) *_binary                     { return &_binary{v} }
func (x *_binary) Read(p []byte) (n int, err error)   { return x.r.Read(p) }
func (x *_binary) String() (str string)               { str, _ = x.Serialize(); return }
func (x *_binary) Serialize() (str string, err error) { return "", ErrUnsupportedUseRead }
func (x *_binary) Unserialize(str string) (err error) { return ErrUnsupported }
func (x *_binary) Interface() (v interface{})         { return x.r }

type _error struct{ e error }

func Error(v error) *_error                          { return &_error{v} }
func (x *_error) String() (str string)               { str, _ = x.Serialize(); return }
func (x *_error) Serialize() (str string, err error) { return x.e.Error(), nil }
func (x *_error) Unserialize(str string) (err error) { x.e = errors.New(str); return nil }
func (x *_error) Interface() (v interface{})         { return x.e }
func (x *_error) Error() string                      { return x.e.Error() }

type _map map[string]interface{}

func Map(m map[string]interface{}) _map           { return _map(m) }
func (x _map) String() (str string)               { str, _ = x.Serialize(); return }
func (x _map) Serialize() (str string, err error) { b, err := json.Marshal(x); return string(b), err }
func (x _map) Unserialize(str string) (err error) { return json.Unmarshal([]byte(str), &x) }
func (x _map) Interface() (v interface{})         { return (map[string]interface{})(x) }
func (x _map) Param() Serializable                { return _map{} }

type _string string

func String(v string) *_string                        { x := _string(v); return &x }
func (x *_string) String() (str string)               { str, _ = x.Serialize(); return }
func (x *_string) Serialize() (str string, err error) { return string(*x), nil }
func (x *_string) Unserialize(str string) (err error) { *x = _string(str); return nil }
func (x *_string) Interface() (v interface{})         { return string(*x) }
func (x *_string) Param() Serializable                { v := _string(""); return &v }

var (
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
	readerType = reflect.TypeOf((*io.Reader)(nil)).Elem()
)

// ParamFor returns the Serializable parameter wrapper matching t, the
// reflected type of one argument in a registered handler's signature.
// callback.FromFunc uses this to infer a typed handler's wire
// conversion from its own declared signature, instead of requiring the
// caller to build the Parameters slice by hand.
func ParamFor(t reflect.Type) (Serializable, bool) {
	switch {
	case t == errorType:
		return ErrParam, true
	case t.Implements(readerType):
		return BinParam, true
	case t.Kind() == reflect.Interface && t.NumMethod() == 0:
		return AnyParam, true
	}

	switch t.Kind() {
	case reflect.String:
		return StrParam, true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return IntParam, true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return UintParam, true
	case reflect.Float32, reflect.Float64:
		return F64Param, true
	case reflect.Map:
		return MapParam, true
	}
	return nil, false
}

// Convert turns one decoded wire argument into the concrete value
// param's Go type describes: an argument already holding an error or
// io.Reader value (a direct, non-wire call) passes through unchanged;
// anything else round-trips through param's own Unserialize/Interface
// pair after being stringified. This is the dispatch callback.Wrap
// needs to turn a Packet's decoded []interface{} into a typed
// handler's real argument list.
func Convert(param Serializable, data interface{}) (interface{}, error) {
	switch v := data.(type) {
	case error:
		return v, nil
	case io.Reader:
		return v, nil
	}

	if p, ok := param.(SerializableParam); ok {
		param = p.Param()
	}
	if err := param.Unserialize(fmt.Sprintf("%v", data)); err != nil {
		return nil, err
	}

	wrap, ok := param.(SerializableWrap)
	if !ok {
		return nil, ErrUnsupported
	}
	return wrap.Interface(), nil
}
