// Package callback adapts application event handlers of varying
// shapes into the single dispatch interface NamespaceSocket.On needs
// to invoke them uniformly: FuncAny, FuncString and ErrorWrap cover
// the common shapes directly, and FromFunc falls back to Wrap's
// reflection-based dispatch for anything else, inferring each
// parameter's wire conversion from the handler's own signature
// (spec.md §4.3, "event handler dispatch").
package callback

import (
	"errors"
	"reflect"

	seri "github.com/relaysix/relaysix/serialize"
)

// Callback is anything the event dispatcher can invoke with the
// decoded arguments of an EVENT packet.
type Callback interface {
	Callback(data ...interface{}) error
}

type ErrorWrap func() error

func (fn ErrorWrap) Callback(data ...interface{}) error { return fn() }
func (ErrorWrap) Serialize() (string, error)            { return "", ErrStubSerialize }
func (ErrorWrap) Unserialize(string) error              { return ErrStubUnserialize }

type FuncAny func(...interface{}) error

func (fn FuncAny) Callback(v ...interface{}) error {
	return fn(v...)
}
func (FuncAny) Serialize() (string, error) { return "", ErrStubSerialize }
func (FuncAny) Unserialize(string) error   { return ErrStubUnserialize }

type FuncString func(string)

func (fn FuncString) Callback(v ...interface{}) error {
	if len(v) == 0 {
		v = append(v, "unknown")
	}
	if val, ok := v[0].(string); ok {
		fn(val)
	} else {
		fn("undefined")
	}
	return nil
}
func (FuncString) Serialize() (string, error) { return "", ErrStubSerialize }
func (FuncString) Unserialize(string) error   { return ErrStubUnserialize }

// Wrap invokes an arbitrarily-typed handler function via reflection,
// converting each decoded argument through the matching
// seri.Serializable before the call (spec.md §4.3: "handler parameter
// types are inferred from the registered function's signature").
type Wrap struct {
	Func       func() interface{} // func([T]...) error
	Parameters []seri.Serializable
}

func (fn Wrap) Callback(data ...interface{}) (err error) {
	defer func() {
		if r := recover(); r != nil {
			switch e := r.(type) {
			case string:
				err = errors.New(e)
			case error:
				err = e
			default:
				err = ErrUnknownPanic
			}
		}
	}()

	f := reflect.ValueOf(fn.Func())

	if len(data) != f.Type().NumIn() {
		return ErrInvalidDataInParams
	}

	if len(fn.Parameters) != f.Type().NumIn() {
		return ErrInvalidFuncInParams
	}

	if f.Type().NumOut() != 1 {
		return ErrSingleOutParam
	}

	in := make([]reflect.Value, f.Type().NumIn())
	for i, val := range fn.Parameters {
		v, err := seri.Convert(val, data[i])
		if err != nil {
			return err
		}
		in[i] = reflect.ValueOf(v)
	}

	res := f.Call(in)
	rtnErr := res[0].Interface()
	if rtnErr != nil {
		return rtnErr.(error)
	}

	return nil
}

func (Wrap) Serialize() (string, error) { return "", ErrStubSerialize }
func (Wrap) Unserialize(string) error   { return ErrStubUnserialize }

var (
	errorType      = reflect.TypeOf((*error)(nil)).Elem()
	funcAnyType    = reflect.TypeOf(FuncAny(nil))
	funcStringType = reflect.TypeOf(FuncString(nil))
	errorWrapType  = reflect.TypeOf(ErrorWrap(nil))
)

// FromFunc adapts fn into a Callback. A value that already implements
// Callback (FuncAny, FuncString, ErrorWrap, Wrap, or an application
// type) is returned unchanged. A plain function matching one of those
// three common shapes is cast directly; anything else is handed to
// Wrap with its Parameters inferred from fn's own signature via
// seri.ParamFor, so NamespaceSocket.On can take a handler in its
// natural typed form without the caller building Wrap by hand (spec.md
// §4.3, "handler parameter types are inferred from the registered
// function's signature").
func FromFunc(fn interface{}) (Callback, error) {
	if cb, ok := fn.(Callback); ok {
		return cb, nil
	}

	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, ErrNotAFunc
	}

	switch {
	case t.ConvertibleTo(funcAnyType):
		return v.Convert(funcAnyType).Interface().(FuncAny), nil
	case t.ConvertibleTo(funcStringType):
		return v.Convert(funcStringType).Interface().(FuncString), nil
	case t.ConvertibleTo(errorWrapType):
		return v.Convert(errorWrapType).Interface().(ErrorWrap), nil
	}

	if t.NumOut() != 1 || !t.Out(0).Implements(errorType) {
		return nil, ErrSingleOutParam
	}

	params := make([]seri.Serializable, t.NumIn())
	for i := 0; i < t.NumIn(); i++ {
		p, ok := seri.ParamFor(t.In(i))
		if !ok {
			return nil, ErrUnsupportedParam.F(t.In(i).String())
		}
		params[i] = p
	}

	return Wrap{Func: func() interface{} { return fn }, Parameters: params}, nil
}
