package callback

import (
	erro "github.com/relaysix/relaysix/internal/errors"
)

const (
	ErrStubSerialize       erro.String  = "callback: this handler shape does not support Serialize"
	ErrStubUnserialize     erro.String  = "callback: this handler shape does not support Unserialize"
	ErrInvalidDataInParams erro.String  = "callback: number of decoded arguments does not match handler parameter count"
	ErrInvalidFuncInParams erro.String  = "callback: number of declared Parameters does not match handler parameter count"
	ErrSingleOutParam      erro.String  = "callback: handler must return exactly one error value"
	ErrUnknownPanic        erro.State   = "callback: handler panicked with a non-error value"
	ErrNotAFunc            erro.String  = "callback: On requires a Callback or a func value"
	ErrUnsupportedParam    erro.StringF = "callback: no wire conversion for handler parameter type %s"
)
