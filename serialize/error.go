package serialize

import (
	erro "github.com/relaysix/relaysix/internal/errors"
)

const (
	ErrUnsupported        erro.String = "serialize: value type does not support Serialize/Unserialize"
	ErrUnsupportedUseRead erro.String = "serialize: binary value must be consumed via Read, not Serialize"
)
