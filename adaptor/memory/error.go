package memory

import erro "github.com/relaysix/relaysix/internal/errors"

const (
	ErrSocketNotFound erro.String = "adaptor: socket not registered"
)
