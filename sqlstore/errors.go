package sqlstore

import "errors"

// ErrDSNRequired is returned by Open when Config.DSN is empty.
var ErrDSNRequired = errors.New("sqlstore: dsn required")
