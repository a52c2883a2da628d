package domain

import "errors"

// ErrStorageUnavailable is wrapped by repositories when the backing store
// cannot be reached.
var ErrStorageUnavailable = errors.New("storage unavailable")
