package idmanager

import "errors"

// ErrExhausted is returned by GetID when no id could be allocated or
// recycled in the requested (namespace, subspace) even after LRU
// eviction was attempted. This can only happen if the subspace itself is
// somehow unusable (e.g. SubspaceSize == 0), since eviction always frees
// a slot otherwise.
var ErrExhausted = errors.New("idmanager: subspace exhausted, no id could be allocated or recycled")

// ErrNoUploadRecord names a missing Upload Record. No operation in this
// package returns it: GetUploadInfo reports a miss as (nil, nil).
var ErrNoUploadRecord = errors.New("idmanager: no upload record")

// ErrNoIDRecord is returned when an operation that requires an existing
// ID Record (e.g. MarkUploaded) is given an id that has never been
// allocated.
var ErrNoIDRecord = errors.New("idmanager: no id record")
