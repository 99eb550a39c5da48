// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package aru

// Status is a caller-owned completion cell. Engines write to it with
// atomic.StoreUint32, so callers must only ever read it the same way.
//
// The two sentinel values are fixed for ABI stability: a caller that polls
// a Status cell never needs to know which of SubmitUpdate or SubmitRead
// produced it.
type Status = uint32

const (
	// StatusPending means the node has not yet run.
	StatusPending Status = 0
	// StatusDone means the node's callback has returned.
	StatusDone Status = 1
)
