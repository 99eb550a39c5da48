// Copyright (c) HashiCorp, Inc
// SPDX-License-Identifier: MPL-2.0

package aru

import "errors"

// ErrClosed is returned by Sync once the engine has been closed.
// SubmitUpdate and SubmitRead stay void per the engine's ABI; they drop the
// submission and log instead of returning it.
var ErrClosed = errors.New("aru: engine closed")
