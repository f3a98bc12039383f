// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Guildhall Contributors

package behavior

import "errors"

// ErrUnknownTree means evaluation was requested for an unregistered tree id.
var ErrUnknownTree = errors.New("unknown behavior tree")

// CodeUnknownTree is the oops code attached to ErrUnknownTree wrappers.
const CodeUnknownTree = "UNKNOWN_TREE"
