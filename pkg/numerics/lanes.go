// Copyright (C) 2026 ProbQA Authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package numerics

import (
	"runtime"

	"golang.org/x/sys/cpu"
)

// PreferredLanes reports how many float64 lanes the host's widest vector
// unit covers. The engine kernels do not consult it; their split chunks
// are whole quads regardless of the host's vector width.
func PreferredLanes() int {
	switch runtime.GOARCH {
	case "amd64":
		switch {
		case cpu.X86.HasAVX512F:
			return 8
		case cpu.X86.HasAVX2:
			return 4
		default:
			return 2 // SSE2 is the amd64 baseline
		}
	case "arm64":
		return 2 // NEON
	default:
		return 1
	}
}
