// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package store

import "os"

func writeFile(path string, b []byte) error {
	return os.WriteFile(path, b, 0o644)
}
