// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package linktest

import "errors"

var errClosed = errors.New("linktest: modem closed")
