// Copyright Gateway Authors
// SPDX-License-Identifier: Apache-2.0

package provider

import (
	"bytes"
	"io"
)

func newBodyReader(body []byte) io.Reader {
	if body == nil {
		return nil
	}
	return bytes.NewReader(body)
}
