// Copyright 2026 The Fidelio Authors
// SPDX-License-Identifier: Apache-2.0

package naming

import "github.com/fidelio-project/fidelio/internal/model"

// EncodePayload serializes a naming node payload for storage.
func EncodePayload(payload model.NamingPayload) ([]byte, error) {
	return payload.Marshal()
}

// DecodePayload deserializes a naming node payload previously written
// by EncodePayload.
func DecodePayload(data []byte) (model.NamingPayload, error) {
	return model.UnmarshalNamingPayload(data)
}
