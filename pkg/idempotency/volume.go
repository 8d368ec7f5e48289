/*
Copyright 2020 The OpenEBS Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package idempotency derives stable resource identities from request
// parameters so repeated CSI calls with identical inputs converge on the
// same ArcaVolume/ArcaSnapshot record instead of creating duplicates.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// VolumeIDGenerator generates stable volume IDs from PVC names.
type VolumeIDGenerator struct{}

// NewVolumeIDGenerator creates a new volume ID generator.
func NewVolumeIDGenerator() *VolumeIDGenerator {
	return &VolumeIDGenerator{}
}

// GenerateVolumeID creates a deterministic volume ID from the request name.
// Format: pvc-{first 16 hex of sha256(name)}.
func (g *VolumeIDGenerator) GenerateVolumeID(name string) string {
	h := sha256.Sum256([]byte(name))
	return fmt.Sprintf("pvc-%s", hex.EncodeToString(h[:8]))
}

// ValidateVolumeID checks that a volume ID has the expected "pvc-<16 hex>" shape.
func (g *VolumeIDGenerator) ValidateVolumeID(volumeID string) bool {
	const prefix = "pvc-"
	if len(volumeID) != len(prefix)+16 {
		return false
	}
	if volumeID[:len(prefix)] != prefix {
		return false
	}
	return isLowerHex(volumeID[len(prefix):])
}

func isLowerHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}
