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

package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
)

// SnapshotIDGenerator generates stable snapshot IDs, scoped by source volume
// so that the same snapshot name under two different source volumes never
// collides.
type SnapshotIDGenerator struct{}

// NewSnapshotIDGenerator creates a new snapshot ID generator.
func NewSnapshotIDGenerator() *SnapshotIDGenerator {
	return &SnapshotIDGenerator{}
}

// GenerateSnapshotID derives a 16-hex-char snapshot id from
// sha256(sourceVolumeID + "/" + name).
func (g *SnapshotIDGenerator) GenerateSnapshotID(sourceVolumeID, name string) string {
	h := sha256.Sum256([]byte(sourceVolumeID + "/" + name))
	return hex.EncodeToString(h[:8])
}

// ValidateSnapshotID checks that a snapshot ID is 16 lowercase hex characters.
func (g *SnapshotIDGenerator) ValidateSnapshotID(snapshotID string) bool {
	if len(snapshotID) != 16 {
		return false
	}
	return isLowerHex(snapshotID)
}

// SnapshotPath returns the relative path a snapshot is reflinked to,
// ".snapshots/<snapshot_id>", never leading with a slash.
func SnapshotPath(snapshotID string) string {
	return ".snapshots/" + snapshotID
}
