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

package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

// DeepCopy returns a deep copy of the content source.
func (c *ArcaContentSource) DeepCopy() *ArcaContentSource {
	if c == nil {
		return nil
	}
	out := &ArcaContentSource{Type: c.Type}
	if c.SourceVolumeID != nil {
		v := *c.SourceVolumeID
		out.SourceVolumeID = &v
	}
	if c.SourceSnapshotID != nil {
		v := *c.SourceSnapshotID
		out.SourceSnapshotID = &v
	}
	return out
}

// DeepCopy returns a deep copy of the ArcaVolume, used by the metadata
// store's cache so callers can never mutate shared cached state.
func (v *ArcaVolume) DeepCopy() *ArcaVolume {
	if v == nil {
		return nil
	}
	out := *v
	out.ObjectMeta = *v.ObjectMeta.DeepCopy()
	out.Spec = v.Spec
	out.Spec.ContentSource = v.Spec.ContentSource.DeepCopy()
	out.Status.Conditions = append([]metav1.Condition(nil), v.Status.Conditions...)
	return &out
}

// DeepCopy returns a deep copy of the ArcaSnapshot.
func (s *ArcaSnapshot) DeepCopy() *ArcaSnapshot {
	if s == nil {
		return nil
	}
	out := *s
	out.ObjectMeta = *s.ObjectMeta.DeepCopy()
	out.Spec = s.Spec
	return &out
}
