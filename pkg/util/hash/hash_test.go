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

package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStableProjectIDDeterministic(t *testing.T) {
	a := StableProjectID("tenant_a/vol1")
	b := StableProjectID("tenant_a/vol1")
	require.Equal(t, a, b)
	require.NotEqual(t, a, StableProjectID("tenant_a/vol2"))
}

func TestStableProjectIDNeverZero(t *testing.T) {
	for _, seed := range []string{"", "a", "svm/x", "tenant_b/vol9999"} {
		require.NotZero(t, StableProjectID(seed))
		require.Less(t, StableProjectID(seed), uint32(1<<31))
	}
}

func TestBase62PairDeterministicAndShort(t *testing.T) {
	a := Base62Pair("tenant_a:0")
	b := Base62Pair("tenant_a:0")
	require.Equal(t, a, b)
	require.Len(t, a, 2)
	require.NotEqual(t, a, Base62Pair("tenant_a:1"))
}
