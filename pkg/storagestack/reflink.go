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

package storagestack

import (
	"context"
	"os"
	"os/exec"
)

// cpReflink recursively copies src to dst using XFS reflinks, making the
// copy an O(1) metadata operation that shares physical blocks with the
// source until either side diverges. Any existing destination is a no-op
// success; its contents are not compared with src (§4.3).
func cpReflink(ctx context.Context, src, dst string) (string, error) {
	if _, err := os.Stat(dst); err == nil {
		return "", nil
	}
	out, err := exec.CommandContext(ctx, "cp", "--reflink=always", "--preserve=all", "-r", src, dst).CombinedOutput()
	return string(out), err
}
