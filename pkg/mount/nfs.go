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

package mount

import "fmt"

// defaultNFSMountOptions are the options every per-SVM NFS mount uses;
// none of this is configurable per-volume since the mount is shared.
func defaultNFSMountOptions() []string {
	return []string{
		"vers=4.2",
		"rsize=1048576",
		"wsize=1048576",
		"hard",
		"timeo=600",
		"retrans=2",
		"noresvport",
	}
}

// nfsExportSource formats the NFSv4 source spec for the SVM's root export.
func nfsExportSource(vip, svmName string) string {
	return fmt.Sprintf("%s:/exports/%s", vip, svmName)
}
