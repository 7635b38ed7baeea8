/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package prodcon

import (
	"fmt"

	cmap "github.com/orcaman/concurrent-map/v2"
)

// sessions tracks the live sessions of this process by role and identity. It
// only catches a second producer (or consumer) inside one process; other
// processes are out of its reach.
var sessions = cmap.New[string]()

func sessionKey(role string, id Identity) string {
	return role + "/" + id.Name
}

func registerSession(role string, id Identity) (string, error) {
	key := sessionKey(role, id)
	if !sessions.SetIfAbsent(key, id.Name) {
		return "", newError(ProtocolViolation, "open",
			fmt.Errorf("a %s for channel %q is already open in this process", role, id.Name))
	}
	return key, nil
}

func unregisterSession(key string) {
	sessions.Remove(key)
}
