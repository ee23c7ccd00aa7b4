/*
 * Copyright (c) "Robsdedude"
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package neo4j

import (
	"github.com/robsdedude/neo4j-go-driver/neo4j/internal/collections"
)

// Bookmarks is an opaque set of causal consistency markers. Passing the
// bookmarks of one session into another guarantees the second session sees
// at least the state the first one last observed.
type Bookmarks = []string

// BookmarksFromRawValues creates Bookmarks from raw server values. Intended
// for bookmarks persisted outside the driver, bookmarks obtained from a
// session can be passed along directly.
func BookmarksFromRawValues(values ...string) Bookmarks {
	return values
}

// CombineBookmarks merges multiple sets of bookmarks into one, dropping
// duplicates. The input sets are left untouched.
func CombineBookmarks(sets ...Bookmarks) Bookmarks {
	size := 0
	for _, set := range sets {
		size += len(set)
	}
	if size == 0 {
		return nil
	}
	seen := make(collections.Set[string], size)
	combined := make(Bookmarks, 0, size)
	for _, set := range sets {
		for _, bookmark := range set {
			if seen.Contains(bookmark) {
				continue
			}
			seen.Add(bookmark)
			combined = append(combined, bookmark)
		}
	}
	return combined
}
