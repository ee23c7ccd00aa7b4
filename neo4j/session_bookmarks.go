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

// sessionBookmarks tracks the causal chain of a session: the bookmarks the
// session was seeded with until its first completed transaction, the
// bookmark of the latest completed transaction from then on.
type sessionBookmarks struct {
	bookmarks    Bookmarks
	lastBookmark string
}

func newSessionBookmarks(bookmarks Bookmarks) *sessionBookmarks {
	return &sessionBookmarks{bookmarks: cleanupBookmarks(bookmarks)}
}

func (sb *sessionBookmarks) currentBookmarks() Bookmarks {
	return sb.bookmarks
}

func (sb *sessionBookmarks) lastBookmarkValue() string {
	if sb.lastBookmark != "" {
		return sb.lastBookmark
	}
	if len(sb.bookmarks) == 0 {
		return ""
	}
	return sb.bookmarks[len(sb.bookmarks)-1]
}

// replaceBookmarks is called whenever a transaction or auto-commit query
// completed, the new bookmark supersedes all previous ones.
func (sb *sessionBookmarks) replaceBookmarks(newBookmark string) {
	if newBookmark == "" {
		return
	}
	sb.bookmarks = Bookmarks{newBookmark}
	sb.lastBookmark = newBookmark
}

// cleanupBookmarks removes empty bookmarks and duplicates from the seed.
func cleanupBookmarks(bookmarks Bookmarks) Bookmarks {
	if len(bookmarks) == 0 {
		return bookmarks
	}
	result := make(Bookmarks, 0, len(bookmarks))
	seen := make(collections.Set[string], len(bookmarks))
	for _, bookmark := range bookmarks {
		if bookmark == "" || seen.Contains(bookmark) {
			continue
		}
		seen.Add(bookmark)
		result = append(result, bookmark)
	}
	return result
}
