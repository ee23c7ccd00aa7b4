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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionBookmarksSeed(t *testing.T) {
	sb := newSessionBookmarks(Bookmarks{"bm:1", "", "bm:2", "bm:1"})
	assert.Equal(t, Bookmarks{"bm:1", "bm:2"}, sb.currentBookmarks())
	assert.Equal(t, "bm:2", sb.lastBookmarkValue())
}

func TestSessionBookmarksEmptySeed(t *testing.T) {
	sb := newSessionBookmarks(nil)
	assert.Empty(t, sb.currentBookmarks())
	assert.Equal(t, "", sb.lastBookmarkValue())
}

func TestSessionBookmarksReplace(t *testing.T) {
	sb := newSessionBookmarks(Bookmarks{"bm:1", "bm:2"})

	sb.replaceBookmarks("bm:3")
	assert.Equal(t, Bookmarks{"bm:3"}, sb.currentBookmarks())
	assert.Equal(t, "bm:3", sb.lastBookmarkValue())

	sb.replaceBookmarks("bm:4")
	assert.Equal(t, Bookmarks{"bm:4"}, sb.currentBookmarks())
}

func TestSessionBookmarksIgnoreEmptyReplacement(t *testing.T) {
	sb := newSessionBookmarks(Bookmarks{"bm:1"})
	sb.replaceBookmarks("")
	assert.Equal(t, Bookmarks{"bm:1"}, sb.currentBookmarks())
	assert.Equal(t, "bm:1", sb.lastBookmarkValue())
}
