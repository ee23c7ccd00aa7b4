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

package dbtype

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDurationString(t *testing.T) {
	cases := []struct {
		duration Duration
		expected string
	}{
		{Duration{}, "P0M0DT0S"},
		{Duration{Months: 2, Days: 3, Seconds: 4}, "P2M3DT4S"},
		{Duration{Seconds: 1, Nanos: 500000000}, "P0M0DT1.500000000S"},
		{Duration{Seconds: -1}, "P0M0DT-1S"},
		{Duration{Seconds: -1, Nanos: 500000000}, "P0M0DT-0.500000000S"},
		{Duration{Months: -1, Days: -2, Seconds: -3}, "P-1M-2DT-3S"},
	}
	for _, c := range cases {
		assert.Equal(t, c.expected, c.duration.String())
	}
}

func TestDurationEqual(t *testing.T) {
	a := Duration{Months: 1, Days: 2, Seconds: 3, Nanos: 4}
	assert.True(t, a.Equal(Duration{Months: 1, Days: 2, Seconds: 3, Nanos: 4}))
	assert.False(t, a.Equal(Duration{Months: 1, Days: 2, Seconds: 3, Nanos: 5}))
}

func TestDateString(t *testing.T) {
	date := Date(time.Date(2022, 8, 26, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, "2022-08-26", date.String())
}

func TestLocalDateTimeString(t *testing.T) {
	ldt := LocalDateTime(time.Date(2022, 8, 26, 13, 37, 1, 500000000, time.Local))
	assert.Equal(t, "2022-08-26T13:37:01.5", ldt.String())
}

func TestTimeString(t *testing.T) {
	zone := time.FixedZone("Offset", 2*60*60)
	tod := Time(time.Date(0, 1, 1, 13, 37, 1, 0, zone))
	assert.Equal(t, "13:37:01+02:00", tod.String())
}
