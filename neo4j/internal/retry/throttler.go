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

package retry

import (
	"math/rand"
	"time"
)

const (
	multiplier   = 2.0
	jitterFactor = 0.2
)

// Throttler computes the delay between transaction retries, doubling it on
// every attempt with some jitter so that competing transactions do not
// retry in lockstep.
type Throttler time.Duration

func (t Throttler) next() Throttler {
	delay := float64(t) * multiplier
	jitter := delay * jitterFactor
	return Throttler(delay - jitter + rand.Float64()*jitter*2)
}

func (t Throttler) delay() time.Duration {
	return time.Duration(t)
}
