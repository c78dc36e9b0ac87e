/*
Copyright 2024 The CASD Authors

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

package entry

import (
	"testing"
	"time"
)

func TestDayFromTimeTruncatesToUTCMidnight(t *testing.T) {
	t1 := time.Date(2024, 6, 15, 23, 59, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 15, 0, 0, 1, 0, time.UTC)
	d1 := DayFromTime(t1)
	d2 := DayFromTime(t2)
	if d1 != d2 {
		t.Errorf("DayFromTime collapsed differently: %d vs %d", d1, d2)
	}
}

func TestDayAdvancesAcrossMidnight(t *testing.T) {
	before := DayFromTime(time.Date(2024, 6, 15, 23, 59, 59, 0, time.UTC))
	after := DayFromTime(time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC))
	if after != before+1 {
		t.Errorf("after = %d, want before+1 = %d", after, before+1)
	}
}

func TestDayStringFormatsISODate(t *testing.T) {
	d := DayFromTime(time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC))
	if got := d.String(); got != "2024-06-15" {
		t.Errorf("String() = %q, want 2024-06-15", got)
	}
}

func TestPlacementString(t *testing.T) {
	if Inline.String() != "inline" {
		t.Errorf("Inline.String() = %q", Inline.String())
	}
	if Bulk.String() != "bulk" {
		t.Errorf("Bulk.String() = %q", Bulk.String())
	}
}

func TestVerified(t *testing.T) {
	unverified := Entry{ExpandedSize: Unverified}
	if unverified.Verified() {
		t.Error("Verified() = true for Unverified sentinel")
	}
	verified := Entry{ExpandedSize: 123}
	if !verified.Verified() {
		t.Error("Verified() = false for a real ExpandedSize")
	}
}
