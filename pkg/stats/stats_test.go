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

package stats

import "testing"

func TestRecordingAccumulates(t *testing.T) {
	r := &Recording{}
	r.Record(Event{Kind: Store, Namespace: "default", Size: 10})
	r.Record(Event{Kind: Dupe, Namespace: "default", Size: 10})
	if len(r.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(r.Events))
	}
	if r.Events[0].Kind != Store {
		t.Errorf("Events[0].Kind = %v, want Store", r.Events[0].Kind)
	}
	if r.Events[1].Kind != Dupe {
		t.Errorf("Events[1].Kind = %v, want Dupe", r.Events[1].Kind)
	}
}

func TestDiscardRecordsNothingAndNeverPanics(t *testing.T) {
	Discard.Record(Event{Kind: Lookup})
}

func TestNewLoggerDefaultsWhenNil(t *testing.T) {
	l := New(nil)
	if l == nil {
		t.Fatal("New(nil) returned nil")
	}
	// Must not panic on a real event.
	l.Record(Event{Kind: Return, Namespace: "default", Size: 1, Detail: "cache hit"})
}
