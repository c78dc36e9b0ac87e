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

package taskqueue

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestEnqueueRunsTask(t *testing.T) {
	q := NewQueue("test", 1, 4, nil)
	defer q.Close()

	done := make(chan struct{})
	if err := q.Enqueue(func(ctx context.Context) { close(done) }); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task never ran")
	}
}

func TestEnqueueFullReturnsErrQueueFull(t *testing.T) {
	block := make(chan struct{})
	q := NewQueue("test", 1, 1, nil)
	defer func() {
		close(block)
		q.Close()
	}()

	if err := q.Enqueue(func(ctx context.Context) { <-block }); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	// Give the worker a moment to pick up the first task so the buffer
	// slot, not the running task, is what we're about to fill.
	time.Sleep(10 * time.Millisecond)
	if err := q.Enqueue(func(ctx context.Context) {}); err != nil {
		t.Fatalf("second Enqueue (fills buffer): %v", err)
	}
	if err := q.Enqueue(func(ctx context.Context) {}); err != ErrQueueFull {
		t.Errorf("third Enqueue error = %v, want ErrQueueFull", err)
	}
}

func TestPanicInTaskDoesNotKillWorker(t *testing.T) {
	q := NewQueue("test", 1, 4, nil)
	defer q.Close()

	q.Enqueue(func(ctx context.Context) { panic("boom") })

	done := make(chan struct{})
	q.Enqueue(func(ctx context.Context) { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not survive the panicking task")
	}
}

func TestCloseWaitsForInFlightTasks(t *testing.T) {
	q := NewQueue("test", 2, 4, nil)
	var mu sync.Mutex
	ran := 0
	for i := 0; i < 4; i++ {
		q.Enqueue(func(ctx context.Context) {
			time.Sleep(5 * time.Millisecond)
			mu.Lock()
			ran++
			mu.Unlock()
		})
	}
	q.Close()
	if ran != 4 {
		t.Errorf("ran = %d, want 4", ran)
	}
}
