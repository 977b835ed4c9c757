package services

import (
	"testing"
)

func TestJobQueue_FIFOAndPositions(t *testing.T) {
	q := NewJobQueue(3)

	pos, err := q.Enqueue(Job{UserID: 1, Link: "a"})
	if err != nil || pos != 1 {
		t.Fatalf("first enqueue: pos=%d err=%v", pos, err)
	}
	pos, err = q.Enqueue(Job{UserID: 2, Link: "b"})
	if err != nil || pos != 2 {
		t.Fatalf("second enqueue: pos=%d err=%v", pos, err)
	}
	if q.Depth() != 2 {
		t.Fatalf("expected depth 2, got %d", q.Depth())
	}

	first := <-q.Jobs()
	second := <-q.Jobs()
	if first.Link != "a" || second.Link != "b" {
		t.Errorf("jobs out of order: %q, %q", first.Link, second.Link)
	}
}

func TestJobQueue_Full(t *testing.T) {
	q := NewJobQueue(1)
	if _, err := q.Enqueue(Job{}); err != nil {
		t.Fatalf("enqueue into empty queue: %v", err)
	}
	if _, err := q.Enqueue(Job{}); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}
