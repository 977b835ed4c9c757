package services

import (
	"errors"
)

// Job is one admitted verification request. Jobs live in memory only:
// they are not persisted and are dropped on restart, with no retry queue.
type Job struct {
	ChatID   int64
	UserID   int64
	Link     string
	Username string
}

var ErrQueueFull = errors.New("verification queue is full")

// JobQueue is a fixed-capacity FIFO consumed by exactly one worker.
// Enqueue never blocks; a full queue is an admission failure.
type JobQueue struct {
	jobs chan Job
}

func NewJobQueue(capacity int) *JobQueue {
	if capacity <= 0 {
		capacity = 100
	}
	return &JobQueue{jobs: make(chan Job, capacity)}
}

// Enqueue appends a job and returns its 1-based queue position.
func (q *JobQueue) Enqueue(job Job) (int, error) {
	select {
	case q.jobs <- job:
		return len(q.jobs), nil
	default:
		return 0, ErrQueueFull
	}
}

// Depth reports how many jobs are waiting (excluding one being processed).
func (q *JobQueue) Depth() int {
	return len(q.jobs)
}

// Jobs exposes the receive side for the single worker.
func (q *JobQueue) Jobs() <-chan Job {
	return q.jobs
}
