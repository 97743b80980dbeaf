package db

import (
	"database/sql"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("db queue is closed")

type queueJob struct {
	fn     func(db *sql.DB) (interface{}, error)
	result chan queueResult
}

type queueResult struct {
	value interface{}
	err   error
}

// DBQueue funnels every write through a single goroutine so SQLite never sees
// concurrent writers. Reads go straight to DB().
type DBQueue struct {
	db     *sql.DB
	jobs   chan queueJob
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
	inline bool
}

func NewDBQueue(db *sql.DB) *DBQueue {
	q := &DBQueue{
		db:   db,
		jobs: make(chan queueJob),
		done: make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// NewDBQueueForTest runs jobs on the caller's goroutine.
func NewDBQueueForTest(db *sql.DB) *DBQueue {
	return &DBQueue{
		db:     db,
		done:   make(chan struct{}),
		inline: true,
	}
}

func (q *DBQueue) run() {
	defer q.wg.Done()
	for {
		select {
		case job := <-q.jobs:
			value, err := job.fn(q.db)
			job.result <- queueResult{value: value, err: err}
		case <-q.done:
			return
		}
	}
}

func (q *DBQueue) Execute(fn func(db *sql.DB) (interface{}, error)) (interface{}, error) {
	select {
	case <-q.done:
		return nil, ErrQueueClosed
	default:
	}

	if q.inline {
		return fn(q.db)
	}

	job := queueJob{fn: fn, result: make(chan queueResult, 1)}
	select {
	case q.jobs <- job:
	case <-q.done:
		return nil, ErrQueueClosed
	}
	res := <-job.result
	return res.value, res.err
}

func (q *DBQueue) DB() *sql.DB {
	return q.db
}

func (q *DBQueue) Close() {
	q.once.Do(func() {
		close(q.done)
	})
	q.wg.Wait()
}
