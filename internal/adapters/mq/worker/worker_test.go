package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	worker "github.com/okian/rollcall/internal/adapters/mq/worker"
	"github.com/okian/rollcall/internal/domain/model"
	logging "github.com/okian/rollcall/pkg/logger"
	"github.com/smartystreets/goconvey/convey"
)

type mockQueue struct {
	jobs      chan worker.Job
	closeOnce sync.Once
}

func newMockQueue() *mockQueue {
	return &mockQueue{jobs: make(chan worker.Job, 16)}
}

func (mq *mockQueue) Dequeue(_ context.Context) <-chan worker.Job { return mq.jobs }

func (mq *mockQueue) Close() error {
	mq.closeOnce.Do(func() { close(mq.jobs) })
	return nil
}

func (mq *mockQueue) add(teamID string) worker.Job {
	j := model.NewRecomputeJob(teamID, model.TriggerManual, time.Now())
	mq.jobs <- j
	return j
}

type mockProcessor struct {
	mu     sync.Mutex
	done   map[string]int
	errors map[string]error
}

func newMockProcessor() *mockProcessor {
	return &mockProcessor{done: make(map[string]int), errors: make(map[string]error)}
}

func (mp *mockProcessor) Process(_ context.Context, job worker.Job) error {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	if err, ok := mp.errors[job.TeamID]; ok {
		return err
	}
	mp.done[job.TeamID]++
	return nil
}

func (mp *mockProcessor) setError(teamID string, err error) {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	mp.errors[teamID] = err
}

func (mp *mockProcessor) count(teamID string) int {
	mp.mu.Lock()
	defer mp.mu.Unlock()
	return mp.done[teamID]
}

func TestInMemoryWorker(t *testing.T) {
	convey.Convey("Given a running InMemoryWorker", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		processor := newMockProcessor()
		w := worker.NewInMemoryWorker(queue, processor, worker.WithName("test-worker"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go w.Run(ctx)

		convey.Convey("When a job arrives", func() {
			queue.add("team-1")

			convey.Convey("Then it is processed", func() {
				convey.So(waitFor(func() bool { return processor.count("team-1") == 1 }), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When a job fails", func() {
			processor.setError("team-2", errors.New("store down"))
			queue.add("team-2")
			queue.add("team-3")

			convey.Convey("Then the worker keeps going", func() {
				convey.So(waitFor(func() bool { return processor.count("team-3") == 1 }), convey.ShouldBeTrue)
				convey.So(processor.count("team-2"), convey.ShouldEqual, 0)
			})
		})

		convey.Convey("When shutting down twice", func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
			defer shutdownCancel()

			first := w.Shutdown(shutdownCtx)
			second := w.Shutdown(shutdownCtx)

			convey.Convey("Then the first call succeeds and the second reports ErrStopped", func() {
				convey.So(first, convey.ShouldBeNil)
				convey.So(errors.Is(second, worker.ErrStopped), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a worker whose context is cancelled", t, func() {
		_ = logging.Init()
		w := worker.NewInMemoryWorker(newMockQueue(), newMockProcessor())
		ctx, cancel := context.WithCancel(context.Background())
		go w.Run(ctx)
		cancel()

		convey.Convey("Then Run returns", func() {
			stopped := false
			select {
			case <-w.Done():
				stopped = true
			case <-time.After(time.Second):
			}
			convey.So(stopped, convey.ShouldBeTrue)
		})
	})
}

func TestWorkerPool(t *testing.T) {
	convey.Convey("Given a worker pool", t, func() {
		_ = logging.Init()

		queue := newMockQueue()
		processor := newMockProcessor()

		convey.Convey("When created with a non-positive count", func() {
			pool := worker.NewPool(0, queue, processor)

			convey.Convey("Then it falls back to one worker per CPU", func() {
				convey.So(pool.Size(), convey.ShouldBeGreaterThan, 0)
			})
		})

		convey.Convey("When started with jobs for several teams", func() {
			pool := worker.NewPool(3, queue, processor)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			pool.Start(ctx)

			teams := []string{"a", "b", "c", "d", "e"}
			for _, team := range teams {
				queue.add(team)
			}

			convey.Convey("Then every job is processed once", func() {
				convey.So(waitFor(func() bool {
					for _, team := range teams {
						if processor.count(team) != 1 {
							return false
						}
					}
					return true
				}), convey.ShouldBeTrue)
			})

			convey.Convey("And shutdown closes the queue and waits for workers", func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
				defer shutdownCancel()

				convey.So(pool.Shutdown(shutdownCtx), convey.ShouldBeNil)
			})
		})
	})
}

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}
