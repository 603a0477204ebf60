package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

var (
	// ErrQueueFull 队列已满
	ErrQueueFull = errors.New("job queue is full")
	// ErrPoolStopped 池已停止
	ErrPoolStopped = errors.New("worker pool stopped")
)

// Job 一次分析任务
type Job struct {
	ID             string
	Paths          []string
	Origin         string // watcher / queue / cli
	SplitChooseAll *bool
	resultCh       chan error // 用于同步等待任务完成
}

// Handler 任务执行函数
type Handler func(ctx context.Context, job *Job) error

// StatsReporter 池状态上报
type StatsReporter interface {
	UpdateWorkerPoolStats(size, active, queueSize int)
}

// Pool Worker 池
type Pool struct {
	workers  int
	jobChan  chan *Job
	handler  Handler
	reporter StatsReporter
	logger   *logrus.Logger
	wg       sync.WaitGroup
	active   atomic.Int32

	mu      sync.RWMutex
	stopped bool
}

// NewPool 创建 Worker 池
func NewPool(workers, queueSize int, handler Handler, logger *logrus.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 100
	}
	return &Pool{
		workers: workers,
		jobChan: make(chan *Job, queueSize),
		handler: handler,
		logger:  logger,
	}
}

// SetStatsReporter 设置状态上报
func (p *Pool) SetStatsReporter(r StatsReporter) {
	p.reporter = r
}

// Start 启动 Worker 池
func (p *Pool) Start(ctx context.Context) {
	p.logger.WithField("workers", p.workers).Info("Starting worker pool")

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.report()
}

// worker Worker 协程
func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()

	for {
		select {
		case <-ctx.Done():
			p.logger.WithField("worker_id", id).Debug("Worker shutting down")
			return

		case job, ok := <-p.jobChan:
			if !ok {
				p.logger.WithField("worker_id", id).Debug("Job channel closed, worker exiting")
				return
			}
			p.run(ctx, id, job)
		}
	}
}

func (p *Pool) run(ctx context.Context, workerID int, job *Job) {
	p.active.Add(1)
	p.report()
	defer func() {
		p.active.Add(-1)
		p.report()
	}()

	log := p.logger.WithFields(logrus.Fields{
		"worker_id": workerID,
		"job_id":    job.ID,
		"origin":    job.Origin,
	})
	log.WithField("paths", len(job.Paths)).Info("Processing job")

	startTime := time.Now()
	err := p.safeHandle(ctx, job)
	if err != nil {
		log.WithError(err).Error("Job failed")
	} else {
		log.WithField("duration_ms", time.Since(startTime).Milliseconds()).Info("Job completed")
	}

	// 如果有结果通道，发送结果
	if job.resultCh != nil {
		job.resultCh <- err
		close(job.resultCh)
	}
}

func (p *Pool) safeHandle(ctx context.Context, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.WithField("job_id", job.ID).WithField("panic", r).Error("Job panicked")
			err = errors.New("job panicked")
		}
	}()
	return p.handler(ctx, job)
}

// Submit 提交任务（异步，不等待结果）
func (p *Pool) Submit(job *Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPoolStopped
	}

	select {
	case p.jobChan <- job:
		p.logger.WithField("job_id", job.ID).Debug("Job submitted to pool")
		p.report()
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitAndWait 提交任务并等待完成
func (p *Pool) SubmitAndWait(ctx context.Context, job *Job) error {
	job.resultCh = make(chan error, 1)

	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return ErrPoolStopped
	}
	select {
	case p.jobChan <- job:
		p.mu.RUnlock()
		p.logger.WithField("job_id", job.ID).Debug("Job submitted to pool (sync)")
		p.report()
	case <-ctx.Done():
		p.mu.RUnlock()
		return ctx.Err()
	}

	select {
	case err := <-job.resultCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop 停止 Worker 池，等待已排队的任务完成
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobChan)
	p.mu.Unlock()

	p.logger.Info("Stopping worker pool")
	p.wg.Wait()
	p.logger.Info("Worker pool stopped")
}

// GetQueueSize 获取队列中任务数
func (p *Pool) GetQueueSize() int {
	return len(p.jobChan)
}

// ActiveCount 正在执行的任务数
func (p *Pool) ActiveCount() int {
	return int(p.active.Load())
}

func (p *Pool) report() {
	if p.reporter != nil {
		p.reporter.UpdateWorkerPoolStats(p.workers, p.ActiveCount(), p.GetQueueSize())
	}
}
