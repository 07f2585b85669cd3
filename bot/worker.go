package bot

import (
	"context"
	"hash/fnv"
	"runtime/debug"
	"sync"

	"go.uber.org/zap"
)

// Job 在 worker 上执行的一项工作
type Job func(ctx context.Context)

const queueSize = 64

// WorkerPool 按键分片的串行工作池：同一个键的工作总是落在同一个 worker 上，按提交顺序执行。
type WorkerPool struct {
	queues []chan Job
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = 1
	}
	p := &WorkerPool{queues: make([]chan Job, workers)}
	for i := range p.queues {
		p.queues[i] = make(chan Job, queueSize)
	}
	return p
}

// Start 启动所有 worker，ctx 会传给每一项工作
func (p *WorkerPool) Start(ctx context.Context) {
	p.wg.Add(len(p.queues))
	for i, q := range p.queues {
		go p.worker(ctx, i, q)
	}
}

func (p *WorkerPool) worker(ctx context.Context, id int, jobs <-chan Job) {
	defer p.wg.Done()
	for job := range jobs {
		p.run(ctx, id, job)
	}
}

func (p *WorkerPool) run(ctx context.Context, id int, job Job) {
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("Worker job panicked", zap.Int("worker", id), zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
		}
	}()
	job(ctx)
}

// Submit 队列已满时阻塞，池已停止时返回 false。
func (p *WorkerPool) Submit(key string, job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return false
	}
	p.queues[p.shard(key)] <- job
	return true
}

func (p *WorkerPool) shard(key string) int {
	h := fnv.New32a()
	h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(p.queues)))
}

// Stop 不再接受新工作，等已排队的工作执行完
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, q := range p.queues {
		close(q)
	}
	p.mu.Unlock()
	p.wg.Wait()
}
