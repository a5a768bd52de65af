package cdp

import "sync"

// workerPool 固定数量的工作协程加有界队列
type workerPool struct {
	tasks chan func()
	wg    sync.WaitGroup
	once  sync.Once
	mu    sync.RWMutex
	done  bool
}

func newWorkerPool(workers, capacity int) *workerPool {
	if workers <= 0 {
		return nil
	}
	if capacity < 0 {
		capacity = 0
	}
	p := &workerPool{tasks: make(chan func(), capacity)}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

func (p *workerPool) run() {
	defer p.wg.Done()
	for fn := range p.tasks {
		fn()
	}
}

// submit 非阻塞提交，队列已满或已停止时返回 false
func (p *workerPool) submit(fn func()) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.done {
		return false
	}
	select {
	case p.tasks <- fn:
		return true
	default:
		return false
	}
}

// stop 停止接收新任务并等待已排队任务完成
func (p *workerPool) stop() {
	p.once.Do(func() {
		p.mu.Lock()
		p.done = true
		close(p.tasks)
		p.mu.Unlock()
	})
	p.wg.Wait()
}
