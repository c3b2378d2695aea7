package scheduler

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job 一个定时任务
type Job struct {
	Name string
	Spec string
	Run  func(ctx context.Context)
}

type Scheduler struct {
	cron *cron.Cron
	jobs []Job
	// 首轮执行前的等待时间
	StartupDelay time.Duration

	mu      sync.Mutex
	running map[string]bool
}

func New(jobs ...Job) (*Scheduler, error) {
	c := cron.New()

	s := &Scheduler{
		cron: c,
		jobs: jobs,
		// 延迟执行首轮采集，避免与用户首次打开页面的请求争抢资源，首屏加载更快
		StartupDelay: 15 * time.Second,
		running:      make(map[string]bool),
	}

	for _, j := range jobs {
		job := j
		if _, err := c.AddFunc(job.Spec, func() { s.run(job) }); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	time.AfterFunc(s.StartupDelay, func() {
		go s.RunOnce()
	})
}

// Stop 停止调度并等待正在执行的任务结束
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// RunOnce 依次执行所有任务一次，方便手动触发
func (s *Scheduler) RunOnce() {
	for _, j := range s.jobs {
		s.run(j)
	}
}

// run 同名任务上一轮未结束时跳过本轮
func (s *Scheduler) run(j Job) {
	s.mu.Lock()
	if s.running[j.Name] {
		s.mu.Unlock()
		log.Printf("scheduler: %s still running, skip", j.Name)
		return
	}
	s.running[j.Name] = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.running, j.Name)
		s.mu.Unlock()
	}()

	start := time.Now()
	log.Printf("scheduler: start %s job...", j.Name)
	j.Run(context.Background())
	log.Printf("scheduler: %s job done in %s", j.Name, time.Since(start).Round(time.Millisecond))
}
