package maintenance

import (
	"log"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
)

// Job is one scheduled maintenance task.
type Job struct {
	Name string
	Expr string // six-field cron expression (with seconds)
	Run  func() error
}

// JobStatus is the last observed outcome of a job.
type JobStatus struct {
	Name       string
	LastRunAt  time.Time
	LastStatus string // "ok" or "error", empty before the first run
	LastError  string
}

// Service runs the background maintenance schedule. Jobs are registered
// before Start and never change afterwards.
type Service struct {
	cron *rcron.Cron

	mu     sync.Mutex
	status map[string]*JobStatus
	jobs   []Job
}

func NewService() *Service {
	return &Service{status: make(map[string]*JobStatus)}
}

func (s *Service) Register(job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, job)
	s.status[job.Name] = &JobStatus{Name: job.Name}
}

func (s *Service) Start() error {
	s.cron = rcron.New(rcron.WithSeconds())

	s.mu.Lock()
	jobs := make([]Job, len(s.jobs))
	copy(jobs, s.jobs)
	s.mu.Unlock()

	for _, job := range jobs {
		job := job
		if _, err := s.cron.AddFunc(job.Expr, func() {
			s.execute(job)
		}); err != nil {
			log.Printf("[maintenance] failed to register job %s (%s): %v", job.Name, job.Expr, err)
			continue
		}
	}

	s.cron.Start()
	log.Printf("[maintenance] started with %d jobs", len(jobs))
	return nil
}

func (s *Service) execute(job Job) {
	log.Printf("[maintenance] running %s", job.Name)
	err := job.Run()

	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.status[job.Name]
	if !ok {
		return
	}
	st.LastRunAt = time.Now()
	if err != nil {
		st.LastStatus = "error"
		st.LastError = err.Error()
		log.Printf("[maintenance] job %s error: %v", job.Name, err)
	} else {
		st.LastStatus = "ok"
		st.LastError = ""
	}
}

func (s *Service) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStatus, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, *s.status[job.Name])
	}
	return out
}

func (s *Service) Stop() {
	if s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		log.Printf("[maintenance] stop timeout waiting for running jobs")
	}
	log.Printf("[maintenance] stopped")
}
