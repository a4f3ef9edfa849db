package health

import "context"

// Status represents the aggregated health status.
type Status string

const (
	// Healthy indicates all components are operational.
	Healthy Status = "ok"
	// Degraded indicates partial failure.
	Degraded Status = "degraded"
	// Unhealthy indicates total failure.
	Unhealthy Status = "error"
)

// CheckResult represents an individual component health check outcome.
type CheckResult string

const (
	// CheckOK indicates a passing health check.
	CheckOK CheckResult = "ok"
	// CheckError indicates a failing health check.
	CheckError CheckResult = "error"
)

// Report aggregates health check results.
type Report struct {
	Status       Status
	Node         string
	RunningTasks int
	Checks       map[string]CheckResult
}

// Service coordinates health checks.
type Service struct {
	node  string
	redis Pinger
	docs  Pinger
	tasks TaskCounter
}

// New creates a Service. tasks can be nil.
func New(node string, redis, docs Pinger, tasks TaskCounter) *Service {
	return &Service{node: node, redis: redis, docs: docs, tasks: tasks}
}

// Check runs health checks against all components.
func (s *Service) Check(ctx context.Context) Report {
	checks := map[string]CheckResult{
		"redis":    check(ctx, s.redis),
		"docstore": check(ctx, s.docs),
	}

	failed := 0
	for _, v := range checks {
		if v == CheckError {
			failed++
		}
	}
	status := Healthy
	switch {
	case failed == len(checks):
		status = Unhealthy
	case failed > 0:
		status = Degraded
	}

	r := Report{Status: status, Node: s.node, Checks: checks}
	if s.tasks != nil {
		r.RunningTasks = s.tasks.Running()
	}
	return r
}

func check(ctx context.Context, p Pinger) CheckResult {
	if err := p.Ping(ctx); err != nil {
		return CheckError
	}
	return CheckOK
}
