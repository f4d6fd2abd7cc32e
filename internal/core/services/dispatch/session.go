package dispatch

import (
	"gitlab.com/ms-serving.net/internal/core/ports/secondary"
	"gitlab.com/ms-serving.net/internal/domain"
)

// getWorkSession picks the worker for a request: workers of the servable are
// filtered by version (0 matches any) and method, then chosen round-robin with
// a cursor kept per servable name.
func (d *Dispatcher) getWorkSession(spec domain.RequestSpec) (secondary.Notifier, domain.Status) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	contexts := d.servables[spec.Name]
	if len(contexts) == 0 {
		return nil, domain.NewStatus(domain.StatusServableNotFound, "servable %s is not available", spec.Name)
	}

	versionFound := false
	matches := make([]*workerContext, 0, len(contexts))
	for _, c := range contexts {
		if spec.VersionNumber != 0 && c.spec.VersionNumber != spec.VersionNumber {
			continue
		}
		versionFound = true
		if c.spec.HasMethod(spec.MethodName) {
			matches = append(matches, c)
		}
	}
	if !versionFound {
		return nil, domain.NewStatus(domain.StatusVersionMismatch,
			"servable %s version %d is not available", spec.Name, spec.VersionNumber)
	}
	if len(matches) == 0 {
		return nil, domain.NewStatus(domain.StatusServableNotFound,
			"method %s is not available in servable %s", spec.MethodName, spec.Name)
	}

	cursor := d.cursors[spec.Name]
	index := (cursor.Add(1) - 1) % uint64(len(matches))
	return matches[index].notifier, domain.Success()
}
