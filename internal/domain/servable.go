package domain

import (
	"fmt"
	"strings"
)

// RequestSpec identifies the servable endpoint a client wants to reach.
// VersionNumber 0 means any registered version.
type RequestSpec struct {
	Name          string `json:"servable_name"`
	VersionNumber uint64 `json:"version_number"`
	MethodName    string `json:"method_name"`
}

func (r RequestSpec) String() string {
	return fmt.Sprintf("{name:%s, version:%d, method:%s}", r.Name, r.VersionNumber, r.MethodName)
}

// WorkerSpec describes one servable hosted by a worker process.
// It is replaced wholesale on re-registration, never mutated in place.
type WorkerSpec struct {
	Address       string   `json:"address"`
	Name          string   `json:"servable_name"`
	VersionNumber uint64   `json:"version_number"`
	Methods       []string `json:"methods"`
}

// HasMethod reports whether the worker serves the given method
func (w WorkerSpec) HasMethod(method string) bool {
	for _, m := range w.Methods {
		if m == method {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate registry state
func (w WorkerSpec) Clone() WorkerSpec {
	out := w
	out.Methods = append([]string(nil), w.Methods...)
	return out
}

func (w WorkerSpec) String() string {
	return fmt.Sprintf("{name:%s, version:%d, method:[%s]}", w.Name, w.VersionNumber, strings.Join(w.Methods, ","))
}

// WorkerAgentSpec is one rank of a distributed worker
type WorkerAgentSpec struct {
	Rank    uint32 `json:"rank"`
	Address string `json:"address"`
}

// FormatWorkerSpecs renders a registration for log lines
func FormatWorkerSpecs(address string, specs []WorkerSpec) string {
	parts := make([]string, 0, len(specs))
	for _, s := range specs {
		parts = append(parts, s.String())
	}
	return fmt.Sprintf("worker address: %s, servables: [%s]", address, strings.Join(parts, ", "))
}
