package model

// Endpoint represents a network endpoint with namespace information
type Endpoint struct {
	Namespace string `json:"namespace"`
	PodName   string `json:"pod_name"`
	Workload  string `json:"workload"`
}

// Identity returns the namespace/name form used as a capture identifier.
// The workload name is preferred so that restarted pods keep their identity.
func (e *Endpoint) Identity() string {
	if e == nil {
		return ""
	}
	name := e.Workload
	if name == "" {
		name = e.PodName
	}
	if name == "" {
		return ""
	}
	if e.Namespace == "" {
		return name
	}
	return e.Namespace + "/" + name
}
