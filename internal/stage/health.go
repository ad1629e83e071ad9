package stage

// Health reports whether a downstream stage can run.
type Health struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// Healthy constructs a ready Health record.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy constructs a Health record explaining why the stage cannot run.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Detail: detail}
}
