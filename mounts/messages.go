package mounts

type MountsRequest struct {
	User string `json:"user"`
	// recompute the mounts of user before answering
	Refresh bool `json:"refresh,omitempty"`
}

type MountsResponse struct {
	Error  string        `json:"error,omitempty"`
	Mounts []CachedMount `json:"mounts"`
}
