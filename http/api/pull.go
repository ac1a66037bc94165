package api

// PullRequest requests to relay a remote stream to a local path
type PullRequest struct {
	URL  string `json:"url" validate:"required,url,startswith=rtsp://"`
	Path string `json:"path" validate:"required,startswith=/"`
}

// Pull is an active relay of a remote stream
type Pull struct {
	ID        string `json:"id"`
	URL       string `json:"url"`
	Path      string `json:"path"`
	CreatedAt int64  `json:"created_at"`
}
