package api

// About is some general information about the API
type About struct {
	App       string       `json:"app"`
	Name      string       `json:"name"`
	ID        string       `json:"id"`
	CreatedAt string       `json:"created_at"`
	Uptime    uint64       `json:"uptime_seconds"`
	Version   AboutVersion `json:"version"`
}

// AboutVersion is some information about the version
type AboutVersion struct {
	Number   string `json:"number"`
	Commit   string `json:"repository_commit"`
	Branch   string `json:"repository_branch"`
	Build    string `json:"build_date"`
	Arch     string `json:"arch"`
	Compiler string `json:"compiler"`
}
