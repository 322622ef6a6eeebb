package models

// HealthData represents the health check payload.
type HealthData struct {
	Status  string `json:"status" example:"ok" doc:"Health status"`
	Message string `json:"message" example:"API is healthy" doc:"Health message"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Body HealthData
}

// VersionData represents build metadata.
type VersionData struct {
	Version   string `json:"version" example:"1.2.0" doc:"Application version"`
	GitCommit string `json:"git_commit" example:"abc1234" doc:"Git commit hash"`
	BuildDate string `json:"build_date" example:"2025-01-27T10:30:00Z" doc:"Build timestamp"`
	BuildID   string `json:"build_id" doc:"Build identifier"`
	GoVersion string `json:"go_version" example:"go1.24.11" doc:"Go version"`
	Compiler  string `json:"compiler" example:"gc" doc:"Go compiler"`
	Platform  string `json:"platform" example:"linux/arm64" doc:"Target platform"`
}

// VersionResponse represents the version response.
type VersionResponse struct {
	Body VersionData
}

// LogLevelRequest changes one module's log level.
type LogLevelRequest struct {
	Body struct {
		Module string `json:"module" minLength:"1" example:"session" doc:"Logger module, e.g. session, player, probe, cameras, capture, api"`
		Level  string `json:"level" enum:"debug,info,warn,error" example:"debug" doc:"New level"`
	}
}

// LogLevelResponse echoes the applied level.
type LogLevelResponse struct {
	Body struct {
		Module string `json:"module" example:"session" doc:"Logger module"`
		Level  string `json:"level" example:"debug" doc:"Applied level"`
	}
}
