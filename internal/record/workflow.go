package record

// CreationInfo is written once when a workflow store is created and never
// modified afterwards.
type CreationInfo struct {
	// WorkflowID is a UUIDv7, so IDs sort by creation time.
	WorkflowID string `json:"workflow_id"`
	AppVersion string `json:"app_version"`
	// CreateTime is the UTC creation timestamp in TimestampFormat.
	CreateTime string `json:"create_time"`
}
