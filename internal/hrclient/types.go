package hrclient

// enrollRequest is the body of POST /api/agent/enroll.
type enrollRequest struct {
	EmpCode      string `json:"empCode"`
	DeviceName   string `json:"deviceName"`
	AgentVersion string `json:"agentVersion"`
}

// EnrollResponse carries the credentials issued to this device.
type EnrollResponse struct {
	DeviceID             string `json:"deviceId"`
	DeviceToken          string `json:"deviceToken"`
	HeartbeatIntervalSec int    `json:"heartbeatIntervalSec"`
}

// Heartbeat is the body of POST /api/agent/heartbeat. ActivityScore is
// only attached when there is activity to score: ACTIVE carries the
// computed value, SUSPICIOUS a forced zero, IDLE nothing.
type Heartbeat struct {
	Status        string  `json:"status"`
	ActivityScore *int    `json:"activityScore,omitempty"`
	IdleSeconds   float64 `json:"idleSeconds"`
	Timestamp     string  `json:"timestamp"`
}

// breakOpenRequest is the body of POST /api/agent/break-log.
type breakOpenRequest struct {
	Reason       string `json:"reason"`
	CustomReason string `json:"customReason"`
	StartedAt    string `json:"startedAt"`
}

// breakPatchRequest is the body of PATCH /api/agent/break-log. Action
// selects which fields the server reads.
type breakPatchRequest struct {
	Action       string `json:"action"` // "update-reason" or "end-break"
	Reason       string `json:"reason,omitempty"`
	CustomReason string `json:"customReason,omitempty"`
	EndedAt      string `json:"endedAt,omitempty"`
}

// shiftInfoResponse is the body of GET /api/agent/shift-info.
type shiftInfoResponse struct {
	ShiftStart   string `json:"shiftStart"` // "HH:MM"
	ShiftEnd     string `json:"shiftEnd"`
	GraceMinutes int    `json:"graceMinutes"`
}
