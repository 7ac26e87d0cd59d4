package sweep

import (
	"encoding/json"

	types "github.com/yungbote/kierachat-backend/internal/domain"
)

type jobPayload struct {
	RequeuedBy string `json:"requeued_by"`
}

func (p *jobPayload) decode(job *types.JobRun) {
	if job == nil || len(job.Payload) == 0 {
		return
	}
	_ = json.Unmarshal(job.Payload, p)
}
