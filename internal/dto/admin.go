package dto

// Record types accepted by the batch delete endpoint.
const (
	RecordStudent     = "student"
	RecordTutor       = "tutor"
	RecordAdmin       = "admin"
	RecordCourse      = "course"
	RecordEnrollment  = "enrollment"
	RecordCertificate = "certificate"
)

// BatchDeleteRequest removes records of a single type.
type BatchDeleteRequest struct {
	Type string   `json:"type" validate:"required,oneof=student tutor admin course enrollment certificate"`
	IDs  []string `json:"ids" validate:"required,min=1,max=500,dive,uuid"`
}

// BatchDeleteResponse reports how many rows were removed.
type BatchDeleteResponse struct {
	Type    string `json:"type"`
	Deleted int64  `json:"deleted"`
}

// ListQuery carries common list parameters bound from the query string.
type ListQuery struct {
	Page     int    `form:"page"`
	PageSize int    `form:"page_size"`
	Search   string `form:"search"`
}
