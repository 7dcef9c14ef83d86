package jobs

const TaskUploadVideo = "upload:video"

// UploadVideoPayload is the asynq task body for one accepted upload job.
type UploadVideoPayload struct {
	JobID       string   `json:"job_id"`
	ChatID      int64    `json:"chat_id"`
	UserID      int64    `json:"user_id"`
	FilePath    string   `json:"file_path"` // local temp path prepared by the bot
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	CategoryID  string   `json:"category_id"`
	Privacy     string   `json:"privacy"`
}
