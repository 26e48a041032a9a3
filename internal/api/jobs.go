package api

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ankigen/internal/models"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
	JobStatusFailed     = "failed"

	FileStatusPending    = "pending"
	FileStatusProcessing = "processing"
	FileStatusComplete   = "complete"
	FileStatusError      = "error"
)

// GenerationResult is the per-file outcome of an upload job.
type GenerationResult struct {
	Name      string                   `json:"name"`
	Status    string                   `json:"status"`
	Message   string                   `json:"message,omitempty"`
	CardCount int                      `json:"cardCount"`
	Payload   *models.ExtractionResult `json:"payload,omitempty"`
}

// UploadJob tracks the progress of a generation request across files.
type UploadJob struct {
	ID        string             `json:"jobId"`
	Status    string             `json:"status"`
	CreatedAt time.Time          `json:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt"`
	Files     []FileProgress     `json:"files"`
	Results   []GenerationResult `json:"results,omitempty"`
	Error     string             `json:"error,omitempty"`
}

// FileProgress captures per-file progress updates that clients poll.
type FileProgress struct {
	Index   int               `json:"index"`
	Name    string            `json:"name"`
	Status  string            `json:"status"`
	Step    string            `json:"step,omitempty"`
	Message string            `json:"message,omitempty"`
	Current int               `json:"current"`
	Total   int               `json:"total"`
	Percent int               `json:"percent"`
	Result  *GenerationResult `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

type JobManager struct {
	mu   sync.RWMutex
	jobs map[string]*UploadJob
}

func NewJobManager() *JobManager {
	return &JobManager{jobs: make(map[string]*UploadJob)}
}

func (m *JobManager) CreateJob(fileNames []string) (string, *UploadJob) {
	files := make([]FileProgress, len(fileNames))
	for i, name := range fileNames {
		files[i] = FileProgress{Index: i, Name: name, Status: FileStatusPending}
	}
	job := &UploadJob{
		ID:        uuid.NewString(),
		Status:    JobStatusPending,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
		Files:     files,
	}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.mu.Unlock()

	return job.ID, job.clone()
}

func (m *JobManager) GetJob(id string) (*UploadJob, bool) {
	m.mu.RLock()
	job, ok := m.jobs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return job.clone(), true
}

func (m *JobManager) MarkProcessing(id string) {
	m.withJob(id, func(job *UploadJob) {
		job.Status = JobStatusProcessing
	})
}

func (m *JobManager) MarkCompleted(id string) {
	m.withJob(id, func(job *UploadJob) {
		job.Status = JobStatusComplete
	})
}

func (m *JobManager) MarkFailed(id string, msg string) {
	m.withJob(id, func(job *UploadJob) {
		job.Status = JobStatusFailed
		job.Error = strings.TrimSpace(msg)
	})
}

func (m *JobManager) MarkFileStarted(id string, index int) {
	m.withJob(id, func(job *UploadJob) {
		if file := job.file(index); file != nil {
			file.Status = FileStatusProcessing
			file.Message = "Starting"
			file.Total = 100
		}
	})
}

func (m *JobManager) UpdateFileProgress(id string, index int, step, message string, current, total int) {
	m.withJob(id, func(job *UploadJob) {
		if file := job.file(index); file != nil {
			file.Status = FileStatusProcessing
			file.Step = step
			file.Message = message
			file.Current = current
			file.Total = total
			file.Percent = percent(current, total)
		}
	})
}

func (m *JobManager) MarkFileComplete(id string, index int, result GenerationResult) {
	m.withJob(id, func(job *UploadJob) {
		if file := job.file(index); file != nil {
			file.Status = FileStatusComplete
			file.Step = "complete"
			file.Message = "Processing complete"
			file.Current = 100
			file.Total = 100
			file.Percent = 100
			file.Result = &result
			file.Error = ""
		}
		job.Results = append(job.Results, result)
	})
}

func (m *JobManager) MarkFileError(id string, index int, message string, result GenerationResult) {
	msg := strings.TrimSpace(message)
	if msg == "" {
		msg = "processing error"
	}
	result.Status = FileStatusError
	if result.Message == "" {
		result.Message = msg
	}
	m.withJob(id, func(job *UploadJob) {
		if file := job.file(index); file != nil {
			file.Status = FileStatusError
			file.Step = "error"
			file.Message = msg
			file.Error = msg
			file.Percent = 100
			file.Result = &result
		}
		job.Results = append(job.Results, result)
	})
}

func (m *JobManager) withJob(id string, fn func(job *UploadJob)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return
	}
	fn(job)
	job.UpdatedAt = time.Now().UTC()
}

func (job *UploadJob) file(index int) *FileProgress {
	if index < 0 || index >= len(job.Files) {
		return nil
	}
	return &job.Files[index]
}

func (job *UploadJob) clone() *UploadJob {
	if job == nil {
		return nil
	}
	copyJob := &UploadJob{
		ID:        job.ID,
		Status:    job.Status,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
		Error:     job.Error,
	}
	if len(job.Files) > 0 {
		copyJob.Files = make([]FileProgress, len(job.Files))
		for i, file := range job.Files {
			copyJob.Files[i] = file
			if file.Result != nil {
				res := *file.Result
				copyJob.Files[i].Result = &res
			}
		}
	}
	if len(job.Results) > 0 {
		copyJob.Results = append([]GenerationResult(nil), job.Results...)
	}
	return copyJob
}

func percent(current, total int) int {
	if total <= 0 || current <= 0 {
		return 0
	}
	if current >= total {
		return 100
	}
	return int((float64(current) / float64(total)) * 100)
}
