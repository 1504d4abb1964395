package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/autorec/autorec/internal/catalog"
	"github.com/autorec/autorec/internal/recorder"
)

// Recorder is the slice of the recording controller the API exposes.
type Recorder interface {
	Status() recorder.Status
	Rotate() bool
}

// Handler implements the API operations.
type Handler struct {
	rec       Recorder
	store     *catalog.Store
	version   string
	startTime time.Time
}

// NewHandler creates the API handler.
func NewHandler(rec Recorder, store *catalog.Store, version string) *Handler {
	return &Handler{
		rec:       rec,
		store:     store,
		version:   version,
		startTime: time.Now(),
	}
}

// Register registers all operations with the API.
func (h *Handler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
		Description: "Returns service health and basic system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Recorder status",
		Description: "Returns device state, negotiated formats, the active recording, and the latest resource snapshot",
		Tags:        []string{"Recorder"},
	}, h.GetStatus)

	huma.Register(api, huma.Operation{
		OperationID: "listRecordings",
		Method:      http.MethodGet,
		Path:        "/api/v1/recordings",
		Summary:     "List recordings",
		Description: "Returns catalogued recordings, newest first",
		Tags:        []string{"Recordings"},
	}, h.ListRecordings)

	huma.Register(api, huma.Operation{
		OperationID: "getRecording",
		Method:      http.MethodGet,
		Path:        "/api/v1/recordings/{id}",
		Summary:     "Get one recording",
		Tags:        []string{"Recordings"},
	}, h.GetRecording)

	huma.Register(api, huma.Operation{
		OperationID: "rotateRecording",
		Method:      http.MethodPost,
		Path:        "/api/v1/recording/rotate",
		Summary:     "Rotate the current recording",
		Description: "Finalizes the active file now; a fresh recording starts on the next poll",
		Tags:        []string{"Recorder"},
	}, h.RotateRecording)
}

// MemoryInfo is the system memory portion of the health response.
type MemoryInfo struct {
	TotalBytes     uint64  `json:"total_bytes"`
	AvailableBytes uint64  `json:"available_bytes"`
	UsedPercent    float64 `json:"used_percent"`
}

// LoadInfo is the load-average portion of the health response.
type LoadInfo struct {
	Load1  float64 `json:"load1"`
	Load5  float64 `json:"load5"`
	Load15 float64 `json:"load15"`
}

// HealthResponse is the health check response body.
type HealthResponse struct {
	Status  string      `json:"status"`
	Version string      `json:"version"`
	Uptime  string      `json:"uptime"`
	Memory  *MemoryInfo `json:"memory,omitempty"`
	Load    *LoadInfo   `json:"load,omitempty"`
}

// HealthInput is the input for the health check endpoint.
type HealthInput struct{}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// GetHealth returns service health and system metrics.
func (h *Handler) GetHealth(ctx context.Context, _ *HealthInput) (*HealthOutput, error) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		resp.Memory = &MemoryInfo{
			TotalBytes:     vm.Total,
			AvailableBytes: vm.Available,
			UsedPercent:    vm.UsedPercent,
		}
	}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		resp.Load = &LoadInfo{Load1: avg.Load1, Load5: avg.Load5, Load15: avg.Load15}
	}
	return &HealthOutput{Body: resp}, nil
}

// StatusInput is the input for the status endpoint.
type StatusInput struct{}

// StatusOutput is the output for the status endpoint.
type StatusOutput struct {
	Body recorder.Status
}

// GetStatus returns the recorder's current state.
func (h *Handler) GetStatus(ctx context.Context, _ *StatusInput) (*StatusOutput, error) {
	return &StatusOutput{Body: h.rec.Status()}, nil
}

// ListRecordingsInput is the input for the recording list endpoint.
type ListRecordingsInput struct {
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Maximum number of recordings to return"`
}

// RecordingListResponse is the recording list response body.
type RecordingListResponse struct {
	Recordings []catalog.Recording `json:"recordings"`
	Total      int64               `json:"total"`
}

// ListRecordingsOutput is the output for the recording list endpoint.
type ListRecordingsOutput struct {
	Body RecordingListResponse
}

// ListRecordings returns catalogued recordings, newest first.
func (h *Handler) ListRecordings(ctx context.Context, input *ListRecordingsInput) (*ListRecordingsOutput, error) {
	rows, err := h.store.List(ctx, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list recordings", err)
	}
	total, err := h.store.Count(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to count recordings", err)
	}
	if rows == nil {
		rows = []catalog.Recording{}
	}
	return &ListRecordingsOutput{Body: RecordingListResponse{Recordings: rows, Total: total}}, nil
}

// GetRecordingInput is the input for the single-recording endpoint.
type GetRecordingInput struct {
	ID string `path:"id" doc:"Recording ULID"`
}

// GetRecordingOutput is the output for the single-recording endpoint.
type GetRecordingOutput struct {
	Body catalog.Recording
}

// GetRecording returns one catalogued recording by id.
func (h *Handler) GetRecording(ctx context.Context, input *GetRecordingInput) (*GetRecordingOutput, error) {
	id, err := catalog.ParseULID(input.ID)
	if err != nil {
		return nil, huma.Error400BadRequest("invalid recording id", err)
	}
	rec, err := h.store.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to fetch recording", err)
	}
	if rec == nil {
		return nil, huma.Error404NotFound("recording not found")
	}
	return &GetRecordingOutput{Body: *rec}, nil
}

// RotateResponse is the rotate response body.
type RotateResponse struct {
	Rotated bool   `json:"rotated"`
	Message string `json:"message"`
}

// RotateInput is the input for the rotate endpoint.
type RotateInput struct{}

// RotateOutput is the output for the rotate endpoint.
type RotateOutput struct {
	Body RotateResponse
}

// RotateRecording finalizes the active recording.
func (h *Handler) RotateRecording(ctx context.Context, _ *RotateInput) (*RotateOutput, error) {
	if h.rec.Rotate() {
		return &RotateOutput{Body: RotateResponse{
			Rotated: true,
			Message: "finalizing current recording; a new one starts on the next poll",
		}}, nil
	}
	return &RotateOutput{Body: RotateResponse{
		Rotated: false,
		Message: "no active recording",
	}}, nil
}
