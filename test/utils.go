package test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"fashionstudio/models"
	"fashionstudio/services"

	"github.com/hibiken/asynq"
)

// TestAPIKey has the shape of a Gemini key.
const TestAPIKey = "AIzaSyA1234567890abcdefghijklmnopqrstu"

func JsonString(model interface{}) string {
	bytes, _ := json.Marshal(model)
	return string(bytes)
}

func NewJSONRequest(method string, target string, param interface{}) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(JsonString(param)))
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add("Accept", "application/json")
	return req
}

// NewKeyedJSONRequest is NewJSONRequest with the caller's key attached.
func NewKeyedJSONRequest(method string, target string, param interface{}) *http.Request {
	req := NewJSONRequest(method, target, param)
	req.Header.Set("X-Goog-Api-Key", TestAPIKey)
	return req
}

type StoredObject struct {
	Data     []byte
	MIMEType string
}

type StorageMock struct {
	mu      sync.Mutex
	Objects map[string]StoredObject
	Err     error
}

func (s *StorageMock) Upload(_ context.Context, objectKey string, data []byte, mimeType string) error {
	if s.Err != nil {
		return s.Err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Objects == nil {
		s.Objects = map[string]StoredObject{}
	}
	s.Objects[objectKey] = StoredObject{Data: data, MIMEType: mimeType}
	return nil
}

func (s *StorageMock) PresignRead(_ context.Context, objectKey string) (string, error) {
	return "https://assets.example.com/" + objectKey, nil
}

type URLCacheMock struct{}

func (URLCacheMock) GetReadURL(_ context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", nil
	}
	return "https://assets.example.com/" + objectKey + "?signed=1", nil
}

// StudioMock answers every step with a fixed image and remembers what it was given.
type StudioMock struct {
	Image    []byte
	Err      error
	Calls    []string
	Prompt   string
	Garments int
}

func (m *StudioMock) result() (*services.StudioResult, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return &services.StudioResult{Image: m.Image, MIMEType: "image/png", InputTokenCount: 10, OutputTokenCount: 20}, nil
}

func (m *StudioMock) IsolateProduct(_ context.Context, _ models.SessionConfig, _ []byte) (*services.StudioResult, error) {
	m.Calls = append(m.Calls, string(models.StepIsolate))
	return m.result()
}

func (m *StudioMock) TryOn(_ context.Context, _ models.SessionConfig, _ []byte, garments [][]byte) (*services.StudioResult, error) {
	m.Calls = append(m.Calls, string(models.StepTryOn))
	m.Garments = len(garments)
	return m.result()
}

func (m *StudioMock) ReplaceBackground(_ context.Context, _ models.SessionConfig, _ []byte, prompt string) (*services.StudioResult, error) {
	m.Calls = append(m.Calls, string(models.StepBackground))
	m.Prompt = prompt
	return m.result()
}

// EnqueuerMock records tasks instead of sending them to redis.
type EnqueuerMock struct {
	mu    sync.Mutex
	Tasks []*asynq.Task
	Err   error
}

func (m *EnqueuerMock) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tasks = append(m.Tasks, task)
	return &asynq.TaskInfo{
		ID:    "task-" + string(rune('a'+len(m.Tasks)-1)),
		Queue: "generate",
		Type:  task.Type(),
		State: asynq.TaskStatePending,
	}, nil
}

type InspectorMock struct {
	Infos map[string]*asynq.TaskInfo
}

func (m *InspectorMock) GetTaskInfo(queue, id string) (*asynq.TaskInfo, error) {
	info, ok := m.Infos[queue+"/"+id]
	if !ok {
		return nil, asynq.ErrTaskNotFound
	}
	return info, nil
}

var ErrMock = errors.New("mock failure")
