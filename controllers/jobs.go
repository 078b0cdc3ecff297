package controllers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fashionstudio/models"
	"fashionstudio/tasks"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type TaskInspector interface {
	GetTaskInfo(queue, id string) (*asynq.TaskInfo, error)
}

type JobsController struct {
	Client    TaskEnqueuer
	Inspector TaskInspector
	URLs      tasks.ReadURLProvider
	Sealer    *tasks.KeySealer
	Retention time.Duration
	Logger    zerolog.Logger
}

func (j *JobsController) Routes(group *echo.Group) {
	group.POST("/video", j.CreateVideoJob)
	group.POST("/speech", j.CreateSpeechJob)
	group.POST("/studio/:step", j.CreateStudioJob)
	group.GET("/:queue/:id", j.GetJob)
}

func (j *JobsController) jobSession(c echo.Context) (tasks.JobSession, error) {
	session := SessionFrom(c)
	js, err := tasks.NewJobSession(j.Sealer, session.APIKey(), session.Language())
	if errors.Is(err, tasks.ErrNoKeySecret) {
		return js, echo.NewHTTPError(http.StatusServiceUnavailable, "jobs cannot carry caller keys on this server")
	}
	return js, err
}

func (j *JobsController) enqueue(c echo.Context, task *asynq.Task) error {
	info, err := j.Client.Enqueue(task, tasks.EnqueueOptions(j.Retention)...)
	if err != nil {
		j.Logger.Error().Err(err).Str("task", task.Type()).Msg("enqueue failed")
		return echo.NewHTTPError(http.StatusServiceUnavailable, "job queue unavailable")
	}
	j.Logger.Info().Str("task", info.Type).Str("id", info.ID).Msg("job enqueued")
	return c.JSON(http.StatusAccepted, models.JobCreatedOut{ID: info.ID, Queue: info.Queue, Type: info.Type})
}

func (j *JobsController) CreateVideoJob(c echo.Context) error {
	var in models.VideoRequest
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	session, err := j.jobSession(c)
	if err != nil {
		return err
	}
	task, err := tasks.NewVideoGenerationTask(tasks.VideoGenerationPayload{Session: session, Request: in})
	if err != nil {
		return err
	}
	return j.enqueue(c, task)
}

func (j *JobsController) CreateSpeechJob(c echo.Context) error {
	var in models.SpeechRequest
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	session, err := j.jobSession(c)
	if err != nil {
		return err
	}
	task, err := tasks.NewSpeechGenerationTask(tasks.SpeechGenerationPayload{Session: session, Request: in})
	if err != nil {
		return err
	}
	return j.enqueue(c, task)
}

func (j *JobsController) CreateStudioJob(c echo.Context) error {
	step := models.StudioStep(c.Param("step"))
	if _, ok := tasks.StudioTaskType(step); !ok {
		return echo.NewHTTPError(http.StatusNotFound, "unknown studio step")
	}
	var in models.StudioJobIn
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&in); err != nil {
		return err
	}
	session, err := j.jobSession(c)
	if err != nil {
		return err
	}
	task, err := tasks.NewStudioTask(step, tasks.StudioPayload{Session: session, Images: in.Images, Prompt: in.Prompt})
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return j.enqueue(c, task)
}

func (j *JobsController) GetJob(c echo.Context) error {
	info, err := j.Inspector.GetTaskInfo(c.Param("queue"), c.Param("id"))
	if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "job not found")
	}
	if err != nil {
		return err
	}

	out := models.JobStatusOut{
		ID:        info.ID,
		Queue:     info.Queue,
		Type:      info.Type,
		State:     info.State.String(),
		Retried:   info.Retried,
		LastError: info.LastErr,
	}
	if len(info.Result) > 0 {
		var asset models.AssetResult
		if err := json.Unmarshal(info.Result, &asset); err == nil && asset.ObjectKey != "" {
			// stored links may have expired since the worker wrote them
			if j.URLs != nil {
				if url, err := j.URLs.GetReadURL(c.Request().Context(), asset.ObjectKey); err == nil {
					asset.URL = url
				}
			}
			out.Result = asset
		} else {
			out.Result = json.RawMessage(info.Result)
		}
	}
	return c.JSON(http.StatusOK, out)
}
