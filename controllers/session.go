package controllers

import (
	"errors"
	"net/http"
	"time"

	"fashionstudio/models"
	"fashionstudio/services"

	"github.com/labstack/echo/v4"
)

type SessionController struct {
	Store services.SessionStore
	Now   func() time.Time
}

func (s *SessionController) Routes(group *echo.Group) {
	group.GET("", s.Get)
	group.GET("/:id", s.Get)
	group.PUT("", s.Save)
	group.PUT("/:id", s.Save)
	group.DELETE("", s.Delete)
	group.DELETE("/:id", s.Delete)
}

func sessionID(c echo.Context) (string, error) {
	id := c.Param("id")
	if id == "" {
		id = models.DefaultSessionID
	}
	if err := services.ValidateSessionID(id); err != nil || len(id) > 64 {
		return "", echo.NewHTTPError(http.StatusBadRequest, services.ErrInvalidSessionID.Error())
	}
	return id, nil
}

func (s *SessionController) Get(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	session, err := s.Store.Load(c.Request().Context(), services.ScopedSessionID(SessionFrom(c).APIKey(), id))
	if errors.Is(err, services.ErrSessionNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	}
	if err != nil {
		return err
	}
	session.ID = id
	return c.JSON(http.StatusOK, session)
}

func (s *SessionController) Save(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	var in models.SaveSessionIn
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := c.Validate(&in); err != nil {
		return err
	}

	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	session := models.StudioSession{
		ID:              services.ScopedSessionID(SessionFrom(c).APIKey(), id),
		ProductImage:    in.ProductImage,
		IsolatedImage:   in.IsolatedImage,
		TryOnImage:      in.TryOnImage,
		BackgroundImage: in.BackgroundImage,
		VideoURI:        in.VideoURI,
		NarrationURI:    in.NarrationURI,
		ActiveStep:      in.ActiveStep,
		Prompts:         in.Prompts,
		UpdatedAt:       now().UTC(),
	}
	if err := s.Store.Save(c.Request().Context(), session); err != nil {
		return err
	}
	session.ID = id
	return c.JSON(http.StatusOK, session)
}

func (s *SessionController) Delete(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := s.Store.Delete(c.Request().Context(), services.ScopedSessionID(SessionFrom(c).APIKey(), id)); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
