package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/zaldivarmena/mindy/internal/queue"
	"github.com/zaldivarmena/mindy/internal/server/middleware"
	"github.com/zaldivarmena/mindy/pkg/ai"
	"github.com/zaldivarmena/mindy/pkg/logger"
	"github.com/zaldivarmena/mindy/pkg/store"

	"github.com/labstack/echo/v4"
)

type messageResponse struct {
	Message string `json:"message"`
}

func GetStudyTypeHandler(c echo.Context) error {
	type getStudyTypeData struct {
		CourseID  string `json:"courseId" validate:"required"`
		StudyType string `json:"studyType" validate:"required"`
	}

	data := new(getStudyTypeData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Invalid request params"})
	}
	studyType, err := ai.ParseStudyType(data.StudyType)
	if err != nil {
		return c.JSON(http.StatusBadRequest, messageResponse{Message: "Unknown study type"})
	}

	app := c.(*middleware.AppContext).App
	record, err := app.Store.GetStudyContent(c.Request().Context(), data.CourseID, string(studyType))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, messageResponse{Message: "Study content not found"})
		}
		logger.Error("[Server] Failed to load study content", "course", data.CourseID, "err", err)
		return c.JSON(http.StatusInternalServerError, messageResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, record)
}

func GenerateStudyTypeContentHandler(c echo.Context) error {
	type generateData struct {
		CourseID     string `json:"courseId" validate:"required"`
		StudyType    string `json:"type" validate:"required"`
		Chapters     string `json:"chapters" validate:"required"`
		CourseLength string `json:"courseLength"`
	}

	type generateResponse struct {
		Message  string `json:"message"`
		RecordID int64  `json:"id,omitempty"`
	}

	data := new(generateData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, generateResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, generateResponse{Message: "Invalid request params"})
	}
	studyType, err := ai.ParseStudyType(data.StudyType)
	if err != nil {
		return c.JSON(http.StatusBadRequest, generateResponse{Message: "Unknown study type"})
	}
	if data.CourseLength == "" {
		data.CourseLength = "5"
	}

	ctx := c.Request().Context()
	app := c.(*middleware.AppContext).App

	id, err := app.Store.CreateStudyContent(ctx, data.CourseID, string(studyType))
	if err != nil {
		logger.Error("[Server] Failed to create study content", "course", data.CourseID, "err", err)
		return c.JSON(http.StatusInternalServerError, generateResponse{Message: "Internal server error"})
	}

	msg, err := json.Marshal(queue.GenerateStudyContentMsg{
		RecordID:  id,
		CourseID:  data.CourseID,
		StudyType: string(studyType),
		Prompt:    ai.BuildStudyPrompt(studyType, data.Chapters, data.CourseLength),
	})
	if err != nil {
		return c.JSON(http.StatusInternalServerError, generateResponse{Message: "Internal server error"})
	}
	if err := app.Queue.PublishFIFO(ctx, queue.StudyContentQueue, msg); err != nil {
		logger.Error("[Server] Failed to enqueue generation", "record", id, "err", err)
		_ = app.Store.FailStudyContent(ctx, id, "could not enqueue generation")
		return c.JSON(http.StatusInternalServerError, generateResponse{Message: "Failed to start generation"})
	}

	return c.JSON(http.StatusAccepted, generateResponse{
		Message:  "Generation started",
		RecordID: id,
	})
}

func UpdateStudyTypeHandler(c echo.Context) error {
	type updateData struct {
		CourseID  string          `json:"courseId" validate:"required"`
		StudyType string          `json:"studyType" validate:"required"`
		Content   json.RawMessage `json:"content"`
	}

	type updateResponse struct {
		Message  string `json:"message"`
		RecordID int64  `json:"id,omitempty"`
	}

	data := new(updateData)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, updateResponse{Message: "Invalid request params"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, updateResponse{Message: "Invalid request params"})
	}
	if len(data.Content) == 0 || !json.Valid(data.Content) {
		return c.JSON(http.StatusBadRequest, updateResponse{Message: "Content must be JSON"})
	}
	studyType, err := ai.ParseStudyType(data.StudyType)
	if err != nil {
		return c.JSON(http.StatusBadRequest, updateResponse{Message: "Unknown study type"})
	}

	app := c.(*middleware.AppContext).App
	id, err := app.Store.UpdateStudyContent(c.Request().Context(), data.CourseID, string(studyType), data.Content)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, updateResponse{Message: "Study content not found"})
		}
		logger.Error("[Server] Failed to update study content", "course", data.CourseID, "err", err)
		return c.JSON(http.StatusInternalServerError, updateResponse{Message: "Internal server error"})
	}

	return c.JSON(http.StatusOK, updateResponse{
		Message:  "Study content updated successfully",
		RecordID: id,
	})
}
