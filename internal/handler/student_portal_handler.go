package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stemsi/exstem-session/internal/response"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
)

// StudentPortalHandler serves the REST side of an attempt: the exam session,
// progress snapshots and the final submission.
type StudentPortalHandler struct {
	sessionService *service.ExamSessionService
	log            zerolog.Logger
}

// NewStudentPortalHandler creates a new StudentPortalHandler.
func NewStudentPortalHandler(sessionService *service.ExamSessionService, log zerolog.Logger) *StudentPortalHandler {
	return &StudentPortalHandler{
		sessionService: sessionService,
		log:            log.With().Str("component", "student_portal_handler").Logger(),
	}
}

// fail maps service errors to HTTP statuses and error codes.
func (h *StudentPortalHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
	case errors.Is(err, service.ErrExamNotAvailable):
		response.Fail(c, http.StatusForbidden, response.ErrExamNotAvailable)
	case errors.Is(err, service.ErrNoQuestions):
		response.Fail(c, http.StatusUnprocessableEntity, response.ErrNoQuestions)
	case errors.Is(err, service.ErrAlreadySubmitted):
		response.Fail(c, http.StatusConflict, response.ErrAlreadySubmitted)
	case errors.Is(err, service.ErrNoProgress):
		response.Fail(c, http.StatusNotFound, response.ErrNoProgress)
	case errors.Is(err, service.ErrSubmissionMismatch):
		response.Fail(c, http.StatusBadRequest, response.ErrSubmissionForeign)
	case errors.Is(err, service.ErrNoAttempt):
		response.Fail(c, http.StatusConflict, response.ErrNoAttempt)
	default:
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg("Request failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
	}
}

// examParams extracts the authenticated student and the :exam_id path parameter.
func examParams(c *gin.Context) (int, uuid.UUID, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return 0, uuid.Nil, false
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return 0, uuid.Nil, false
	}
	return claims.UserID, examID, true
}

// GetExamSession godoc
// GET /api/v1/student/exams/:exam_id/session
// Opens or resumes the attempt and returns the exam in the student's question
// order together with the time left.
func (h *StudentPortalHandler) GetExamSession(c *gin.Context) {
	studentID, examID, ok := examParams(c)
	if !ok {
		return
	}

	payload, err := h.sessionService.LoadExamSession(c.Request.Context(), examID, studentID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, payload)
}

// GetProgress godoc
// GET /api/v1/student/exams/:exam_id/progress
// Returns the last saved snapshot so a reloaded page can resume.
func (h *StudentPortalHandler) GetProgress(c *gin.Context) {
	studentID, examID, ok := examParams(c)
	if !ok {
		return
	}

	snap, err := h.sessionService.GetProgress(c.Request.Context(), examID, studentID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, snap)
}

// SaveProgress godoc
// POST /api/v1/student/exams/:exam_id/progress
// Stores a snapshot. Accepted (202) once it is in Redis; the durable copy is written by the progress worker.
func (h *StudentPortalHandler) SaveProgress(c *gin.Context) {
	studentID, examID, ok := examParams(c)
	if !ok {
		return
	}

	var snap model.SessionSnapshot
	if fields := validator.Bind(c, &snap); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.sessionService.SaveProgress(c.Request.Context(), examID, studentID, snap); err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"status": "saved"})
}

// Submit godoc
// POST /api/v1/student/exams/:exam_id/submission
// Takes in the final payload exactly once. A repeated submission answers
// success with redirect=true.
func (h *StudentPortalHandler) Submit(c *gin.Context) {
	studentID, examID, ok := examParams(c)
	if !ok {
		return
	}

	var payload model.SubmissionPayload
	if fields := validator.Bind(c, &payload); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if payload.ExamID != examID {
		response.Fail(c, http.StatusBadRequest, response.ErrSubmissionForeign)
		return
	}

	result, err := h.sessionService.Submit(c.Request.Context(), studentID, payload)
	if err != nil {
		if errors.Is(err, service.ErrSubmissionMismatch) ||
			errors.Is(err, service.ErrNoAttempt) ||
			errors.Is(err, service.ErrExamNotAvailable) ||
			errors.Is(err, service.ErrExamNotFound) {
			h.fail(c, err)
			return
		}
		h.log.Error().Err(err).
			Int("student_id", studentID).
			Str("exam_id", examID.String()).
			Msg("Submission failed")
		response.Fail(c, http.StatusInternalServerError, response.ErrSubmissionFailed)
		return
	}

	response.Success(c, http.StatusOK, result)
}
