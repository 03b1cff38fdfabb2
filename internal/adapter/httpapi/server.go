package httpapi

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/escalopa/quizzr-dataflow/internal/application"
	"github.com/escalopa/quizzr-dataflow/internal/domain"
	"github.com/escalopa/quizzr-dataflow/internal/logger"
)

const sessionHeader = "X-Session-ID"

// Server exposes the data-flow service over HTTP
type Server struct {
	service *application.Service
	log     *logger.Logger
}

// NewServer creates the HTTP server facade
func NewServer(service *application.Service, log *logger.Logger) *Server {
	return &Server{
		service: service,
		log:     log.With("adapter", "httpapi"),
	}
}

// Router builds the gin engine with all routes registered
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	audio := router.Group("/audio")
	{
		audio.POST("", s.submitAudio)
		audio.GET("/unprocessed", s.listUnprocessed)
		audio.POST("/processed", s.applyBatch)
	}

	question := router.Group("/question")
	{
		question.GET("/unrec/random", s.pickUnrecorded)
		question.GET("/rec/random", s.pickAnswerable)
	}

	return router
}

type submitResponse struct {
	Accepted    bool    `json:"accepted"`
	RecordingID string  `json:"recordingId,omitempty"`
	Accuracy    float64 `json:"accuracy"`
	Difficulty  *int    `json:"difficulty,omitempty"`
}

// submitAudio handles a multipart audio submission
func (s *Server) submitAudio(c *gin.Context) {
	fileHeader, err := c.FormFile("audio")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "audio file is required"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot open audio file"})
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot read audio file"})
		return
	}

	kind := domain.RecordingKind(c.DefaultPostForm("recType", string(domain.KindNormal)))
	switch kind {
	case domain.KindNormal, domain.KindAnswer, domain.KindBuzz:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown recType"})
		return
	}

	duration, _ := strconv.ParseFloat(c.PostForm("duration"), 64)

	sub := &domain.Submission{
		Audio:      audio,
		QuestionID: c.PostForm("questionId"),
		UserID:     c.PostForm("userId"),
		Kind:       kind,
		Duration:   duration,
	}
	if sub.QuestionID == "" || sub.UserID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "questionId and userId are required"})
		return
	}

	result, err := s.service.SubmitForScreening(c.Request.Context(), sub)
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, submitResponse{
		Accepted:    result.Accepted,
		RecordingID: result.RecordingID,
		Accuracy:    result.Accuracy,
		Difficulty:  result.Difficulty,
	})
}

type unprocessedResponse struct {
	RecordingID string `json:"recordingId"`
	BlobPath    string `json:"blobPath"`
	Transcript  string `json:"transcript"`
}

// listUnprocessed returns recordings awaiting external evaluation
func (s *Server) listUnprocessed(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))

	items, err := s.service.ListUnprocessed(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}

	response := make([]unprocessedResponse, len(items))
	for i, item := range items {
		response[i] = unprocessedResponse{
			RecordingID: item.RecordingID,
			BlobPath:    item.BlobPath,
			Transcript:  item.Transcript,
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": response})
}

type batchItemRequest struct {
	RecordingID string            `json:"recordingId" binding:"required"`
	Alignment   *domain.Alignment `json:"alignment"`
	Accuracy    float64           `json:"accuracy"`
	BatchID     string            `json:"batchId"`
}

// applyBatch applies externally computed evaluation results
func (s *Server) applyBatch(c *gin.Context) {
	var request struct {
		Items []batchItemRequest `json:"items" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items := make([]domain.BatchItem, len(request.Items))
	for i, item := range request.Items {
		items[i] = domain.BatchItem{
			RecordingID: item.RecordingID,
			Alignment:   item.Alignment,
			Accuracy:    item.Accuracy,
			BatchID:     item.BatchID,
		}
	}

	results, err := s.service.ApplyBatch(c.Request.Context(), items)
	if err != nil {
		s.fail(c, err)
		return
	}

	response := make([]gin.H, len(results))
	for i, result := range results {
		entry := gin.H{"recordingId": result.RecordingID}
		if result.Err != nil {
			entry["error"] = result.Err.Error()
		}
		response[i] = entry
	}
	c.JSON(http.StatusOK, gin.H{"results": response})
}

// pickUnrecorded serves a random question for the record flow
func (s *Server) pickUnrecorded(c *gin.Context) {
	question, err := s.service.SelectForRecording(c.Request.Context(), s.sessionID(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         question.ID,
		"transcript": question.Transcript,
	})
}

// pickAnswerable serves a random recorded question with its best recording
func (s *Server) pickAnswerable(c *gin.Context) {
	question, recording, err := s.service.SelectForAnswering(c.Request.Context(), s.sessionID(c))
	if err != nil {
		s.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":          question.ID,
		"answer":      question.Answer,
		"recordingId": recording.ID,
		"blobPath":    recording.BlobPath,
		"vtt":         recording.VTT,
		"duration":    recording.Duration,
	})
}

// sessionID reads the caller's session tag, falling back to the query string
func (s *Server) sessionID(c *gin.Context) string {
	if id := c.GetHeader(sessionHeader); id != "" {
		return id
	}
	return c.Query("sid")
}

// fail maps a service error to an HTTP status
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrQueueFull):
		status = http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrEmptyPool):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateBatchItem), errors.Is(err, domain.ErrMalformedAlignment):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrAlreadyProcessed):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrAlignmentEngine):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
