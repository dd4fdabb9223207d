package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pocketalbum/photofeed/internal/auth"
	"github.com/pocketalbum/photofeed/internal/photos"
)

const (
	sessionContextKey = "photofeed_session"
	imageFormField    = "image"
	maxUploadBytes    = 32 << 20
	heartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingPhotosService    = errors.New("photos service dependency required")
)

// SessionValidator authenticates incoming requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

type Dependencies struct {
	Sessions SessionValidator
	Photos   *photos.Service
	Realtime *RealtimeDispatcher

	// UploadsDirectory, when set, is served under /uploads so locally stored
	// renditions are reachable at their resolved URLs.
	UploadsDirectory string
	Logger           *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Sessions == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Photos == nil {
		return nil, errMissingPhotosService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	realtime := deps.Realtime
	if realtime == nil {
		realtime = NewRealtimeDispatcher()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	router.MaxMultipartMemory = maxUploadBytes

	handler := &httpHandler{
		sessions: deps.Sessions,
		photos:   deps.Photos,
		realtime: realtime,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealth)
	if deps.UploadsDirectory != "" {
		router.Static("/uploads", deps.UploadsDirectory)
	}

	protected := router.Group("/api")
	protected.Use(handler.authorizeRequest)
	protected.GET("/photos", handler.handleListPhotos)
	protected.POST("/photos", handler.handleCreatePhoto)
	protected.PUT("/photos/:id", handler.handleUpdatePhoto)
	protected.DELETE("/photos/:id", handler.handleDeletePhoto)
	protected.GET("/photos/events", handler.handlePhotoEvents)

	return router, nil
}

type httpHandler struct {
	sessions SessionValidator
	photos   *photos.Service
	realtime *RealtimeDispatcher
	logger   *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		h.logger.Warn("session validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(sessionContextKey, claims)
	c.Next()
}

func (h *httpHandler) handleListPhotos(c *gin.Context) {
	views, err := h.photos.List(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to list photos", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"photos": views})
}

func (h *httpHandler) handleCreatePhoto(c *gin.Context) {
	image, fileName, err := readImageFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image"})
		return
	}

	view, err := h.photos.Create(c.Request.Context(), photos.CreateRequest{
		Image:        image,
		FileName:     fileName,
		Caption:      c.PostForm("caption"),
		TakenAt:      c.PostForm("takenAt"),
		Lat:          c.PostForm("lat"),
		Lon:          c.PostForm("lon"),
		LocationName: c.PostForm("locationName"),
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	h.realtime.Publish(RealtimeMessage{
		EventType: RealtimeEventPhotoCreated,
		PhotoID:   view.ID,
		Timestamp: time.Now().UTC(),
	})
	c.JSON(http.StatusCreated, view)
}

func (h *httpHandler) handleUpdatePhoto(c *gin.Context) {
	image, fileName, err := readImageFile(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_image"})
		return
	}

	view, err := h.photos.Update(c.Request.Context(), c.Param("id"), photos.UpdateRequest{
		Image:        image,
		FileName:     fileName,
		Caption:      c.PostForm("caption"),
		TakenAt:      c.PostForm("takenAt"),
		Lat:          c.PostForm("lat"),
		Lon:          c.PostForm("lon"),
		LocationName: c.PostForm("locationName"),
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	h.realtime.Publish(RealtimeMessage{
		EventType: RealtimeEventPhotoUpdated,
		PhotoID:   view.ID,
		Timestamp: time.Now().UTC(),
	})
	c.JSON(http.StatusOK, view)
}

func (h *httpHandler) handleDeletePhoto(c *gin.Context) {
	photoID := c.Param("id")
	if err := h.photos.Delete(c.Request.Context(), photoID); err != nil {
		h.respondServiceError(c, err)
		return
	}

	h.realtime.Publish(RealtimeMessage{
		EventType: RealtimeEventPhotoDeleted,
		PhotoID:   photoID,
		Timestamp: time.Now().UTC(),
	})
	c.Status(http.StatusNoContent)
}

// handlePhotoEvents streams album changes as server-sent events, with
// periodic heartbeats so idle proxies keep the connection open.
func (h *httpHandler) handlePhotoEvents(c *gin.Context) {
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	stream, cleanup := h.realtime.Subscribe(c.Request.Context())
	defer cleanup()

	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case message, ok := <-stream:
			if !ok {
				return
			}
			payload, err := json.Marshal(message)
			if err != nil {
				h.logger.Error("failed to encode realtime message", zap.Error(err))
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", message.EventType, payload)
			c.Writer.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(c.Writer, "event: %s\ndata: {}\n\n", realtimeEventHeartbeat)
			c.Writer.Flush()
		}
	}
}

// readImageFile extracts the optional upload from the multipart form. An
// absent file yields a nil slice; the caller decides whether that is allowed.
func readImageFile(c *gin.Context) ([]byte, string, error) {
	fileHeader, err := c.FormFile(imageFormField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return nil, "", nil
		}
		return nil, "", err
	}
	if fileHeader.Size > maxUploadBytes {
		return nil, "", fmt.Errorf("upload exceeds %d bytes", int64(maxUploadBytes))
	}

	file, err := fileHeader.Open()
	if err != nil {
		return nil, "", err
	}
	defer file.Close()

	blob, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		return nil, "", err
	}
	if len(blob) > maxUploadBytes {
		return nil, "", fmt.Errorf("upload exceeds %d bytes", int64(maxUploadBytes))
	}
	return blob, fileHeader.Filename, nil
}

func (h *httpHandler) respondServiceError(c *gin.Context, err error) {
	if errors.Is(err, photos.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	var serviceErr *photos.ServiceError
	if errors.As(err, &serviceErr) {
		code := serviceErr.Code()
		reason := code[strings.LastIndex(code, ".")+1:]
		switch reason {
		case "invalid_id", "invalid_taken_at", "missing_image", "decode_failed":
			c.JSON(http.StatusBadRequest, gin.H{"error": reason})
			return
		}
		h.logger.Error("photo operation failed", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": reason})
		return
	}

	h.logger.Error("photo operation failed", zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
}
