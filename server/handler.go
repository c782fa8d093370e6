package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/feitianbubu/mediaflow"
	"github.com/feitianbubu/mediaflow/taskmanager"
)

// statusClientClosedRequest is reported when the caller went away mid request
const statusClientClosedRequest = 499

type generateImageRequest struct {
	NodeType mediaflow.NodeType     `json:"nodeType" binding:"required"`
	Edit     bool                   `json:"edit"`
	Request  mediaflow.ImageRequest `json:"request"`
}

type generateTextRequest struct {
	NodeType mediaflow.NodeType    `json:"nodeType" binding:"required"`
	Request  mediaflow.TextRequest `json:"request"`
}

type createVideoTaskRequest struct {
	NodeType mediaflow.NodeType     `json:"nodeType" binding:"required"`
	CanvasID string                 `json:"canvasId"`
	NodeID   string                 `json:"nodeId"`
	Request  mediaflow.VideoRequest `json:"request"`
}

type createVideoTaskResponse struct {
	mediaflow.VideoResponse
	Task *taskmanager.TaskInfo `json:"task,omitempty"`
}

type setActiveCanvasRequest struct {
	CanvasID string `json:"canvasId" binding:"required"`
}

// statusFor maps an error kind to an HTTP status
func statusFor(err error) int {
	switch mediaflow.ErrorKind(err) {
	case "validation":
		return http.StatusBadRequest
	case "config":
		return http.StatusUnprocessableEntity
	case "cancelled":
		return statusClientClosedRequest
	case "timeout":
		return http.StatusGatewayTimeout
	case "not_ready":
		return http.StatusConflict
	case "unknown":
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) generateImage(c *gin.Context) {
	var req generateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	generate := s.client.GenerateImage
	if req.Edit {
		generate = s.client.EditImage
	}
	result, err := generate(c.Request.Context(), req.NodeType, &req.Request)
	if err != nil {
		s.logFailure(c, "image generation failed", err)
		c.JSON(statusFor(err), mediaflow.NewImageResponse(nil, err))
		return
	}
	c.JSON(http.StatusOK, mediaflow.NewImageResponse(result, nil))
}

// generateText runs a text generation. With a JSON schema the reply must
// parse as JSON; the parsed value is returned next to the raw content.
func (s *Server) generateText(c *gin.Context) {
	var req generateTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	result, err := s.client.GenerateText(c.Request.Context(), req.NodeType, &req.Request)
	if err != nil {
		s.logFailure(c, "text generation failed", err)
		c.JSON(statusFor(err), mediaflow.NewTextResponse(nil, err))
		return
	}

	resp := mediaflow.NewTextResponse(result, nil)
	if req.Request.ResponseJSONSchema != nil {
		data, err := mediaflow.ValidateJSONOutput(result.Content)
		if err != nil {
			s.logger.Warn("structured output is not valid JSON",
				zap.String("requestId", c.GetString("requestId")),
				zap.String("model", result.Model),
				zap.Error(err))
			resp.Error = err.Error()
			resp.ErrorKind = "invalid_output"
			c.JSON(http.StatusBadGateway, resp)
			return
		}
		resp.Data = data
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) imageCapabilities(c *gin.Context) {
	caps, err := s.client.ImageCapabilities(mediaflow.NodeType(c.Param("nodeType")))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, caps)
}

func (s *Server) videoCapabilities(c *gin.Context) {
	caps, err := s.client.VideoCapabilities(mediaflow.NodeType(c.Param("nodeType")))
	if err != nil {
		c.JSON(statusFor(err), gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, caps)
}

// createVideoTask creates the remote task and, when a canvas node is given,
// hands it to the task manager.
func (s *Server) createVideoTask(c *gin.Context) {
	var req createVideoTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}

	var taskType taskmanager.TaskType
	switch req.NodeType {
	case mediaflow.NodeVideoGenerator:
		taskType = taskmanager.TaskVideo
	case mediaflow.NodeVeoGenerator:
		taskType = taskmanager.TaskVeo
	default:
		c.JSON(http.StatusBadRequest, gin.H{"message": "unsupported node type: " + string(req.NodeType)})
		return
	}

	task, err := s.client.CreateVideoTask(c.Request.Context(), req.NodeType, &req.Request)
	if err != nil {
		s.logFailure(c, "video task creation failed", err)
		c.JSON(statusFor(err), createVideoTaskResponse{VideoResponse: mediaflow.NewVideoResponse(nil, nil, err)})
		return
	}

	resp := createVideoTaskResponse{VideoResponse: mediaflow.NewVideoResponse(task, nil, nil)}
	if req.CanvasID != "" && req.NodeID != "" {
		info, err := s.tasks.RegisterTask(taskType, task.TaskID, req.NodeID, req.CanvasID)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"message": err.Error(), "taskId": task.TaskID})
			return
		}
		resp.Task = &info
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) videoTaskStatus(c *gin.Context) {
	nodeType := mediaflow.NodeType(c.DefaultQuery("nodeType", string(mediaflow.NodeVideoGenerator)))
	task, err := s.client.GetVideoTaskStatus(c.Request.Context(), nodeType, c.Param("taskId"))
	if err != nil {
		c.JSON(statusFor(err), mediaflow.NewVideoResponse(nil, nil, err))
		return
	}
	c.JSON(http.StatusOK, mediaflow.NewVideoResponse(task, nil, nil))
}

func (s *Server) videoContent(c *gin.Context) {
	nodeType := mediaflow.NodeType(c.DefaultQuery("nodeType", string(mediaflow.NodeVideoGenerator)))
	taskID := c.Param("taskId")
	content, err := s.client.GetVideoContent(c.Request.Context(), nodeType, taskID)
	if err != nil {
		if !errors.Is(err, mediaflow.ErrTaskNotReady) {
			s.logFailure(c, "video content fetch failed", err)
		}
		c.JSON(statusFor(err), mediaflow.NewVideoResponse(nil, nil, err))
		return
	}
	c.JSON(http.StatusOK, mediaflow.NewVideoResponse(&mediaflow.VideoTask{TaskID: taskID, Stage: mediaflow.StageCompleted, Progress: 100}, content, nil))
}

func (s *Server) listTasks(c *gin.Context) {
	if canvasID := c.Query("canvasId"); canvasID != "" {
		c.JSON(http.StatusOK, s.tasks.GetTasksByCanvas(canvasID))
		return
	}
	c.JSON(http.StatusOK, s.tasks.GetAllTasks())
}

func (s *Server) cleanupTasks(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"removed": s.tasks.CleanupCompletedTasks()})
}

func (s *Server) getTask(c *gin.Context) {
	info, ok := s.tasks.GetTask(c.Param("nodeId"), c.Param("canvasId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "no task for this node"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) cancelTask(c *gin.Context) {
	info, ok := s.tasks.CancelTask(c.Param("nodeId"), c.Param("canvasId"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"message": "no task for this node"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) setActiveCanvas(c *gin.Context) {
	switcher, ok := s.live.(CanvasSwitcher)
	if !ok {
		c.JSON(http.StatusNotImplemented, gin.H{"message": "active canvas is not managed by this server"})
		return
	}

	var req setActiveCanvasRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
		return
	}
	if err := switcher.SetActiveCanvas(req.CanvasID); err != nil {
		s.logger.Error("failed to load canvas", zap.String("canvasId", req.CanvasID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"canvasId": req.CanvasID})
}

// logFailure logs provider failures. Validation and configuration errors
// are the caller's problem and are not logged.
func (s *Server) logFailure(c *gin.Context, msg string, err error) {
	switch mediaflow.ErrorKind(err) {
	case "validation", "config", "cancelled":
		return
	}
	s.logger.Error(msg,
		zap.String("requestId", c.GetString("requestId")),
		zap.Error(err))
}
