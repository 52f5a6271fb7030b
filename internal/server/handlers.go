package server

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/book-expert/logger"
	"github.com/champierre/saym/internal/gateway"
	"github.com/gin-gonic/gin"
)

type handlers struct {
	gateway *gateway.Gateway
	log     *logger.Logger
}

type setSpeakerRequest struct {
	SpeakerWAV string `json:"speaker_wav"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, h.gateway.Health())
}

func (h *handlers) docs(c *gin.Context) {
	c.JSON(http.StatusOK, h.gateway.Capabilities())
}

func (h *handlers) usage(c *gin.Context) {
	c.JSON(http.StatusOK, h.gateway.Usage())
}

func (h *handlers) setSpeaker(c *gin.Context) {
	var req setSpeakerRequest

	if !h.bindJSON(c, &req) {
		return
	}

	message, err := h.gateway.SetDefaultVoice(req.SpeakerWAV)
	if err != nil {
		h.fail(c, err)

		return
	}

	c.JSON(http.StatusOK, messageResponse{Message: message})
}

func (h *handlers) synthesize(c *gin.Context) {
	var req gateway.SynthesisRequest

	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.gateway.Synthesize(c.Request.Context(), req)
	if err != nil {
		h.fail(c, err)

		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%s", result.Filename))
	c.Data(http.StatusOK, result.ContentType, result.Audio)
}

// bindJSON decodes the body into dst. An empty body leaves dst zero so the
// gateway reports the missing field.
func (h *handlers) bindJSON(c *gin.Context, dst any) bool {
	err := c.ShouldBindJSON(dst)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}

	c.JSON(http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("Invalid JSON body: %v", err)})

	return false
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)

	if status >= http.StatusInternalServerError && h.log != nil {
		h.log.Error("%s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
	}

	c.JSON(status, errorResponse{Error: err.Error()})
}
