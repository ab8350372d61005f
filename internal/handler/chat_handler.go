package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/jauapai/jauap/internal/model"
	"github.com/jauapai/jauap/internal/pkg/errcode"
	"github.com/jauapai/jauap/internal/pkg/response"
	"github.com/jauapai/jauap/internal/service"
)

type ChatHandler struct {
	rag *service.RAGService
}

func NewChatHandler(rag *service.RAGService) *ChatHandler {
	return &ChatHandler{rag: rag}
}

type chatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatFilters struct {
	Discipline string `json:"discipline"`
	Grade      string `json:"grade"`
	Publisher  string `json:"publisher"`
}

type chatRequest struct {
	Question string      `json:"question"`
	History  []chatTurn  `json:"history"`
	Filters  chatFilters `json:"filters"`
}

func (r *chatRequest) toModel() ([]model.Turn, string, model.Filter) {
	history := make([]model.Turn, 0, len(r.History))
	for _, turn := range r.History {
		role := model.RoleAssistant
		if turn.Role == model.RoleUser {
			role = model.RoleUser
		}
		history = append(history, model.Turn{Role: role, Content: turn.Content})
	}
	filter := model.Filter{
		Discipline: strings.TrimSpace(r.Filters.Discipline),
		Grade:      strings.TrimSpace(r.Filters.Grade),
		Publisher:  strings.TrimSpace(r.Filters.Publisher),
	}
	return history, strings.TrimSpace(r.Question), filter
}

// Stream answers a question over Server-Sent Events: one data event per
// generated fragment, then a final done event carrying the citations.
func (h *ChatHandler) Stream(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	history, question, filter := req.toModel()
	if question == "" {
		response.Error(c, errcode.ErrInvalid, "question is required")
		return
	}
	ctx := c.Request.Context()
	stream, citations, err := h.rag.StreamChat(ctx, history, question, filter)
	if err != nil {
		logutil.GetLogger(ctx).Error("failed to open chat stream", zap.Error(err))
		response.Error(c, errcode.ErrAIUnavailable, "generation unavailable")
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	flusher, _ := c.Writer.(http.Flusher)

	for fragment := range stream {
		c.SSEvent(string(fragment.Kind), fragment.Text)
		if flusher != nil {
			flusher.Flush()
		}
	}
	c.SSEvent("done", gin.H{"citations": citations})
	if flusher != nil {
		flusher.Flush()
	}
}

// Chat is the non-streaming variant for clients that cannot consume SSE.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	history, question, filter := req.toModel()
	if question == "" {
		response.Error(c, errcode.ErrInvalid, "question is required")
		return
	}
	ctx := c.Request.Context()
	answer, citations, err := h.rag.Chat(ctx, history, question, filter)
	if err != nil {
		logutil.GetLogger(ctx).Error("chat failed", zap.Error(err))
		response.Error(c, errcode.ErrAIUnavailable, "generation unavailable")
		return
	}
	response.Success(c, gin.H{
		"answer":    answer,
		"citations": citations,
	})
}
