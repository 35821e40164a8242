package handler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"novel-fork/internal/models"
	"novel-fork/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Время, разрешенное для записи сообщения клиенту.
	writeWait = 10 * time.Second
	// Сколько ждём первое сообщение с параметрами генерации.
	startWait = 30 * time.Second
	// Максимальный размер сообщения от клиента.
	maxMessageSize = 4096
)

// Действия клиента в stream-choose.
const (
	actionChoose  = "choose"
	actionPreview = "preview"
	actionCancel  = "cancel"
)

// Типы сообщений сервера в stream-choose.
const (
	messageChunk     = "chunk"
	messageCommit    = "commit"
	messagePreview   = "preview"
	messageError     = "error"
	messageCancelled = "cancelled"
)

// streamRequest - сообщение клиента. Первое сообщение выбирает режим:
// choose (коммит по варианту точки ветвления) или preview (свободное направление).
// Позже клиент может прислать cancel.
type streamRequest struct {
	Action        string `json:"action"`
	BranchPointID *int64 `json:"branch_point_id,omitempty"`
	OptionID      *int64 `json:"option_id,omitempty"`
	Title         string `json:"title,omitempty"`
	Direction     string `json:"direction,omitempty"`
}

type streamMessage struct {
	Type    string                   `json:"type"`
	Content string                   `json:"content,omitempty"`
	Commit  *models.Commit           `json:"commit,omitempty"`
	Preview *models.GeneratedPreview `json:"preview,omitempty"`
	Error   *models.ErrorResponse    `json:"error,omitempty"`
}

// streamChoose стримит генерацию главы по WebSocket. Закрытие соединения или
// сообщение cancel отменяет генерацию; частичный текст никуда не сохраняется.
func (h *Handler) streamChoose(c *gin.Context) {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return
	}
	forkID, ok := parseIDParam(c, "forkId")
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrader уже ответил клиенту
		h.logger.Warn("Failed to upgrade connection", zap.Int64("forkID", forkID), zap.Error(err))
		return
	}
	defer conn.Close()

	log := h.logger.With(zap.Int64("forkID", forkID), zap.Stringer("userID", userID))
	conn.SetReadLimit(maxMessageSize)

	var start streamRequest
	_ = conn.SetReadDeadline(time.Now().Add(startWait))
	if err := conn.ReadJSON(&start); err != nil {
		log.Debug("No start message received", zap.Error(err))
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	cancelled := make(chan struct{})
	go func() {
		defer cancel()
		for {
			var msg streamRequest
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Action == actionCancel {
				log.Info("Generation cancelled by client")
				close(cancelled)
				return
			}
		}
	}()

	onChunk := func(chunk string) error {
		return writeMessage(conn, streamMessage{Type: messageChunk, Content: chunk})
	}

	var result streamMessage
	switch start.Action {
	case actionChoose:
		var commit *models.Commit
		commit, err = h.forks.GenerateAndAppendCommit(ctx, service.GenerateCommitInput{
			ForkID:        forkID,
			RequesterID:   userID,
			BranchPointID: start.BranchPointID,
			OptionID:      start.OptionID,
			Title:         start.Title,
		}, onChunk)
		result = streamMessage{Type: messageCommit, Commit: commit}
	case actionPreview:
		var preview *models.GeneratedPreview
		preview, err = h.previews.StreamGeneratePreview(ctx, forkID, userID, start.Direction, onChunk)
		result = streamMessage{Type: messagePreview, Preview: preview}
	default:
		_, resp := errorResponse(models.ErrInvalidArgument)
		resp.Message = "action must be 'choose' or 'preview'"
		_ = writeMessage(conn, streamMessage{Type: messageError, Error: &resp})
		closeStream(conn, websocket.CloseUnsupportedData)
		return
	}

	if err != nil {
		select {
		case <-cancelled:
			_ = writeMessage(conn, streamMessage{Type: messageCancelled})
			closeStream(conn, websocket.CloseNormalClosure)
			return
		default:
		}
		if errors.Is(err, context.Canceled) {
			log.Info("Stream aborted, client disconnected")
			return
		}
		status, resp := errorResponse(err)
		if status >= 500 {
			log.Error("Stream generation failed", zap.String("action", start.Action), zap.Error(err))
		}
		_ = writeMessage(conn, streamMessage{Type: messageError, Error: &resp})
		closeStream(conn, websocket.CloseNormalClosure)
		return
	}

	if err := writeMessage(conn, result); err != nil {
		log.Warn("Failed to deliver stream result", zap.Error(err))
		return
	}
	closeStream(conn, websocket.CloseNormalClosure)
}

func writeMessage(conn *websocket.Conn, msg streamMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteMessage(websocket.TextMessage, payload)
}

func closeStream(conn *websocket.Conn, code int) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, ""), time.Now().Add(writeWait))
}
