package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/examsession"
	"github.com/stemsi/exstem-session/internal/middleware"
	"github.com/stemsi/exstem-session/internal/service"
	"github.com/stemsi/exstem-session/internal/validator"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

const (
	outboxSize   = 256
	pingInterval = 30 * time.Second
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler hosts one exam session controller per WebSocket connection.
type WSHandler struct {
	rdb            *redis.Client
	sessionService *service.ExamSessionService
	settings       examsession.Settings
	log            zerolog.Logger
	upgrader       websocket.Upgrader

	active sync.WaitGroup
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(rdb *redis.Client, sessionService *service.ExamSessionService, settings examsession.Settings, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		rdb:            rdb,
		sessionService: sessionService,
		settings:       settings,
		log:            log.With().Str("component", "ws_handler").Logger(),
		upgrader:       buildUpgrader(allowedOrigins),
	}
}

// ExamSessionStream godoc
// WS /ws/v1/student/exams/:exam_id/session
// Runs the student's attempt. The connection carries the student's actions and
// environment signals in, and the rendered session state and platform commands out.
func (h *WSHandler) ExamSessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	examID, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid exam ID"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	h.active.Add(1)
	defer h.active.Done()

	studentID := claims.UserID
	wsLog := h.log.With().
		Int("student_id", studentID).
		Str("exam_id", examID.String()).
		Logger()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	surface := newWSSurface(outboxSize, wsLog)
	proctor := service.NewProctorChannel(h.rdb, examID, studentID, h.log)
	ctrl := examsession.New(
		examID, studentID,
		h.sessionService.BackendFor(studentID),
		surface, proctor, h.settings,
		examsession.WithLogger(h.log),
	)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, surface, ctrl.Done(), wsLog)
		cancel()
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		ctrl.Run(ctx)
	}()

	ctrl.Dispatch(func(ct *examsession.Controller) {
		if err := ct.Start(ctx); err != nil {
			surface.rejected(err)
		}
	})

	wsLog.Info().Msg("Student connected")
	h.readLoop(ctx, conn, ctrl, surface, wsLog)

	cancel()
	<-runDone
	surface.close()
	<-writerDone
	wsLog.Info().Str("phase", string(ctrl.Phase())).Msg("Student disconnected")
}

// Drain waits until every hosted session has been torn down, or ctx expires.
// Sessions end when the server's base context is cancelled.
func (h *WSHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *WSHandler) readLoop(ctx context.Context, conn *websocket.Conn, ctrl *examsession.Controller, surface *wsSurface, wsLog zerolog.Logger) {
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(ws.PongWait))
	})

	for ctx.Err() == nil {
		env, raw, err := ws.ReadEnvelope(conn)
		if err != nil {
			if raw != nil {
				surface.rejected(err)
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		if !h.dispatch(ctrl, surface, env.Action, raw) {
			wsLog.Warn().Str("action", string(env.Action)).Msg("Unknown action")
			surface.rejected(errUnknownAction(env.Action))
		}
	}
}

func errUnknownAction(a ws.Action) error {
	return fmt.Errorf("unknown action: %s", a)
}

// dispatch routes one request to the controller loop. It reports false for unknown actions.
func (h *WSHandler) dispatch(ctrl *examsession.Controller, surface *wsSurface, action ws.Action, raw []byte) bool {
	run := func(fn func(*examsession.Controller) error) {
		ctrl.Dispatch(func(ct *examsession.Controller) {
			if err := fn(ct); err != nil {
				surface.rejected(err)
			}
		})
	}

	switch action {
	case ws.ActionPing:
		surface.send(ws.PongEvent{Event: ws.EventPong})

	case ws.ActionAnswer:
		req, ok := decodeRequest[ws.AnswerRequest](surface, raw)
		if !ok {
			return true
		}
		qid := uuid.MustParse(req.QuestionID)
		run(func(ct *examsession.Controller) error { return ct.AnswerQuestion(qid, req.Answer) })

	case ws.ActionClear, ws.ActionToggleReview:
		req, ok := decodeRequest[ws.QuestionRequest](surface, raw)
		if !ok {
			return true
		}
		qid := uuid.MustParse(req.QuestionID)
		if action == ws.ActionClear {
			run(func(ct *examsession.Controller) error { return ct.ClearAnswer(qid) })
		} else {
			run(func(ct *examsession.Controller) error { return ct.ToggleReview(qid) })
		}

	case ws.ActionNavigate:
		req, ok := decodeRequest[ws.NavigateRequest](surface, raw)
		if !ok {
			return true
		}
		run(func(ct *examsession.Controller) error {
			if req.Index != nil {
				return ct.Navigate(*req.Index)
			}
			return ct.NavigateBy(req.Delta)
		})

	case ws.ActionRequestSubmit:
		run(func(ct *examsession.Controller) error {
			_, err := ct.RequestSubmit()
			return err
		})

	case ws.ActionConfirmSubmit:
		run(func(ct *examsession.Controller) error { return ct.ConfirmSubmit() })

	case ws.ActionCancelSubmit:
		run(func(ct *examsession.Controller) error { return ct.CancelSubmit() })

	case ws.ActionSignal:
		req, ok := decodeRequest[ws.SignalRequest](surface, raw)
		if !ok {
			return true
		}
		sig := examsession.Signal{
			Kind:        req.Kind,
			At:          time.Now(),
			Fullscreen:  req.Fullscreen,
			OuterWidth:  req.OuterWidth,
			InnerWidth:  req.InnerWidth,
			OuterHeight: req.OuterHeight,
			InnerHeight: req.InnerHeight,
			Faces:       req.Faces,
		}
		run(func(ct *examsession.Controller) error {
			v, err := ct.HandleSignal(sig)
			if err != nil {
				return err
			}
			ev := ws.VerdictEvent{Event: ws.EventVerdict, Flagged: v.Flagged, Prevent: v.Prevent}
			if v.Flagged {
				activity := v.Activity
				ev.Activity = &activity
			}
			surface.send(ev)
			return nil
		})

	case ws.ActionPermission:
		req, ok := decodeRequest[ws.PermissionRequest](surface, raw)
		if !ok {
			return true
		}
		run(func(ct *examsession.Controller) error { return ct.GrantPermission(req.Kind, req.Granted) })

	default:
		return false
	}
	return true
}

// decodeRequest decodes and validates raw as T, reporting failures to the client.
func decodeRequest[T any](surface *wsSurface, raw []byte) (*T, bool) {
	req, err := ws.DecodeAs[T](raw)
	if err != nil {
		surface.rejected(err)
		return nil, false
	}
	if fields := validator.Struct(req); fields != nil {
		surface.send(ws.ErrorEvent{Event: ws.EventError, Error: "invalid request", Code: "VALIDATION_ERROR", Fields: fields})
		return nil, false
	}
	return req, true
}

// writeLoop drains the surface outbox onto the connection and keeps it alive
// with pings. Once the attempt is torn down it flushes what is left and closes
// the connection, which ends the read loop.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, surface *wsSurface, finished <-chan struct{}, wsLog zerolog.Logger) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	flush := func() {
		for {
			select {
			case v := <-surface.out:
				if err := ws.WriteTyped(conn, v); err != nil {
					return
				}
			default:
				return
			}
		}
	}

	for {
		select {
		case v := <-surface.out:
			if err := ws.WriteTyped(conn, v); err != nil {
				wsLog.Debug().Err(err).Msg("Write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		case <-finished:
			flush()
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"),
				time.Now().Add(time.Second))
			conn.Close()
			return
		case <-ctx.Done():
			flush()
			conn.Close()
			return
		}
	}
}
