package handler

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-engine/internal/engine"
	"github.com/stemsi/exstem-engine/internal/middleware"
	"github.com/stemsi/exstem-engine/internal/response"
	"github.com/stemsi/exstem-engine/internal/validator"
	ws "github.com/stemsi/exstem-engine/internal/websocket"
)

const dispatchQueueSize = 32

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

// AttemptBackends hands out per-student exam backends.
type AttemptBackends interface {
	ForStudent(studentID int) engine.ExamBackend
	Abandon(ctx context.Context, studentID int, attemptID string) error
}

// StreamOptions tunes the session machine behind every stream.
type StreamOptions struct {
	AllowedOrigins []string
	TickInterval   time.Duration
	AutosaveDelay  time.Duration
	Scheduler      engine.Scheduler
}

// AttemptStreamHandler runs one exam session per WebSocket connection.
type AttemptStreamHandler struct {
	attempts AttemptBackends
	sink     engine.PersistenceSink
	opts     StreamOptions
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewAttemptStreamHandler creates a new AttemptStreamHandler.
func NewAttemptStreamHandler(attempts AttemptBackends, sink engine.PersistenceSink, opts StreamOptions, log zerolog.Logger) *AttemptStreamHandler {
	return &AttemptStreamHandler{
		attempts: attempts,
		sink:     sink,
		opts:     opts,
		log:      log.With().Str("component", "attempt_stream_handler").Logger(),
		upgrader: buildUpgrader(opts.AllowedOrigins),
	}
}

// Stream godoc
// WS /ws/v1/student/attempts/stream
// Upgrades to WebSocket and drives a session machine from client actions.
func (h *AttemptStreamHandler) Stream(c *gin.Context) {
	student, ok := middleware.StudentFrom(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	conn := ws.NewConn(raw)
	defer conn.Close()

	wsLog := middleware.Logger(c, h.log).With().
		Str("component", "attempt_stream_handler").
		Int("student_id", student.ID).
		Logger()
	wsLog.Info().Msg("Student connected")

	s := h.newStreamSession(context.WithoutCancel(c.Request.Context()), conn, student.ID, wsLog)
	defer s.close()

	for {
		var req ws.Request
		if err := conn.Read(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}
		s.receive(req)
	}
}

// streamSession binds one connection to one machine. Replies to confirm
// dialogs are handled on the read goroutine; every other action goes
// through a single dispatcher because it may block on a confirm.
type streamSession struct {
	h         *AttemptStreamHandler
	ctx       context.Context
	conn      *ws.Conn
	studentID int
	log       zerolog.Logger
	platform  *ws.Platform
	machine   *engine.Machine

	jobs chan ws.Request
	wg   sync.WaitGroup
	once sync.Once
}

func (h *AttemptStreamHandler) newStreamSession(ctx context.Context, conn *ws.Conn, studentID int, log zerolog.Logger) *streamSession {
	s := &streamSession{
		h:         h,
		ctx:       ctx,
		conn:      conn,
		studentID: studentID,
		log:       log,
		platform:  ws.NewPlatform(conn, log),
		jobs:      make(chan ws.Request, dispatchQueueSize),
	}

	opts := []engine.Option{
		engine.WithLogger(log),
		engine.WithObserver(s.onState),
		engine.WithTickObserver(s.onTick),
	}
	if h.opts.Scheduler != nil {
		opts = append(opts, engine.WithScheduler(h.opts.Scheduler))
	}
	if h.opts.TickInterval > 0 {
		opts = append(opts, engine.WithTickInterval(h.opts.TickInterval))
	}
	if h.opts.AutosaveDelay > 0 {
		opts = append(opts, engine.WithAutosaveDelay(h.opts.AutosaveDelay))
	}
	s.machine = engine.NewMachine(h.attempts.ForStudent(studentID), h.sink, s.platform, opts...)

	s.wg.Add(1)
	go s.dispatch()
	return s
}

func (s *streamSession) receive(req ws.Request) {
	switch req.Action {
	case ws.ActionConfirmReply:
		if !s.platform.Reply(req.ID, req.OK) {
			s.log.Debug().Str("id", req.ID).Msg("Reply to unknown confirm")
		}
	case ws.ActionPing:
		s.conn.Send(ws.EventPong, nil)
	default:
		select {
		case s.jobs <- req:
		default:
			s.log.Warn().Str("action", string(req.Action)).Msg("Dispatch queue full, dropping action")
			s.conn.Error(string(response.ErrRateLimitExceeded), response.GetMessage(response.ErrRateLimitExceeded))
		}
	}
}

func (s *streamSession) dispatch() {
	defer s.wg.Done()
	for req := range s.jobs {
		if err := s.handle(req); err != nil {
			s.fail(req.Action, err)
		}
	}
}

func (s *streamSession) handle(req ws.Request) error {
	m := s.machine
	switch req.Action {
	case ws.ActionStart:
		if req.Config == nil {
			return s.sendCode(response.ErrInvalidPayload)
		}
		if fields := validator.Validate(req.Config); fields != nil {
			return s.sendCode(response.ErrInvalidExamConfig)
		}
		return m.Start(s.ctx, *req.Config)
	case ws.ActionAnswer:
		return m.SubmitAnswer(req.QID, req.Answer)
	case ws.ActionFlag:
		_, err := m.ToggleFlag(req.QID)
		return err
	case ws.ActionNavigate:
		if req.Index == nil {
			return s.sendCode(response.ErrInvalidPayload)
		}
		return m.Navigate(*req.Index)
	case ws.ActionNextUnanswered:
		idx, found := m.NextUnanswered()
		if found {
			if err := m.Navigate(idx); err != nil {
				return err
			}
		}
		return s.conn.Send(ws.EventCursor, ws.CursorData{Index: idx, Found: found})
	case ws.ActionOpenReview:
		return m.OpenReview()
	case ws.ActionCloseReview:
		return m.CloseReview()
	case ws.ActionSubmit:
		_, err := m.RequestSubmit()
		return err
	case ws.ActionExit:
		_, err := m.RequestExit()
		return err
	case ws.ActionUnload:
		if prompt, blocked := s.platform.BeforeUnload(); blocked {
			return s.conn.Send(ws.EventUnloadWarning, ws.UnloadWarningData{Message: prompt})
		}
		return nil
	case ws.ActionLeave:
		allowed := s.platform.RouteChange(req.To)
		return s.conn.Send(ws.EventLeave, ws.LeaveData{To: req.To, Allowed: allowed})
	default:
		s.log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
		return s.sendCode(response.ErrUnknownAction)
	}
}

func (s *streamSession) sendCode(code response.ErrCode) error {
	s.conn.Error(string(code), response.GetMessage(code))
	return nil
}

func (s *streamSession) fail(action ws.Action, err error) {
	status, code := response.Resolve(err)
	ev := s.log.Warn()
	if status >= http.StatusInternalServerError {
		ev = s.log.Error()
	}
	ev.Err(err).Str("action", string(action)).Msg("Action failed")
	s.conn.Error(string(code), response.GetMessage(code))
}

func (s *streamSession) onState(st engine.State) {
	if st.Status == engine.StatusAborted {
		if err := s.h.attempts.Abandon(s.ctx, s.studentID, st.AttemptID); err != nil {
			s.log.Error().Err(err).Str("attempt_id", st.AttemptID).Msg("Failed to record abandoned attempt")
		}
	}

	if err := s.conn.Send(ws.EventState, st); err != nil {
		s.log.Debug().Err(err).Msg("State push failed")
		return
	}
	if st.Status == engine.StatusCompleted && st.Result != nil {
		s.conn.Send(ws.EventResult, st.Result)
	}
}

func (s *streamSession) onTick(remaining int) {
	s.conn.Send(ws.EventTick, ws.TickData{RemainingSeconds: remaining})
}

// close releases blocked confirms, drains the dispatcher, then closes the
// machine. An in-flight submission is allowed to settle.
func (s *streamSession) close() {
	s.once.Do(func() {
		s.platform.Close()
		close(s.jobs)
		s.wg.Wait()
		s.machine.Close()
		s.machine.Wait()
		s.log.Info().Msg("Student disconnected")
	})
}
