package handler

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/examsession"
	"github.com/stemsi/exstem-session/internal/model"
	ws "github.com/stemsi/exstem-session/internal/websocket"
)

// wsSurface renders an attempt onto a WebSocket connection. Its methods are
// called from the controller loop and never block: events go to a buffered
// outbox drained by the connection's writer goroutine.
type wsSurface struct {
	out    chan interface{}
	closed chan struct{}
	once   sync.Once
	log    zerolog.Logger
}

func newWSSurface(buffer int, log zerolog.Logger) *wsSurface {
	return &wsSurface{
		out:    make(chan interface{}, buffer),
		closed: make(chan struct{}),
		log:    log,
	}
}

func (s *wsSurface) send(v interface{}) {
	select {
	case <-s.closed:
		return
	default:
	}
	select {
	case s.out <- v:
	default:
		s.log.Warn().Msg("Outbound buffer full, dropping event")
	}
}

// close stops accepting events. Already queued events stay in the outbox.
func (s *wsSurface) close() {
	s.once.Do(func() { close(s.closed) })
}

func (s *wsSurface) RequestFullscreen() {
	s.send(ws.CommandEvent{Event: ws.EventCommand, Command: ws.CommandRequestFullscreen})
}

func (s *wsSurface) ExitFullscreen() {
	s.send(ws.CommandEvent{Event: ws.EventCommand, Command: ws.CommandExitFullscreen})
}

func (s *wsSurface) RequestCamera() {
	s.send(ws.CommandEvent{Event: ws.EventCommand, Command: ws.CommandRequestCamera})
}

func (s *wsSurface) ReleaseCamera() {
	s.send(ws.CommandEvent{Event: ws.EventCommand, Command: ws.CommandReleaseCamera})
}

func (s *wsSurface) Render(v examsession.View) {
	s.send(ws.StateEvent{Event: ws.EventState, View: v})
}

func (s *wsSurface) ShowAlert(a examsession.Alert) {
	s.send(ws.AlertEvent{Event: ws.EventAlert, Alert: a})
}

func (s *wsSurface) SetOverlay(o examsession.Overlay) {
	s.send(ws.OverlayEvent{Event: ws.EventOverlay, Overlay: o})
}

func (s *wsSurface) ConfirmSubmit(sum examsession.Summary) {
	s.send(ws.ConfirmEvent{Event: ws.EventConfirm, Summary: sum})
}

func (s *wsSurface) ShowError(n examsession.Notice) {
	s.send(ws.ErrorEvent{Event: ws.EventError, Error: n.Message, Code: n.Code, Action: n.Action})
}

func (s *wsSurface) Submitted(r model.SubmissionResult) {
	s.send(ws.SubmittedEvent{Event: ws.EventSubmitted, Result: r})
}

func (s *wsSurface) NavigateAway(e examsession.Exit) {
	s.send(ws.NavigateAwayEvent{Event: ws.EventNavigateAway, Exit: e})
}

// rejected reports a request the controller refused.
func (s *wsSurface) rejected(err error) {
	s.send(ws.ErrorEvent{Event: ws.EventError, Error: err.Error()})
}
