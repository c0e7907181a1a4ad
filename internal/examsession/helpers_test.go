package examsession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

type fakeBackend struct {
	mu sync.Mutex

	payload *model.ExamSessionPayload
	loadErr error

	snap        *model.SessionSnapshot
	progressErr error

	saved     []model.SessionSnapshot
	saveErr   error
	saveDelay time.Duration
	cleared   int

	submits    []model.SubmissionPayload
	submitErrs []error
	result     *model.SubmissionResult
}

func (b *fakeBackend) LoadExamSession(_ context.Context, _ uuid.UUID) (*model.ExamSessionPayload, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.loadErr != nil {
		return nil, b.loadErr
	}
	return b.payload, nil
}

func (b *fakeBackend) LoadProgress(_ context.Context, _ uuid.UUID) (*model.SessionSnapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.progressErr != nil {
		return nil, b.progressErr
	}
	if b.snap == nil {
		return nil, ErrNoSnapshot
	}
	return b.snap, nil
}

func (b *fakeBackend) SaveProgress(_ context.Context, _ uuid.UUID, snap model.SessionSnapshot) error {
	b.mu.Lock()
	delay := b.saveDelay
	b.mu.Unlock()
	time.Sleep(delay)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.saved = append(b.saved, snap)
	return b.saveErr
}

func (b *fakeBackend) ClearProgress(_ context.Context, _ uuid.UUID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.cleared++
	return nil
}

func (b *fakeBackend) Submit(_ context.Context, p model.SubmissionPayload) (*model.SubmissionResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.submits = append(b.submits, p)
	if len(b.submitErrs) > 0 {
		err := b.submitErrs[0]
		b.submitErrs = b.submitErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if b.result != nil {
		return b.result, nil
	}
	return &model.SubmissionResult{Success: true, Message: "ok"}, nil
}

func (b *fakeBackend) savedCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.saved)
}

func (b *fakeBackend) submitCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.submits)
}

type fakeSurface struct {
	mu sync.Mutex

	views    []View
	alerts   []Alert
	overlays []Overlay
	commands []string
	confirms []Summary
	notices  []Notice
	results  []model.SubmissionResult
	exits    []Exit
}

func (s *fakeSurface) record(cmd string) {
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
}

func (s *fakeSurface) RequestFullscreen() { s.record("request_fullscreen") }
func (s *fakeSurface) ExitFullscreen()    { s.record("exit_fullscreen") }
func (s *fakeSurface) RequestCamera()     { s.record("request_camera") }
func (s *fakeSurface) ReleaseCamera()     { s.record("release_camera") }

func (s *fakeSurface) Render(v View) {
	s.mu.Lock()
	s.views = append(s.views, v)
	s.mu.Unlock()
}

func (s *fakeSurface) ShowAlert(a Alert) {
	s.mu.Lock()
	s.alerts = append(s.alerts, a)
	s.mu.Unlock()
}

func (s *fakeSurface) SetOverlay(o Overlay) {
	s.mu.Lock()
	s.overlays = append(s.overlays, o)
	s.mu.Unlock()
}

func (s *fakeSurface) ConfirmSubmit(sum Summary) {
	s.mu.Lock()
	s.confirms = append(s.confirms, sum)
	s.mu.Unlock()
}

func (s *fakeSurface) ShowError(n Notice) {
	s.mu.Lock()
	s.notices = append(s.notices, n)
	s.mu.Unlock()
}

func (s *fakeSurface) Submitted(r model.SubmissionResult) {
	s.mu.Lock()
	s.results = append(s.results, r)
	s.mu.Unlock()
}

func (s *fakeSurface) NavigateAway(e Exit) {
	s.mu.Lock()
	s.exits = append(s.exits, e)
	s.mu.Unlock()
}

func (s *fakeSurface) count(cmd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.commands {
		if c == cmd {
			n++
		}
	}
	return n
}

type fakeProctor struct {
	mu         sync.Mutex
	connected  bool
	closed     int
	events     []model.ProctorEvent
	publishErr error
}

func (p *fakeProctor) Connect(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.connected = true
	return nil
}

func (p *fakeProctor) Publish(_ context.Context, ev model.ProctorEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.publishErr != nil {
		return p.publishErr
	}
	p.events = append(p.events, ev)
	return nil
}

func (p *fakeProctor) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

// queue holds I/O work until run is called.
type queue struct {
	works []func() func()
}

func (q *queue) exec(work func() func()) { q.works = append(q.works, work) }

func (q *queue) run() {
	for len(q.works) > 0 {
		w := q.works[0]
		q.works = q.works[1:]
		if cont := w(); cont != nil {
			cont()
		}
	}
}

func choiceQuestion(opts ...string) model.Question {
	if len(opts) == 0 {
		opts = []string{"A", "B", "C", "D"}
	}
	return model.Question{ID: uuid.New(), Type: model.QuestionTypeMultipleChoice, Text: "Pick one", Options: opts, Points: 1}
}

func examPayload(duration int, policy model.Policy, questions ...model.Question) *model.ExamSessionPayload {
	order := make([]uuid.UUID, len(questions))
	for i, q := range questions {
		order[i] = q.ID
	}
	return &model.ExamSessionPayload{
		ExamDefinition: model.ExamDefinition{
			ID:              uuid.New(),
			Title:           "Physics midterm",
			DurationSeconds: duration,
			Questions:       questions,
			QuestionOrder:   order,
			Policy:          policy,
		},
	}
}

type harness struct {
	c       *Controller
	backend *fakeBackend
	surface *fakeSurface
	proctor *fakeProctor
	clock   *fakeClock
	payload *model.ExamSessionPayload
	exec    Executor
}

func testSettings() Settings {
	s := DefaultSettings()
	s.AutoSubmitRetryDelay = 0
	return s
}

func newHarness(t *testing.T, payload *model.ExamSessionPayload, opts ...func(*harness, *Settings)) *harness {
	t.Helper()
	h := &harness{
		backend: &fakeBackend{payload: payload},
		surface: &fakeSurface{},
		proctor: &fakeProctor{},
		clock:   newFakeClock(),
		payload: payload,
		exec:    Inline,
	}
	settings := testSettings()
	for _, opt := range opts {
		opt(h, &settings)
	}
	h.c = New(payload.ID, 7, h.backend, h.surface, h.proctor, settings,
		WithClock(h.clock.Now),
		WithExecutor(h.exec),
	)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.Start(context.Background()))
}

func (h *harness) tick(n int) {
	for i := 0; i < n; i++ {
		h.clock.Advance(time.Second)
		h.c.Tick()
	}
}

func (h *harness) qid(i int) uuid.UUID {
	return h.payload.QuestionOrder[i]
}

var errNetwork = errors.New("network unreachable")
