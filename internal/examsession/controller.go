package examsession

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-session/internal/model"
)

// Controller drives one student's attempt at one exam.
//
// Every exported method must be called from the goroutine running Run, or
// through Dispatch. Tests may call them directly together with an inline
// Executor.
type Controller struct {
	examID    uuid.UUID
	studentID int
	backend   Backend
	proctor   ProctorChannel
	surface   Surface
	settings  Settings
	now       func() time.Time
	exec      Executor
	log       zerolog.Logger
	ctx       context.Context

	phase     Phase
	loading   bool
	def       *model.ExamDefinition
	order     []uuid.UUID
	questions map[uuid.UUID]model.Question
	answers   map[uuid.UUID]model.AnswerValue
	runtime   map[uuid.UUID]*model.QuestionRuntimeState
	index     int
	startedAt time.Time

	clock   *Countdown
	qtimer  *QuestionTimer
	monitor *Monitor
	persist *Persistence

	pending         map[PermissionKind]bool
	cameraRequested bool
	fsRequested     bool
	fullscreen      bool
	blocked         bool

	confirmPending bool
	submitting     bool
	submitted      bool
	undelivered    bool

	tornDown bool
	io       sync.WaitGroup
	inbox    chan func()
	quit     chan struct{}
	finished chan struct{}
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithExecutor replaces the goroutine-per-call I/O executor.
func WithExecutor(e Executor) Option {
	return func(c *Controller) { c.exec = e }
}

// WithLogger sets the logger; exam and student ids are added to it.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Controller) { c.log = l }
}

// New creates a controller in the Loading phase. proctor may be nil.
func New(examID uuid.UUID, studentID int, backend Backend, surface Surface, proctor ProctorChannel, settings Settings, opts ...Option) *Controller {
	c := &Controller{
		examID:    examID,
		studentID: studentID,
		backend:   backend,
		proctor:   proctor,
		surface:   surface,
		settings:  settings,
		now:       time.Now,
		log:       zerolog.Nop(),
		ctx:       context.Background(),
		phase:     PhaseLoading,
		answers:   make(map[uuid.UUID]model.AnswerValue),
		runtime:   make(map[uuid.UUID]*model.QuestionRuntimeState),
		pending:   make(map[PermissionKind]bool),
		persist:   NewPersistence(settings.SnapshotEvery),
		inbox:     make(chan func(), 64),
		quit:      make(chan struct{}),
		finished:  make(chan struct{}),
	}
	if c.settings.IOTimeout <= 0 {
		c.settings.IOTimeout = DefaultSettings().IOTimeout
	}
	c.exec = c.spawn
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With().
		Str("component", "exam_session").
		Str("exam_id", examID.String()).
		Int("student_id", studentID).
		Logger()
	return c
}

// Start loads the exam and any saved progress. ctx bounds the attempt's I/O.
func (c *Controller) Start(ctx context.Context) error {
	if c.phase != PhaseLoading || c.loading {
		return ErrInvalidTransition
	}
	c.ctx = ctx
	c.loading = true

	c.exec(func() func() {
		ioCtx, cancel := context.WithTimeout(ctx, c.settings.IOTimeout)
		defer cancel()

		payload, err := c.backend.LoadExamSession(ioCtx, c.examID)
		if err != nil {
			return func() { c.loadFailed(err) }
		}
		snap, err := c.backend.LoadProgress(ioCtx, c.examID)
		if err != nil {
			if !errors.Is(err, ErrNoSnapshot) {
				c.log.Debug().Err(err).Msg("Progress restore failed, starting fresh")
			}
			snap = nil
		}
		return func() { c.loaded(payload, snap) }
	})
	return nil
}

func (c *Controller) loadFailed(err error) {
	c.log.Warn().Err(err).Msg("Failed to load exam session")
	c.abort(ExitLoadFailed, "EXAM_UNAVAILABLE", "The exam could not be loaded.")
}

func (c *Controller) loaded(p *model.ExamSessionPayload, snap *model.SessionSnapshot) {
	if c.phase != PhaseLoading {
		return
	}
	if err := validateDefinition(p); err != nil {
		c.loadFailed(err)
		return
	}

	def := p.ExamDefinition
	c.def = &def
	c.order = def.OrderedIDs()
	c.questions = make(map[uuid.UUID]model.Question, len(def.Questions))
	for _, q := range def.Questions {
		c.questions[q.ID] = q
	}
	for _, id := range c.order {
		c.runtime[id] = &model.QuestionRuntimeState{}
	}

	r := resolveResume(p, snap, c.now())
	c.answers = r.answers
	c.index = r.index
	c.startedAt = r.startedAt
	for _, id := range r.locked {
		if st, ok := c.runtime[id]; ok {
			st.Locked = true
		}
	}
	if r.restored {
		c.log.Info().Int("time_left", r.timeLeft).Int("index", r.index).Msg("Resuming attempt")
	}

	c.clock = NewCountdown(r.timeLeft)
	c.qtimer = NewQuestionTimer(def.Policy.TimePerQuestion, c.settings.DefaultQuestionSeconds)
	c.monitor = NewMonitor(def.Policy, c.settings.Thresholds)

	if !def.Policy.RequireWebcam && !def.Policy.RequireFullscreen {
		c.begin()
		return
	}

	if !c.transition(PhasePermissionsPending) {
		return
	}
	if def.Policy.RequireWebcam {
		c.pending[PermissionCamera] = true
		c.cameraRequested = true
		c.surface.RequestCamera()
	}
	if def.Policy.RequireFullscreen {
		c.pending[PermissionFullscreen] = true
		c.fsRequested = true
		c.surface.RequestFullscreen()
	}
	c.render()
}

func validateDefinition(p *model.ExamSessionPayload) error {
	if p == nil {
		return ErrInvalidExam
	}
	if p.DurationSeconds <= 0 {
		return fmt.Errorf("%w: non-positive duration", ErrInvalidExam)
	}
	order := p.OrderedIDs()
	if len(order) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidExam)
	}
	seen := make(map[uuid.UUID]struct{}, len(order))
	for _, id := range order {
		if _, ok := p.Question(id); !ok {
			return fmt.Errorf("%w: unknown question %s in order", ErrInvalidExam, id)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: question %s repeated", ErrInvalidExam, id)
		}
		seen[id] = struct{}{}
	}
	return nil
}

// GrantPermission reports the student's answer to a camera or fullscreen request.
func (c *Controller) GrantPermission(kind PermissionKind, granted bool) error {
	if c.phase != PhasePermissionsPending {
		return ErrNotInProgress
	}
	if !c.pending[kind] {
		return ErrUnexpectedPermission
	}
	delete(c.pending, kind)

	switch kind {
	case PermissionCamera:
		if !granted {
			c.log.Info().Msg("Camera access denied")
			c.abort(ExitCameraDenied, "CAMERA_REQUIRED", "Camera access is required for this exam.")
			return nil
		}
	case PermissionFullscreen:
		c.fullscreen = granted
	}

	if len(c.pending) == 0 {
		c.begin()
	}
	return nil
}

func (c *Controller) begin() {
	if !c.transition(PhaseInProgress) {
		return
	}
	c.monitor.Activate()
	c.clock.Start()
	c.enterQuestion(c.now(), true)

	if c.def.Policy.RequireFullscreen && !c.fullscreen {
		c.block()
	}

	if c.proctor != nil {
		ctx := c.ctx
		c.exec(func() func() {
			if err := c.proctor.Connect(ctx); err != nil {
				c.log.Warn().Err(err).Msg("Proctor channel unavailable")
			}
			return nil
		})
	}
	c.render()
}

// Tick advances the attempt by one second.
func (c *Controller) Tick() {
	if c.phase != PhaseInProgress {
		return
	}
	c.monitor.Tick()

	if c.clock.Tick() {
		c.log.Info().Msg("Exam time is up")
		c.beginSubmit(model.TriggerTimeout)
		return
	}

	if e, ok := c.qtimer.Tick(); ok {
		c.questionExpired(e)
		if c.phase != PhaseInProgress {
			return
		}
	}

	if c.persist.Due() {
		c.saveProgress(c.ctx)
	}
	c.render()
}

func (c *Controller) questionExpired(e Expiry) {
	cur := c.order[c.index]
	if !c.qtimer.Current(e, cur) {
		c.log.Debug().Str("question_id", e.QuestionID.String()).Msg("Ignoring stale question expiry")
		return
	}

	now := c.now()
	c.fold(cur, now)
	c.runtime[cur].Locked = true

	if c.index == len(c.order)-1 {
		c.beginSubmit(model.TriggerQuestionTimeout)
		return
	}
	c.moveTo(c.index+1, now)
}

// AnswerQuestion records value as the answer to questionID. An empty value
// removes the answer.
func (c *Controller) AnswerQuestion(questionID uuid.UUID, value model.AnswerValue) error {
	if err := c.interactive(); err != nil {
		return err
	}
	q, ok := c.questions[questionID]
	if !ok {
		return ErrInvalidQuestion
	}
	st, ok := c.runtime[questionID]
	if !ok {
		return ErrInvalidQuestion
	}
	if st.Locked {
		return ErrQuestionLocked
	}
	if !c.def.Policy.AllowNavigation && questionID != c.order[c.index] {
		return ErrNotCurrentQuestion
	}

	if value.IsEmpty() {
		delete(c.answers, questionID)
		c.render()
		return nil
	}
	v, err := normalizeAnswer(q, value)
	if err != nil {
		return err
	}
	c.answers[questionID] = v
	c.render()
	return nil
}

func normalizeAnswer(q model.Question, v model.AnswerValue) (model.AnswerValue, error) {
	switch q.Type {
	case model.QuestionTypeMultipleCorrect:
		if !v.Multi {
			v = model.ChoiceSet(v.Text)
		}
		for _, choice := range v.Choices {
			if !hasOption(q, choice) {
				return v, ErrInvalidAnswer
			}
		}
		return v, nil
	case model.QuestionTypeMultipleChoice, model.QuestionTypeTrueFalse:
		if v.Multi {
			if len(v.Choices) != 1 {
				return v, ErrInvalidAnswer
			}
			v = model.TextAnswer(v.Choices[0])
		}
		if !hasOption(q, v.Text) {
			return v, ErrInvalidAnswer
		}
		return v, nil
	default:
		if v.Multi {
			return v, ErrInvalidAnswer
		}
		return v, nil
	}
}

func hasOption(q model.Question, choice string) bool {
	for _, o := range q.ChoiceOptions() {
		if o == choice {
			return true
		}
	}
	return false
}

// ClearAnswer removes the answer to the current question.
func (c *Controller) ClearAnswer(questionID uuid.UUID) error {
	if err := c.interactive(); err != nil {
		return err
	}
	st, ok := c.runtime[questionID]
	if !ok {
		return ErrInvalidQuestion
	}
	if st.Locked {
		return ErrQuestionLocked
	}
	if questionID != c.order[c.index] {
		return ErrNotCurrentQuestion
	}
	delete(c.answers, questionID)
	c.render()
	return nil
}

// Navigate moves to the question at index. Locked questions can be opened
// read-only. Without free navigation only the next question is reachable.
func (c *Controller) Navigate(index int) error {
	if err := c.interactive(); err != nil {
		return err
	}
	if index < 0 || index >= len(c.order) {
		return ErrInvalidIndex
	}
	if index == c.index {
		return nil
	}
	if !c.def.Policy.AllowNavigation && index != c.index+1 {
		return ErrNavigationNotAllowed
	}
	c.moveTo(index, c.now())
	c.render()
	return nil
}

// NavigateBy moves relative to the current question, e.g. +1 for next.
func (c *Controller) NavigateBy(delta int) error {
	return c.Navigate(c.index + delta)
}

// ToggleReview flips the review mark of a question.
func (c *Controller) ToggleReview(questionID uuid.UUID) error {
	if c.phase != PhaseInProgress {
		return c.phaseErr()
	}
	st, ok := c.runtime[questionID]
	if !ok {
		return ErrInvalidQuestion
	}
	st.MarkedForReview = !st.MarkedForReview
	c.render()
	return nil
}

// RequestSubmit opens the confirmation gate.
func (c *Controller) RequestSubmit() (Summary, error) {
	if c.phase != PhaseInProgress {
		return Summary{}, c.phaseErr()
	}
	s := summarize(c.order, c.answers, c.runtime)
	c.confirmPending = true
	c.surface.ConfirmSubmit(s)
	return s, nil
}

// CancelSubmit closes the confirmation gate.
func (c *Controller) CancelSubmit() error {
	if !c.confirmPending {
		return ErrNoPendingSubmit
	}
	c.confirmPending = false
	return nil
}

// ConfirmSubmit submits the attempt after RequestSubmit.
func (c *Controller) ConfirmSubmit() error {
	if c.submitting || c.submitted {
		return ErrSubmissionInFlight
	}
	if c.phase != PhaseInProgress {
		return c.phaseErr()
	}
	if !c.confirmPending {
		return ErrNoPendingSubmit
	}
	return c.beginSubmit(model.TriggerManual)
}

// HandleSignal feeds one environment signal to the integrity monitor.
func (c *Controller) HandleSignal(sig Signal) (Verdict, error) {
	if c.phase.Terminal() {
		return Verdict{}, ErrSessionClosed
	}
	if c.monitor == nil {
		return Verdict{}, ErrNotInProgress
	}
	if sig.At.IsZero() {
		sig.At = c.now()
	}

	v := c.monitor.Observe(sig)
	if sig.Kind == SignalFullscreenChange {
		c.fullscreenChanged(sig.Fullscreen)
	}
	if v.Flagged {
		c.emit(v.Activity)
	}
	return v, nil
}

func (c *Controller) fullscreenChanged(on bool) {
	c.fullscreen = on
	if c.phase == PhasePermissionsPending && c.pending[PermissionFullscreen] && on {
		_ = c.GrantPermission(PermissionFullscreen, true)
		return
	}
	if c.phase != PhaseInProgress || !c.def.Policy.RequireFullscreen {
		return
	}
	switch {
	case !on && !c.blocked:
		c.block()
		c.surface.RequestFullscreen()
	case on && c.blocked:
		c.blocked = false
		c.surface.SetOverlay(Overlay{})
		c.render()
	}
}

func (c *Controller) block() {
	c.blocked = true
	c.surface.SetOverlay(Overlay{Blocking: true, Reason: OverlayFullscreenRequired})
}

func (c *Controller) emit(a model.SuspiciousActivity) {
	c.log.Info().
		Str("activity", string(a.Type)).
		Str("severity", string(a.Severity)).
		Msg("Suspicious activity")

	c.surface.ShowAlert(Alert{Activity: a, DismissAfter: c.settings.AlertDelays.For(a.Severity)})

	if c.proctor != nil {
		ev := model.ProctorEvent{
			ExamID:      c.examID,
			StudentID:   c.studentID,
			Type:        a.Type,
			Description: a.Description,
			Severity:    a.Severity,
			Timestamp:   a.Timestamp,
		}
		ctx := c.ctx
		c.exec(func() func() {
			ioCtx, cancel := context.WithTimeout(ctx, c.settings.IOTimeout)
			defer cancel()
			if err := c.proctor.Publish(ioCtx, ev); err != nil {
				c.log.Warn().Err(err).Msg("Failed to forward incident to proctor")
			}
			return nil
		})
	}

	if c.def.Policy.AutoTerminateOnSuspicious &&
		a.Severity.Rank() >= c.settings.AutoTerminateMinSeverity.Rank() &&
		c.phase == PhaseInProgress {
		c.log.Warn().Str("activity", string(a.Type)).Msg("Auto-terminating attempt")
		_ = c.beginSubmit(model.TriggerPolicy)
	}
}

func (c *Controller) beginSubmit(trigger model.SubmissionTrigger) error {
	if c.submitting || c.submitted {
		return ErrSubmissionInFlight
	}
	if !c.phase.CanTransition(PhaseSubmitting) {
		return ErrNotInProgress
	}
	now := c.now()
	c.fold(c.order[c.index], now)
	if !c.transition(PhaseSubmitting) {
		return ErrInvalidTransition
	}
	c.submitting = true
	c.confirmPending = false
	c.clock.Stop()
	c.qtimer.Pause()
	c.monitor.Deactivate()

	payload := BuildPayload(c.examID, c.order, c.answers, c.runtime, c.monitor.Log(), c.startedAt, now, trigger)
	c.log.Info().
		Str("trigger", string(trigger)).
		Int("answered", payload.AnsweredQuestions).
		Int("incidents", len(payload.SuspiciousActivities)).
		Msg("Submitting attempt")
	c.render()
	c.sendSubmission(payload)
	return nil
}

func (c *Controller) sendSubmission(payload model.SubmissionPayload) {
	attempts := 1
	if payload.Trigger.Automatic() {
		attempts += c.settings.AutoSubmitRetries
	}
	ctx := context.WithoutCancel(c.ctx)

	c.exec(func() func() {
		var (
			res *model.SubmissionResult
			err error
		)
		for i := 0; i < attempts; i++ {
			if i > 0 && c.settings.AutoSubmitRetryDelay > 0 {
				time.Sleep(c.settings.AutoSubmitRetryDelay)
			}
			res, err = c.submitOnce(ctx, payload)
			if err == nil || errors.Is(err, ErrSubmissionRejected) {
				break
			}
			c.log.Warn().Err(err).Int("attempt", i+1).Msg("Submission attempt failed")
		}
		return func() { c.submitDone(payload.Trigger, res, err) }
	})
}

func (c *Controller) submitOnce(ctx context.Context, payload model.SubmissionPayload) (*model.SubmissionResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.settings.IOTimeout)
	defer cancel()

	res, err := c.backend.Submit(ctx, payload)
	if err != nil {
		return nil, err
	}
	if res == nil || !res.Success {
		msg := ""
		if res != nil {
			msg = res.Message
		}
		return res, fmt.Errorf("%w: %s", ErrSubmissionRejected, msg)
	}
	return res, nil
}

func (c *Controller) submitDone(trigger model.SubmissionTrigger, res *model.SubmissionResult, err error) {
	c.submitting = false
	if c.phase != PhaseSubmitting {
		return
	}

	if err == nil {
		c.submitted = true
		c.clearProgress()
		c.transition(PhaseEnded)
		c.teardown()
		c.render()
		if res.Redirect {
			c.surface.NavigateAway(Exit{Reason: ExitSubmitted, Message: res.Message})
		} else {
			c.surface.Submitted(*res)
		}
		c.log.Info().Str("trigger", string(trigger)).Msg("Attempt submitted")
		return
	}

	c.log.Error().Err(err).Str("trigger", string(trigger)).Msg("Submission failed")

	if trigger.Automatic() {
		// The student is released even though the attempt was not delivered.
		c.submitted = true
		c.undelivered = true
		c.saveProgress(context.WithoutCancel(c.ctx))
		c.surface.ShowError(Notice{
			Code:    "SUBMISSION_FAILED",
			Message: "Your answers could not be submitted. Your progress has been saved; please contact your proctor.",
			Action:  ActionDashboard,
		})
		c.transition(PhaseEnded)
		c.teardown()
		c.render()
		c.surface.NavigateAway(Exit{Reason: ExitSubmissionFailed, Message: err.Error()})
		return
	}

	c.surface.ShowError(Notice{
		Code:    "SUBMISSION_FAILED",
		Message: "Your answers could not be submitted. Please try again.",
		Action:  ActionRetry,
	})
	c.transition(PhaseInProgress)
	c.clock.Start()
	c.qtimer.Resume()
	c.monitor.Activate()
	c.enterQuestion(c.now(), false)
	c.render()
}

// Close ends the attempt without submitting, e.g. when the student
// disconnects. Progress is flushed so the attempt can be resumed.
func (c *Controller) Close() {
	if c.phase.Terminal() {
		c.teardown()
		return
	}
	if c.phase == PhaseInProgress {
		c.fold(c.order[c.index], c.now())
		c.saveProgress(context.WithoutCancel(c.ctx))
	}
	c.log.Info().Str("phase", string(c.phase)).Msg("Closing attempt")
	if c.transition(PhaseAborted) {
		c.teardown()
	}
}

func (c *Controller) abort(reason ExitReason, code, msg string) {
	if !c.transition(PhaseAborted) {
		return
	}
	c.teardown()
	c.surface.ShowError(Notice{Code: code, Message: msg, Action: ActionDashboard})
	c.surface.NavigateAway(Exit{Reason: reason, Message: msg})
}

// teardown releases everything the attempt acquired. It runs once.
func (c *Controller) teardown() {
	if c.tornDown {
		return
	}
	c.tornDown = true

	if c.clock != nil {
		c.clock.Stop()
	}
	if c.qtimer != nil {
		c.qtimer.Stop()
	}
	if c.monitor != nil {
		c.monitor.Deactivate()
	}
	c.confirmPending = false
	if c.blocked {
		c.blocked = false
		c.surface.SetOverlay(Overlay{})
	}
	if c.cameraRequested {
		c.surface.ReleaseCamera()
	}
	if c.fsRequested || c.fullscreen {
		c.surface.ExitFullscreen()
	}
	if c.proctor != nil {
		p := c.proctor
		c.exec(func() func() {
			if err := p.Close(); err != nil {
				c.log.Debug().Err(err).Msg("Failed to close proctor channel")
			}
			return nil
		})
	}
	close(c.finished)
}

// transition moves to next if the phase table allows it.
func (c *Controller) transition(next Phase) bool {
	if !c.phase.CanTransition(next) {
		c.log.Error().Str("from", string(c.phase)).Str("to", string(next)).Msg("Rejected phase transition")
		return false
	}
	c.log.Debug().Str("from", string(c.phase)).Str("to", string(next)).Msg("Phase transition")
	c.phase = next
	return true
}

func (c *Controller) interactive() error {
	if c.phase != PhaseInProgress {
		return c.phaseErr()
	}
	if c.blocked {
		return ErrBlocked
	}
	return nil
}

func (c *Controller) phaseErr() error {
	if c.phase.Terminal() {
		return ErrSessionClosed
	}
	if c.phase == PhaseSubmitting {
		return ErrSubmissionInFlight
	}
	return ErrNotInProgress
}

// moveTo leaves the current question and opens the one at index.
func (c *Controller) moveTo(index int, now time.Time) {
	c.fold(c.order[c.index], now)
	c.index = index
	c.enterQuestion(now, true)
}

func (c *Controller) enterQuestion(now time.Time, restartTimer bool) {
	id := c.order[c.index]
	st := c.runtime[id]
	if st.StartedAt == nil {
		t := now
		st.StartedAt = &t
	}
	if restartTimer {
		c.qtimer.Start(c.questions[id], st.Locked)
	}
}

// fold adds the time spent on a question since it was opened.
func (c *Controller) fold(id uuid.UUID, now time.Time) {
	st := c.runtime[id]
	if st == nil || st.StartedAt == nil {
		return
	}
	if d := now.Sub(*st.StartedAt); d > 0 {
		st.TimeSpent += d
	}
	st.StartedAt = nil
}

func (c *Controller) snapshot() model.SessionSnapshot {
	answers := make(map[uuid.UUID]model.AnswerValue, len(c.answers))
	for id, v := range c.answers {
		answers[id] = v
	}
	var locked []uuid.UUID
	for _, id := range c.order {
		if c.runtime[id].Locked {
			locked = append(locked, id)
		}
	}
	return model.SessionSnapshot{
		Answers:              answers,
		TimeLeft:             c.clock.Remaining(),
		CurrentQuestionIndex: c.index,
		StartedAt:            c.startedAt,
		LockedQuestions:      locked,
	}
}

func (c *Controller) saveProgress(ctx context.Context) {
	snap := c.snapshot()
	c.exec(func() func() {
		ioCtx, cancel := context.WithTimeout(ctx, c.settings.IOTimeout)
		defer cancel()
		err := c.backend.SaveProgress(ioCtx, c.examID, snap)
		return func() {
			c.persist.Done()
			if err != nil {
				c.log.Debug().Err(err).Msg("Progress snapshot failed")
			}
		}
	})
}

func (c *Controller) clearProgress() {
	ctx := context.WithoutCancel(c.ctx)
	c.exec(func() func() {
		ioCtx, cancel := context.WithTimeout(ctx, c.settings.IOTimeout)
		defer cancel()
		if err := c.backend.ClearProgress(ioCtx, c.examID); err != nil {
			c.log.Debug().Err(err).Msg("Failed to clear progress snapshot")
		}
		return nil
	})
}

func (c *Controller) render() {
	if c.def == nil {
		return
	}
	c.surface.Render(c.View())
}

// View returns the current render state.
func (c *Controller) View() View {
	v := View{Phase: c.phase, ExamID: c.examID, Blocked: c.blocked}
	if c.def == nil {
		return v
	}
	cur := c.order[c.index]
	v.Title = c.def.Title
	v.CurrentQuestionIndex = c.index
	v.CurrentQuestionID = cur
	v.ReadOnly = c.runtime[cur].Locked || c.phase != PhaseInProgress
	v.TimeLeft = c.clock.Remaining()
	if left, ok := c.qtimer.Remaining(); ok {
		v.QuestionTimeLeft = &left
	}
	v.Questions = make([]QuestionView, len(c.order))
	for i, id := range c.order {
		st := c.runtime[id]
		_, answered := c.answers[id]
		v.Questions[i] = QuestionView{
			ID:              id,
			Answered:        answered,
			Locked:          st.Locked,
			MarkedForReview: st.MarkedForReview,
		}
	}
	return v
}

// Phase returns the current lifecycle phase.
func (c *Controller) Phase() Phase { return c.phase }

// CurrentIndex returns the index of the question on screen.
func (c *Controller) CurrentIndex() int { return c.index }

// TimeLeft returns the remaining exam seconds.
func (c *Controller) TimeLeft() int {
	if c.clock == nil {
		return 0
	}
	return c.clock.Remaining()
}

// Answers returns a copy of the answer map.
func (c *Controller) Answers() map[uuid.UUID]model.AnswerValue {
	out := make(map[uuid.UUID]model.AnswerValue, len(c.answers))
	for id, v := range c.answers {
		out[id] = v
	}
	return out
}

// Runtime returns a copy of the runtime state of a question.
func (c *Controller) Runtime(questionID uuid.UUID) (model.QuestionRuntimeState, bool) {
	st, ok := c.runtime[questionID]
	if !ok {
		return model.QuestionRuntimeState{}, false
	}
	return *st, true
}

// Incidents returns a copy of the incident log.
func (c *Controller) Incidents() []model.SuspiciousActivity {
	if c.monitor == nil {
		return nil
	}
	return c.monitor.Log()
}

// Undelivered reports whether the attempt ended without a delivered submission.
func (c *Controller) Undelivered() bool { return c.undelivered }
