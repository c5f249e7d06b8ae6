// Package chat turns inbound chat messages into store operations, report
// queries and reply texts. It is transport-agnostic: the HTTP webhook and the
// CLI feed it Inbound values and relay the returned Reply.
package chat

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/classroll/classroll-bot/internal/domain/attendance"
	"github.com/classroll/classroll-bot/internal/domain/dialogue"
	"github.com/classroll/classroll-bot/internal/domain/report"
	"github.com/classroll/classroll-bot/internal/domain/shared"
	"github.com/classroll/classroll-bot/internal/infrastructure/messaging"
	"github.com/classroll/classroll-bot/internal/infrastructure/metrics"
	"github.com/classroll/classroll-bot/pkg/keylock"
	"github.com/classroll/classroll-bot/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	// Threshold is the low-attendance boundary in percent.
	Threshold float64

	// NotifyConcurrency limits parallel notifications during bulk marking.
	NotifyConcurrency int

	// NotifyTimeout bounds one notification send, sender retries included.
	// Marking replies wait for delivery: a single mark adds at most
	// NotifyTimeout to the reply, a bulk mark of n students at most
	// ceil(n/NotifyConcurrency) * NotifyTimeout.
	NotifyTimeout time.Duration

	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// DefaultRouterConfig returns production defaults.
func DefaultRouterConfig() RouterConfig {
	return RouterConfig{
		Threshold:         report.DefaultThreshold,
		NotifyConcurrency: 8,
		NotifyTimeout:     5 * time.Second,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CONTEXT TYPES
// ══════════════════════════════════════════════════════════════════════════════

// Inbound is one message from a chat user.
type Inbound struct {
	// SenderID is the opaque conversation id of the user.
	SenderID string

	// Text is the message body.
	Text string

	// Selection is a structured reply token (button id), if any.
	Selection string
}

// Reply is what the transport sends back to the sender.
type Reply struct {
	// Text is empty when the message is ignored.
	Text string

	// Notices are advisories about side effects (storage, delivery).
	Notices []string
}

// Outcome labels used for metrics and logs.
const (
	outcomeOK         = "ok"
	outcomeIgnored    = "ignored"
	outcomeUnknown    = "unknown"
	outcomeValidation = "validation"
	outcomeNotFound   = "not_found"
	outcomeConflict   = "conflict"
	outcomeForbidden  = "forbidden"
	outcomeError      = "error"
)

// request carries the state of one message through the handlers.
type request struct {
	ctx     context.Context
	user    string
	cmd     Command
	session dialogue.Session
	logger  *zap.Logger

	// next is the session to persist; nil keeps the current one.
	next    *dialogue.Session
	notices []string
	outcome string
}

func (req *request) advance(s dialogue.Session) {
	req.next = &s
}

func (req *request) clear() {
	req.advance(dialogue.Idle())
}

func (req *request) keep() {
	req.advance(req.session)
}

func (req *request) fail(outcome string) {
	req.outcome = outcome
}

// ══════════════════════════════════════════════════════════════════════════════
// ROUTER
// ══════════════════════════════════════════════════════════════════════════════

type access int

const (
	anyone access = iota
	teachersOnly
	studentsOnly
)

type route struct {
	handle func(*Router, *request) string
	access access
}

// Router dispatches messages. Messages of one user are handled one at a time;
// different users proceed in parallel.
type Router struct {
	store    *attendance.Store
	sessions *dialogue.Tracker
	sender   messaging.Sender
	locks    *keylock.Locker

	config  RouterConfig
	logger  *zap.Logger
	metrics *metrics.Metrics

	routes map[Kind]route
	stages map[dialogue.Stage]func(*Router, *request) string
}

// NewRouter wires the router. sender may be nil (notifications disabled).
func NewRouter(store *attendance.Store, sessions *dialogue.Tracker, sender messaging.Sender, config RouterConfig) *Router {
	defaults := DefaultRouterConfig()
	if config.Threshold <= 0 {
		config.Threshold = defaults.Threshold
	}
	if config.NotifyConcurrency <= 0 {
		config.NotifyConcurrency = defaults.NotifyConcurrency
	}
	if config.NotifyTimeout <= 0 {
		config.NotifyTimeout = defaults.NotifyTimeout
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	r := &Router{
		store:    store,
		sessions: sessions,
		sender:   sender,
		locks:    keylock.New(),
		config:   config,
		logger:   config.Logger.Named("chat"),
		metrics:  config.Metrics,
	}

	r.routes = map[Kind]route{
		KindStart:         {(*Router).handleStart, anyone},
		KindHelp:          {(*Router).handleHelp, anyone},
		KindRegister:      {(*Router).handleRegister, anyone},
		KindAddSubject:    {(*Router).handleAddSubject, teachersOnly},
		KindStudentsMenu:  {(*Router).handleStudentsMenu, teachersOnly},
		KindAddStudent:    {(*Router).handleAddStudent, teachersOnly},
		KindViewStudents:  {(*Router).handleViewStudents, teachersOnly},
		KindMark:          {(*Router).handleMark, teachersOnly},
		KindSelectSubject: {(*Router).handleSelectSubject, teachersOnly},
		KindReports:       {(*Router).handleReports, teachersOnly},
		KindReport:        {(*Router).handleReport, teachersOnly},
		KindAlerts:        {(*Router).handleAlerts, teachersOnly},
		KindView:          {(*Router).handleView, teachersOnly},
		KindTeachers:      {(*Router).handleTeachers, teachersOnly},
		KindRemoveMenu:    {(*Router).handleRemoveMenu, teachersOnly},
		KindRemoveSubject: {(*Router).handleRemoveSubject, teachersOnly},
		KindRemoveStudent: {(*Router).handleRemoveStudent, teachersOnly},
		KindDeleteAccount: {(*Router).handleDeleteAccount, teachersOnly},
		KindConfirmDelete: {(*Router).handleConfirmDelete, teachersOnly},
		KindLetterA:       {(*Router).handleLetter, teachersOnly},
		KindLetterB:       {(*Router).handleLetter, teachersOnly},
		KindMarkStudent:   {(*Router).handleMarkingWhileIdle, teachersOnly},
		KindBulk:          {(*Router).handleMarkingWhileIdle, teachersOnly},
		KindBulkStatus:    {(*Router).handleMarkingWhileIdle, teachersOnly},
		KindDone:          {(*Router).handleMarkingWhileIdle, teachersOnly},
		KindMyAttendance:  {(*Router).handleMyAttendance, studentsOnly},
	}

	r.stages = map[dialogue.Stage]func(*Router, *request) string{
		dialogue.StageAwaitingTeacherName:     (*Router).stageTeacherName,
		dialogue.StageAwaitingSubjectName:     (*Router).stageSubjectName,
		dialogue.StageAwaitingStudentName:     (*Router).stageStudentName,
		dialogue.StageAwaitingStudentPhone:    (*Router).stageStudentPhone,
		dialogue.StageAwaitingStudentSelect:   (*Router).stageStudentSelect,
		dialogue.StageAwaitingAttendanceState: (*Router).stageAttendanceStatus,
		dialogue.StageAwaitingBulkStatus:      (*Router).stageBulkStatus,
	}

	return r
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE HANDLING
// ══════════════════════════════════════════════════════════════════════════════

// Handle processes one inbound message and returns the reply. It never fails:
// every error path produces a reply text.
func (r *Router) Handle(ctx context.Context, in Inbound) Reply {
	start := time.Now()

	text := strings.TrimSpace(in.Text)
	if mapped, ok := FromSelection(in.Selection); ok {
		text = mapped
	}
	if text == "" || in.SenderID == "" {
		r.metrics.ObserveMessage(outcomeIgnored, time.Since(start))
		return Reply{}
	}

	unlock := r.locks.Lock(in.SenderID)
	defer unlock()

	requestID := logger.RequestIDFrom(ctx)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	req := &request{
		ctx:     ctx,
		user:    in.SenderID,
		cmd:     Parse(text),
		outcome: outcomeOK,
		logger: r.logger.With(
			logger.RequestID(requestID),
			logger.UserID(in.SenderID),
		),
	}

	session, err := r.sessions.Current(ctx, in.SenderID)
	if err != nil {
		req.logger.Warn("session unavailable, treating as idle", zap.Error(err))
		session = dialogue.Idle()
	}
	req.session = session

	replyText := r.dispatch(req)
	r.persist(req)

	elapsed := time.Since(start)
	r.metrics.ObserveMessage(req.outcome, elapsed)
	req.logger.Debug("message handled",
		logger.Command(req.cmd.Kind.String()),
		logger.Stage(string(req.session.Stage)),
		logger.Outcome(req.outcome),
		logger.Latency(elapsed),
	)

	return Reply{Text: replyText, Notices: req.notices}
}

// dispatch applies the precedence: reset, active dialogue, idle grammar, fallback.
func (r *Router) dispatch(req *request) string {
	if req.cmd.Kind == KindReset {
		req.clear()
		return msgCancelled
	}

	if !req.session.IsIdle() {
		if stage, ok := r.stages[req.session.Stage]; ok {
			return stage(r, req)
		}
		req.logger.Warn("unknown stage, resetting", logger.Stage(string(req.session.Stage)))
		req.clear()
	}

	return r.dispatchIdle(req, req.cmd.Kind)
}

func (r *Router) dispatchIdle(req *request, kind Kind) string {
	if kind == KindNumber {
		mapped, ok := MainMenuKind(req.cmd.Index)
		if !ok {
			req.fail(outcomeUnknown)
			return msgUnknown
		}
		kind = mapped
	}

	rt, ok := r.routes[kind]
	if !ok {
		req.fail(outcomeUnknown)
		return msgUnknown
	}

	switch rt.access {
	case teachersOnly:
		if r.store.Role(req.user) != attendance.RoleTeacher {
			req.fail(outcomeForbidden)
			return msgPermissionDenied
		}
	case studentsOnly:
		if r.store.Role(req.user) != attendance.RoleStudent {
			req.fail(outcomeForbidden)
			return msgNotStudent
		}
	}

	// Letter submenus close on any other command. An indexed list stays
	// addressable until another menu or dialogue replaces it.
	if !req.session.HasList() {
		req.clear()
	}
	return rt.handle(r, req)
}

// persist stores the next session chosen by the handler.
func (r *Router) persist(req *request) {
	if req.next == nil {
		return
	}
	next := *req.next

	var err error
	switch {
	case next.IsBlank():
		if req.session.IsBlank() {
			return
		}
		err = r.sessions.Clear(req.ctx, req.user)
	case req.session.IsIdle() && !next.IsIdle():
		err = r.sessions.Begin(req.ctx, req.user, next)
	default:
		err = r.sessions.Advance(req.ctx, req.user, next)
	}
	if err != nil {
		req.logger.Warn("failed to store session", logger.Stage(string(next.Stage)), zap.Error(err))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// SHARED HELPERS
// ══════════════════════════════════════════════════════════════════════════════

// settle inspects a store error. Durability failures become an advisory and
// count as success; ok is false for any other error.
func (r *Router) settle(req *request, err error) (ok bool) {
	if err == nil {
		return true
	}
	if shared.IsDurability(err) {
		req.logger.Error("checkpoint failed", zap.Error(err))
		req.notices = append(req.notices, msgDurability)
		return true
	}
	switch {
	case shared.IsValidation(err):
		req.fail(outcomeValidation)
	case shared.IsNotFound(err):
		req.fail(outcomeNotFound)
	case shared.IsAlreadyExists(err):
		req.fail(outcomeConflict)
	default:
		req.fail(outcomeError)
		req.logger.Error("store operation failed", zap.Error(err))
	}
	return false
}

func (r *Router) teacherName(id string) string {
	if t, ok := r.store.Teacher(id); ok {
		return t.Name
	}
	return ""
}

// listItem resolves a 1-based index against the list snapshot of the given
// menu. It never falls back to the live list: when that menu is not on
// screen the returned reply asks the user to open it.
func listItem(req *request, menu dialogue.Menu, index int) (string, string, bool) {
	if !req.session.HasList() || req.session.Menu != menu {
		req.fail(outcomeValidation)
		return "", openListFirstText(menu), false
	}
	item, ok := req.session.ItemAt(index)
	if !ok {
		req.fail(outcomeValidation)
		return "", msgInvalidSelection, false
	}
	return item, "", true
}
