package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/service-chatbot-go/internal/config"
	"github.com/service-chatbot-go/internal/i18n"
	"github.com/service-chatbot-go/internal/middleware"
	"github.com/service-chatbot-go/internal/models"
	"github.com/service-chatbot-go/internal/services/cache"
	"github.com/service-chatbot-go/internal/services/gateway"
	"github.com/service-chatbot-go/pkg/logger"
	"github.com/service-chatbot-go/pkg/markdown"
	"github.com/sirupsen/logrus"
)

// Controller orchestrates one user action at a time for a single chat
// session: it validates input, consults the mode router, invokes the
// remote gateway, and merges results into the trivia session and the
// message log. The busy flag rejects overlapping submissions; a second
// attempt while a remote call is outstanding gets ErrBusy, it is never
// queued. All session state is owned here and mutated nowhere else.
type Controller struct {
	cfg       *config.Config
	gateway   gateway.Service
	cache     cache.Service
	limiter   middleware.RateLimiter
	localizer *i18n.Localizer
	metrics   *middleware.Metrics
	logger    *logrus.Logger
	lang      string
	now       func() time.Time

	mu        sync.Mutex
	mode      models.Mode
	log       *MessageLog
	trivia    Trivia
	busy      bool
	lastError string
}

// Snapshot is the read-only state exposed to the presentation layer.
type Snapshot struct {
	Mode      models.Mode
	Busy      bool
	LastError string
	Trivia    TriviaSnapshot
	Catalog   []string
}

// NewController creates a session controller seeded with the greeting
// message in chat mode.
func NewController(
	cfg *config.Config,
	gw gateway.Service,
	cacheService cache.Service,
	limiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *Controller {
	c := &Controller{
		cfg:       cfg,
		gateway:   gw,
		cache:     cacheService,
		limiter:   limiter,
		localizer: localizer,
		metrics:   metrics,
		logger:    logger,
		lang:      cfg.I18n.DefaultLanguage,
		now:       time.Now,
		mode:      models.ModeChat,
		log:       NewMessageLog(),
	}
	c.appendLocked(c.botMessage(c.localize(i18n.MsgGreeting, nil), models.ModeChat, false))
	return c
}

// SetMode switches the active conversational mode. Mode selection by
// itself never alters the trivia session.
func (c *Controller) SetMode(mode models.Mode) error {
	if !mode.Valid() {
		return newValidationError("unknown mode %q", mode)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = mode
	return nil
}

// Mode returns the active conversational mode.
func (c *Controller) Mode() models.Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Snapshot returns the current view-ready state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	catalog, _ := c.cache.GetCatalog(context.Background())
	return Snapshot{
		Mode:      c.mode,
		Busy:      c.busy,
		LastError: c.lastError,
		Trivia:    c.trivia.Snapshot(),
		Catalog:   catalog,
	}
}

// Messages returns the sub-view of the timeline visible in mode.
func (c *Controller) Messages(mode models.Mode) []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Message
	for msg := range c.log.VisibleFor(mode) {
		out = append(out, msg)
	}
	return out
}

// Timeline returns the full message log in insertion order.
func (c *Controller) Timeline() []models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.log.All()
}

// Submit handles one line of user input in the active mode.
func (c *Controller) Submit(ctx context.Context, input string) error {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return c.rejectInput(i18n.MsgEmptyInput)
	}

	c.mu.Lock()
	mode := c.mode
	active := c.trivia.Active()
	current := c.trivia.Current()
	c.mu.Unlock()

	op := Route(mode, active, trimmed)
	if op == OpNone {
		// Manage and help accept explicit actions only; free-form input
		// has nowhere to go.
		return c.rejectInputText(fmt.Sprintf("no operation for input in %s mode", mode))
	}
	if op == OpAnswerTrivia && current == nil {
		// Stale client state; never sent to the server.
		return c.rejectInputText("no trivia question is awaiting an answer")
	}

	if err := c.beginAction(); err != nil {
		return err
	}

	c.mu.Lock()
	c.appendLocked(models.Message{
		Sender:          models.SenderUser,
		Text:            trimmed,
		Mode:            mode,
		IsTriviaContext: op == OpAnswerTrivia,
		CreatedAt:       c.now(),
	})
	c.mu.Unlock()

	if !c.limiter.Allow() {
		c.metrics.RecordRateLimitExceeded()
		c.metrics.RecordSubmission(string(mode), "rate_limited")
		reason := c.localize(i18n.MsgRateLimitExceeded, nil)
		c.abortAction(reason)
		return &ValidationError{Reason: reason}
	}

	var err error
	switch op {
	case OpAnswerTrivia:
		err = c.answerTrivia(ctx, trimmed)
	case OpAsk:
		err = c.ask(ctx, trimmed)
	}

	if err != nil {
		c.metrics.RecordSubmission(string(mode), "error")
		c.failAction(mode, err, c.localize(i18n.MsgGenericError, nil))
		return err
	}

	c.metrics.RecordSubmission(string(mode), "success")
	c.endAction()
	return nil
}

// answerTrivia submits the normalized choice for the current question
// and merges the scored result.
func (c *Controller) answerTrivia(ctx context.Context, raw string) error {
	choice := strings.ToUpper(raw)

	result, err := c.gateway.AnswerTrivia(ctx, choice)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ended, err := c.trivia.Advance(result.Score, result.Total, result.Next)
	if err != nil {
		return err
	}

	feedback := c.localize(i18n.MsgTriviaCorrect, nil)
	if !result.Correct {
		feedback = c.localize(i18n.MsgTriviaIncorrect, map[string]interface{}{
			"Answer": result.CorrectAnswer,
		})
	}
	c.appendLocked(c.botMessage(feedback, models.ModeTrivia, true))

	if !ended {
		c.appendLocked(c.botMessage(c.formatQuestion(result.Next), models.ModeTrivia, true))
		return nil
	}

	final := result.Final
	summary := c.localize(i18n.MsgTriviaGameOver, map[string]interface{}{
		"Score":      final.Score,
		"Total":      final.Total,
		"Percentage": formatPercentage(final.Score, final.Total),
		"Message":    final.Message,
	})
	c.appendLocked(c.botMessage(summary, models.ModeTrivia, true))
	c.metrics.RecordTriviaCompleted()
	return nil
}

// ask sends a free-form question, serving repeated questions from the
// answer cache.
func (c *Controller) ask(ctx context.Context, question string) error {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()

	if answer, found := c.cache.GetAnswer(ctx, question); found {
		c.metrics.RecordCacheHit()
		c.mu.Lock()
		c.appendLocked(c.botMessage(answer, mode, false))
		c.mu.Unlock()
		return nil
	}
	c.metrics.RecordCacheMiss()

	result, err := c.gateway.Ask(ctx, question)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	text := markdown.ToTerminalText(result.Answer)
	c.appendLocked(c.botMessage(text, mode, false))

	if result.Type == "answer" {
		c.cache.SetAnswer(ctx, question, text)
	}

	// The server may start or finish a trivia game on the back of a
	// chat exchange (typing "trivia" in chat). Keep the local session
	// in agreement with it.
	if result.TriviaQuestion != nil {
		if err := c.trivia.Begin(result.TriviaQuestion); err != nil {
			return err
		}
		c.appendLocked(c.botMessage(c.formatQuestion(result.TriviaQuestion), models.ModeTrivia, true))
		c.metrics.RecordTriviaStarted()
	} else if result.TriviaResult != nil {
		if c.trivia.Active() {
			c.trivia.Reset()
			c.metrics.RecordTriviaCompleted()
		}
	} else if result.TriviaActive != nil && !*result.TriviaActive && c.trivia.Active() {
		c.trivia.Reset()
		c.metrics.RecordTriviaCompleted()
	}
	return nil
}

// StartTrivia begins a trivia game of count questions and switches the
// session to trivia mode. Non-positive counts fall back to the
// configured default; the server clamps oversized requests.
func (c *Controller) StartTrivia(ctx context.Context, count int) error {
	if count <= 0 {
		count = c.cfg.Trivia.DefaultQuestions
	}
	if max := c.cfg.Trivia.MaxQuestions; max > 0 && count > max {
		count = max
	}

	if err := c.beginAction(); err != nil {
		return err
	}

	result, err := c.gateway.StartTrivia(ctx, count)
	if err != nil {
		c.failAction(models.ModeTrivia, err, c.localize(i18n.MsgTriviaStartFailed, nil))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.trivia.Begin(result.Current); err != nil {
		c.failActionLocked(models.ModeTrivia, err, c.localize(i18n.MsgTriviaStartFailed, nil))
		return err
	}
	c.mode = models.ModeTrivia

	banner := c.localize(i18n.MsgTriviaBanner, map[string]interface{}{"Count": count})
	c.appendLocked(c.botMessage(banner, models.ModeTrivia, true))
	c.appendLocked(c.botMessage(c.formatQuestion(result.Current), models.ModeTrivia, true))
	c.metrics.RecordTriviaStarted()
	c.busy = false
	return nil
}

// EndTrivia terminates the running game. Ending an idle session is a
// local no-op, with zero gateway calls.
func (c *Controller) EndTrivia(ctx context.Context) error {
	c.mu.Lock()
	active := c.trivia.Active()
	c.mu.Unlock()
	if !active {
		return nil
	}

	if err := c.beginAction(); err != nil {
		return err
	}

	result, err := c.gateway.EndTrivia(ctx)
	if err != nil {
		c.failAction(models.ModeTrivia, err, c.localize(i18n.MsgGenericError, nil))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.trivia.Reset()
	if result.Ended && result.Final != nil {
		summary := c.localize(i18n.MsgTriviaEnded, map[string]interface{}{
			"Score":      result.Final.Score,
			"Total":      result.Final.Total,
			"Percentage": fmt.Sprintf("%.1f", result.Final.Percentage),
			"Message":    result.Final.Message,
		})
		c.appendLocked(c.botMessage(summary, models.ModeTrivia, false))
	}
	c.metrics.RecordTriviaCompleted()
	c.busy = false
	return nil
}

// AddQuestion adds a question/answer pair to the knowledge base and
// refreshes the catalog.
func (c *Controller) AddQuestion(ctx context.Context, question, answer string) error {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	if question == "" || answer == "" {
		return c.rejectInput(i18n.MsgMissingQuestionAnswer)
	}

	if err := c.beginAction(); err != nil {
		return err
	}

	if _, err := c.gateway.AddQuestion(ctx, question, answer); err != nil {
		c.failAction(models.ModeManage, err, c.localize(i18n.MsgGenericError, nil))
		return err
	}

	c.mu.Lock()
	text := c.localize(i18n.MsgQuestionAdded, map[string]interface{}{"Question": question})
	c.appendLocked(c.botMessage(text, models.ModeManage, false))
	c.busy = false
	c.mu.Unlock()

	c.refreshCatalogQuietly(ctx)
	return nil
}

// RemoveQuestion removes a question from the knowledge base and
// refreshes the catalog.
func (c *Controller) RemoveQuestion(ctx context.Context, question string) error {
	question = strings.TrimSpace(question)
	if question == "" {
		return c.rejectInput(i18n.MsgMissingRemoveSelection)
	}

	if err := c.beginAction(); err != nil {
		return err
	}

	if _, err := c.gateway.RemoveQuestion(ctx, question); err != nil {
		c.failAction(models.ModeManage, err, c.localize(i18n.MsgGenericError, nil))
		return err
	}

	c.mu.Lock()
	text := c.localize(i18n.MsgQuestionRemoved, map[string]interface{}{"Question": question})
	c.appendLocked(c.botMessage(text, models.ModeManage, false))
	c.busy = false
	c.mu.Unlock()

	c.refreshCatalogQuietly(ctx)
	return nil
}

// AddTriviaQuestion adds a multiple-choice question to the trivia bank.
func (c *Controller) AddTriviaQuestion(ctx context.Context, input gateway.TriviaQuestionInput) error {
	if strings.TrimSpace(input.Question) == "" ||
		strings.TrimSpace(input.OptionA) == "" ||
		strings.TrimSpace(input.OptionB) == "" ||
		strings.TrimSpace(input.OptionC) == "" ||
		strings.TrimSpace(input.OptionD) == "" ||
		strings.TrimSpace(input.CorrectAnswer) == "" {
		return newValidationError("all trivia question fields are required")
	}

	if err := c.beginAction(); err != nil {
		return err
	}

	message, err := c.gateway.AddTriviaQuestion(ctx, input)
	if err != nil {
		c.failAction(models.ModeManage, err, c.localize(i18n.MsgGenericError, nil))
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.appendLocked(c.botMessage(message, models.ModeManage, false))
	c.busy = false
	return nil
}

// UploadQuestionSet uploads a CSV question set and refreshes the catalog.
func (c *Controller) UploadQuestionSet(ctx context.Context, filename string, contents []byte) error {
	if filename == "" || len(contents) == 0 {
		return c.rejectInput(i18n.MsgMissingUploadFile)
	}

	if err := c.beginAction(); err != nil {
		return err
	}

	result, err := c.gateway.UploadQuestionSet(ctx, filename, contents)
	if err != nil {
		c.failAction(models.ModeManage, err, c.localize(i18n.MsgGenericError, nil))
		return err
	}

	c.mu.Lock()
	c.appendLocked(c.botMessage(result.Message, models.ModeManage, false))
	c.busy = false
	c.mu.Unlock()

	c.refreshCatalogQuietly(ctx)
	return nil
}

// RefreshCatalog fetches the question catalog and replaces the cached
// snapshot.
func (c *Controller) RefreshCatalog(ctx context.Context) error {
	questions, err := c.gateway.ListQuestions(ctx)
	if err != nil {
		return err
	}
	return c.cache.SetCatalog(ctx, questions)
}

// TriviaCatalog lists the questions in the trivia bank.
func (c *Controller) TriviaCatalog(ctx context.Context) ([]string, error) {
	return c.gateway.ListTriviaQuestions(ctx)
}

// ReconcileTriviaStatus aligns a fresh client session with the server.
// A game left running from a previous process cannot be resumed, since
// the status endpoint does not return the pending question's options;
// end it so both sides agree the session starts idle.
func (c *Controller) ReconcileTriviaStatus(ctx context.Context) error {
	status, err := c.gateway.TriviaStatus(ctx)
	if err != nil {
		return err
	}
	if !status.Active {
		return nil
	}

	c.logger.WithFields(logrus.Fields{
		"score": status.Score,
		"total": status.Total,
	}).Info("Ending stale server-side trivia game")
	_, err = c.gateway.EndTrivia(ctx)
	return err
}

// ClearLog replaces the timeline with a single fresh greeting tagged
// with the active mode.
func (c *Controller) ClearLog() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Reset(c.botMessage(c.localize(i18n.MsgClearGreeting, nil), c.mode, false))
}

// HelpText returns the localized help summary.
func (c *Controller) HelpText() string {
	return c.localize(i18n.MsgHelp, nil)
}

func (c *Controller) refreshCatalogQuietly(ctx context.Context) {
	if err := c.RefreshCatalog(ctx); err != nil {
		c.logger.WithError(err).Warn("Failed to refresh question catalog")
	}
}

// beginAction claims the busy flag, rejecting overlapping submissions.
func (c *Controller) beginAction() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		c.lastError = c.localize(i18n.MsgBusy, nil)
		return ErrBusy
	}
	c.busy = true
	c.lastError = ""
	return nil
}

// endAction releases the busy flag after a successful action.
func (c *Controller) endAction() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
}

// abortAction releases the busy flag on a local rejection; no message
// is logged.
func (c *Controller) abortAction(reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = reason
	c.busy = false
}

// failAction surfaces a remote failure: one failure message tagged with
// mode, inline error set, busy cleared, everything else untouched.
func (c *Controller) failAction(mode models.Mode, err error, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failActionLocked(mode, err, text)
}

func (c *Controller) failActionLocked(mode models.Mode, err error, text string) {
	logger.WithMode(c.logger, string(mode)).WithError(err).
		WithField("kind", errorKind(err)).Error("Remote action failed")
	c.lastError = err.Error()
	c.appendLocked(c.botMessage(text, mode, false))
	c.busy = false
}

// rejectInput records a localized validation failure inline, without a
// log entry.
func (c *Controller) rejectInput(messageID string) error {
	return c.rejectInputText(c.localize(messageID, nil))
}

func (c *Controller) rejectInputText(reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastError = reason
	return &ValidationError{Reason: reason}
}

func (c *Controller) appendLocked(msg models.Message) {
	c.log.Append(msg)
	c.metrics.RecordMessageAppended(string(msg.Mode), string(msg.Sender))
}

func (c *Controller) botMessage(text string, mode models.Mode, triviaContext bool) models.Message {
	return models.Message{
		Sender:          models.SenderBot,
		Text:            text,
		Mode:            mode,
		IsTriviaContext: triviaContext,
		CreatedAt:       c.now(),
	}
}

func (c *Controller) localize(messageID string, data map[string]interface{}) string {
	return c.localizer.Get(c.lang, messageID, data)
}

func (c *Controller) formatQuestion(q *models.Question) string {
	return c.localize(i18n.MsgTriviaQuestion, map[string]interface{}{
		"Number": q.Number,
		"Total":  q.Total,
		"Prompt": q.Prompt,
		"A":      optionAt(q.Options, 0),
		"B":      optionAt(q.Options, 1),
		"C":      optionAt(q.Options, 2),
		"D":      optionAt(q.Options, 3),
	})
}

func optionAt(options []string, i int) string {
	if i < len(options) {
		return options[i]
	}
	return ""
}

func formatPercentage(score, total int) string {
	if total == 0 {
		return "0.0"
	}
	return fmt.Sprintf("%.1f", float64(score)/float64(total)*100)
}

func errorKind(err error) string {
	var pe *gateway.ProtocolError
	if errors.As(err, &pe) {
		return "protocol"
	}
	var te *gateway.TransportError
	if errors.As(err, &te) {
		return "transport"
	}
	return "internal"
}
