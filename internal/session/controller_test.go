package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/service-chatbot-go/internal/config"
	"github.com/service-chatbot-go/internal/i18n"
	"github.com/service-chatbot-go/internal/middleware"
	"github.com/service-chatbot-go/internal/models"
	"github.com/service-chatbot-go/internal/services/cache"
	"github.com/service-chatbot-go/internal/services/gateway"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway scripts gateway responses and counts calls per operation.
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	askResult  *gateway.AskResult
	askErr     error
	askEntered chan struct{}
	askRelease chan struct{}

	startResult    *gateway.StartResult
	startErr       error
	lastStartCount int

	answerResult *gateway.AnswerResult
	answerErr    error
	lastChoice   string

	endResult *gateway.EndResult
	endErr    error

	statusResult *gateway.StatusResult

	questions []string
	listErr   error

	ackErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{calls: map[string]int{}}
}

func (f *fakeGateway) record(op string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
}

func (f *fakeGateway) count(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *fakeGateway) Ask(ctx context.Context, question string) (*gateway.AskResult, error) {
	f.record("ask")
	if f.askEntered != nil {
		close(f.askEntered)
		f.askEntered = nil
		<-f.askRelease
	}
	if f.askErr != nil {
		return nil, f.askErr
	}
	return f.askResult, nil
}

func (f *fakeGateway) StartTrivia(ctx context.Context, count int) (*gateway.StartResult, error) {
	f.record("start_trivia")
	f.mu.Lock()
	f.lastStartCount = count
	f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	return f.startResult, nil
}

func (f *fakeGateway) AnswerTrivia(ctx context.Context, choice string) (*gateway.AnswerResult, error) {
	f.record("answer_trivia")
	f.mu.Lock()
	f.lastChoice = choice
	f.mu.Unlock()
	if f.answerErr != nil {
		return nil, f.answerErr
	}
	return f.answerResult, nil
}

func (f *fakeGateway) EndTrivia(ctx context.Context) (*gateway.EndResult, error) {
	f.record("end_trivia")
	if f.endErr != nil {
		return nil, f.endErr
	}
	if f.endResult == nil {
		return &gateway.EndResult{Ended: false}, nil
	}
	return f.endResult, nil
}

func (f *fakeGateway) TriviaStatus(ctx context.Context) (*gateway.StatusResult, error) {
	f.record("trivia_status")
	if f.statusResult == nil {
		return &gateway.StatusResult{}, nil
	}
	return f.statusResult, nil
}

func (f *fakeGateway) ListQuestions(ctx context.Context) ([]string, error) {
	f.record("list_questions")
	return f.questions, f.listErr
}

func (f *fakeGateway) ListTriviaQuestions(ctx context.Context) ([]string, error) {
	f.record("list_trivia_questions")
	return nil, nil
}

func (f *fakeGateway) AddQuestion(ctx context.Context, question, answer string) (string, error) {
	f.record("add_question")
	return "Question added successfully", f.ackErr
}

func (f *fakeGateway) RemoveQuestion(ctx context.Context, question string) (string, error) {
	f.record("remove_question")
	return "Question removed successfully", f.ackErr
}

func (f *fakeGateway) AddTriviaQuestion(ctx context.Context, q gateway.TriviaQuestionInput) (string, error) {
	f.record("add_trivia_question")
	return "Trivia question added successfully", f.ackErr
}

func (f *fakeGateway) UploadQuestionSet(ctx context.Context, filename string, contents []byte) (*gateway.UploadResult, error) {
	f.record("upload_question_set")
	if f.ackErr != nil {
		return nil, f.ackErr
	}
	return &gateway.UploadResult{Message: "Successfully imported 3 questions"}, nil
}

func testConfig() *config.Config {
	return &config.Config{
		Trivia:    config.TriviaConfig{DefaultQuestions: 5, MaxQuestions: 20},
		Cache:     config.CacheConfig{Enabled: true, TTL: time.Minute, MaxSize: 100},
		RateLimit: config.RateLimitConfig{Enabled: false},
		I18n:      config.I18nConfig{DefaultLanguage: "en", Languages: []string{"en"}},
	}
}

func newTestController(t *testing.T, cfg *config.Config, gw gateway.Service) *Controller {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	require.NoError(t, err)

	return NewController(
		cfg,
		gw,
		cache.NewCache(cfg, log),
		middleware.NewRateLimiter(cfg, log),
		localizer,
		middleware.NewMetrics(),
		log,
	)
}

func question(number, total int) *models.Question {
	return &models.Question{
		Number:  number,
		Total:   total,
		Prompt:  "Where is the main library?",
		Options: []string{"North campus", "South campus", "East campus", "West campus"},
	}
}

func TestControllerSeedsGreeting(t *testing.T) {
	c := newTestController(t, testConfig(), newFakeGateway())

	msgs := c.Messages(models.ModeChat)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Hello! I'm your Service Chatbot. How can I help you today?", msgs[0].Text)
	assert.Equal(t, models.SenderBot, msgs[0].Sender)
	assert.Equal(t, models.ModeChat, c.Mode())
}

func TestStartTrivia(t *testing.T) {
	gw := newFakeGateway()
	gw.startResult = &gateway.StartResult{Active: true, Score: 0, Total: 5, Current: question(1, 5)}
	c := newTestController(t, testConfig(), gw)

	require.NoError(t, c.StartTrivia(context.Background(), 5))

	snap := c.Snapshot()
	assert.Equal(t, models.ModeTrivia, snap.Mode)
	assert.True(t, snap.Trivia.Active)
	assert.Equal(t, 0, snap.Trivia.Score)
	assert.Equal(t, 0, snap.Trivia.TotalAnswered)
	require.NotNil(t, snap.Trivia.CurrentQuestion)
	assert.Equal(t, 1, snap.Trivia.CurrentQuestion.Number)
	assert.Equal(t, 5, snap.Trivia.CurrentQuestion.Total)
	assert.False(t, snap.Busy)

	msgs := c.Messages(models.ModeTrivia)
	require.Len(t, msgs, 2)
	assert.Equal(t, "🎯 Trivia Game Started! (5 questions)\nType A, B, C, or D to answer each question.", msgs[0].Text)
	assert.Contains(t, msgs[1].Text, "Question 1/5:")
	assert.Contains(t, msgs[1].Text, "A) North campus")
	assert.Contains(t, msgs[1].Text, "Type A, B, C, or D to answer.")
}

func TestStartTriviaAppliesCountPolicy(t *testing.T) {
	gw := newFakeGateway()
	gw.startResult = &gateway.StartResult{Active: true, Current: question(1, 5)}
	c := newTestController(t, testConfig(), gw)

	require.NoError(t, c.StartTrivia(context.Background(), 0))
	assert.Equal(t, 5, gw.lastStartCount)

	require.NoError(t, c.EndTrivia(context.Background()))
	require.NoError(t, c.StartTrivia(context.Background(), 50))
	assert.Equal(t, 20, gw.lastStartCount)
}

func TestStartTriviaFailure(t *testing.T) {
	gw := newFakeGateway()
	gw.startErr = &gateway.TransportError{Op: "start_trivia", Status: 400, Message: "Not enough questions available"}
	c := newTestController(t, testConfig(), gw)

	err := c.StartTrivia(context.Background(), 5)
	require.Error(t, err)

	snap := c.Snapshot()
	assert.False(t, snap.Trivia.Active)
	assert.False(t, snap.Busy)
	assert.NotEmpty(t, snap.LastError)

	msgs := c.Messages(models.ModeTrivia)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Failed to start trivia game. Please try again.", msgs[0].Text)
}

func TestIncorrectAnswerAdvancesGame(t *testing.T) {
	gw := newFakeGateway()
	gw.startResult = &gateway.StartResult{Active: true, Current: question(3, 5)}
	c := newTestController(t, testConfig(), gw)
	require.NoError(t, c.StartTrivia(context.Background(), 5))

	gw.answerResult = &gateway.AnswerResult{
		Correct:       false,
		CorrectAnswer: "Paris",
		Score:         2,
		Total:         3,
		Next:          question(4, 5),
	}
	require.NoError(t, c.Submit(context.Background(), "b"))

	// Choice is case-normalized before it goes out.
	assert.Equal(t, "B", gw.lastChoice)

	snap := c.Snapshot()
	assert.True(t, snap.Trivia.Active)
	assert.Equal(t, 2, snap.Trivia.Score)
	assert.Equal(t, 3, snap.Trivia.TotalAnswered)
	assert.Equal(t, 4, snap.Trivia.CurrentQuestion.Number)

	msgs := c.Messages(models.ModeTrivia)
	// banner, question 3, user answer, feedback, question 4
	require.Len(t, msgs, 5)
	assert.Equal(t, "b", msgs[2].Text)
	assert.True(t, msgs[2].IsTriviaContext)
	assert.Equal(t, "❌ Incorrect. The correct answer was: Paris", msgs[3].Text)
	assert.Contains(t, msgs[4].Text, "Question 4/5:")
}

func TestFinalAnswerEndsGame(t *testing.T) {
	gw := newFakeGateway()
	gw.startResult = &gateway.StartResult{Active: true, Current: question(10, 10)}
	c := newTestController(t, testConfig(), gw)
	require.NoError(t, c.StartTrivia(context.Background(), 10))

	gw.answerResult = &gateway.AnswerResult{
		Correct:       true,
		CorrectAnswer: "North campus",
		Score:         8,
		Total:         10,
		Final:         &models.FinalResult{Score: 8, Total: 10, Percentage: 80.0, Message: "Great job!"},
	}
	require.NoError(t, c.Submit(context.Background(), "A"))

	snap := c.Snapshot()
	assert.False(t, snap.Trivia.Active)
	assert.Nil(t, snap.Trivia.CurrentQuestion)

	msgs := c.Messages(models.ModeTrivia)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "🎉 Game Over! Final score: 8/10 (80.0%) - Great job!", last.Text)
	assert.Equal(t, "✅ Correct!", msgs[len(msgs)-2].Text)
}

func TestAskFailureLeavesSessionIntact(t *testing.T) {
	gw := newFakeGateway()
	gw.askErr = &gateway.TransportError{Op: "ask", Err: errors.New("connection refused")}
	c := newTestController(t, testConfig(), gw)

	err := c.Submit(context.Background(), "What are library hours?")
	require.Error(t, err)

	snap := c.Snapshot()
	assert.False(t, snap.Busy)
	assert.NotEmpty(t, snap.LastError)
	assert.False(t, snap.Trivia.Active)

	msgs := c.Messages(models.ModeChat)
	// greeting, user message, failure message
	require.Len(t, msgs, 3)
	assert.Equal(t, "What are library hours?", msgs[1].Text)
	assert.Equal(t, "Sorry, I encountered an error. Please try again.", msgs[2].Text)
	assert.Equal(t, models.ModeChat, msgs[2].Mode)
}

func TestAskSuccessIsCached(t *testing.T) {
	gw := newFakeGateway()
	gw.askResult = &gateway.AskResult{Answer: "The library opens at 8am.", Type: "answer"}
	c := newTestController(t, testConfig(), gw)

	require.NoError(t, c.Submit(context.Background(), "When does the library open?"))
	require.NoError(t, c.Submit(context.Background(), "When does the library open?"))

	// Second ask is served from cache.
	assert.Equal(t, 1, gw.count("ask"))

	msgs := c.Messages(models.ModeChat)
	require.Len(t, msgs, 5)
	assert.Equal(t, "The library opens at 8am.", msgs[2].Text)
	assert.Equal(t, "The library opens at 8am.", msgs[4].Text)
}

func TestAskPiggybackStartsTrivia(t *testing.T) {
	gw := newFakeGateway()
	gw.askResult = &gateway.AskResult{
		Answer:         "Trivia game started! Here's your first question:",
		Type:           "trivia_start",
		TriviaQuestion: question(1, 5),
	}
	c := newTestController(t, testConfig(), gw)

	require.NoError(t, c.Submit(context.Background(), "trivia"))

	snap := c.Snapshot()
	assert.True(t, snap.Trivia.Active)
	require.NotNil(t, snap.Trivia.CurrentQuestion)
	assert.Equal(t, 1, snap.Trivia.CurrentQuestion.Number)

	trivia := c.Messages(models.ModeTrivia)
	require.Len(t, trivia, 1)
	assert.Contains(t, trivia[0].Text, "Question 1/5:")
}

func TestEmptyInputRejectedLocally(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(t, testConfig(), gw)

	err := c.Submit(context.Background(), "   ")
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	// No log entry, no gateway traffic.
	assert.Len(t, c.Timeline(), 1)
	assert.Equal(t, 0, gw.count("ask"))
	assert.Equal(t, "Please enter a message", c.Snapshot().LastError)
}

func TestSubmitWithoutActiveTriviaRejectedLocally(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(t, testConfig(), gw)
	require.NoError(t, c.SetMode(models.ModeTrivia))

	err := c.Submit(context.Background(), "A")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 0, gw.count("answer_trivia"))
	assert.Equal(t, 0, gw.count("ask"))
	assert.Len(t, c.Timeline(), 1)
}

func TestBusyRejectsOverlappingSubmission(t *testing.T) {
	gw := newFakeGateway()
	gw.askResult = &gateway.AskResult{Answer: "done", Type: "answer"}
	gw.askEntered = make(chan struct{})
	gw.askRelease = make(chan struct{})
	c := newTestController(t, testConfig(), gw)

	entered := gw.askEntered
	done := make(chan error, 1)
	go func() {
		done <- c.Submit(context.Background(), "slow question")
	}()

	<-entered
	assert.True(t, c.Snapshot().Busy)

	err := c.Submit(context.Background(), "second question")
	assert.ErrorIs(t, err, ErrBusy)

	close(gw.askRelease)
	require.NoError(t, <-done)

	assert.False(t, c.Snapshot().Busy)
	assert.Equal(t, 1, gw.count("ask"))
}

func TestEndTriviaTwiceIsHarmless(t *testing.T) {
	gw := newFakeGateway()
	gw.startResult = &gateway.StartResult{Active: true, Current: question(1, 5)}
	gw.endResult = &gateway.EndResult{
		Ended: true,
		Final: &models.FinalResult{Score: 1, Total: 2, Percentage: 50.0, Message: "Not bad!"},
	}
	c := newTestController(t, testConfig(), gw)
	require.NoError(t, c.StartTrivia(context.Background(), 5))

	require.NoError(t, c.EndTrivia(context.Background()))
	require.NoError(t, c.EndTrivia(context.Background()))

	// Second end is a local no-op.
	assert.Equal(t, 1, gw.count("end_trivia"))

	snap := c.Snapshot()
	assert.False(t, snap.Trivia.Active)
	assert.False(t, snap.Busy)

	msgs := c.Messages(models.ModeTrivia)
	last := msgs[len(msgs)-1]
	assert.Equal(t, "Trivia game ended. Final score: 1/2 (50.0%) - Not bad!", last.Text)
}

func TestSetModeLeavesTriviaAlone(t *testing.T) {
	gw := newFakeGateway()
	gw.startResult = &gateway.StartResult{Active: true, Current: question(1, 5)}
	c := newTestController(t, testConfig(), gw)
	require.NoError(t, c.StartTrivia(context.Background(), 5))

	require.NoError(t, c.SetMode(models.ModeChat))
	require.NoError(t, c.SetMode(models.ModeManage))

	snap := c.Snapshot()
	assert.True(t, snap.Trivia.Active)
	assert.Equal(t, models.ModeManage, snap.Mode)

	assert.Error(t, c.SetMode(models.Mode("bogus")))
}

func TestAddQuestionRefreshesCatalog(t *testing.T) {
	gw := newFakeGateway()
	gw.questions = []string{"what are the library hours?", "where is the gym?"}
	c := newTestController(t, testConfig(), gw)

	require.NoError(t, c.AddQuestion(context.Background(), "Where is the gym?", "Building C"))

	assert.Equal(t, 1, gw.count("add_question"))
	assert.Equal(t, 1, gw.count("list_questions"))

	snap := c.Snapshot()
	assert.Equal(t, gw.questions, snap.Catalog)

	msgs := c.Messages(models.ModeManage)
	require.Len(t, msgs, 1)
	assert.Equal(t, `Question added successfully: "Where is the gym?"`, msgs[0].Text)
}

func TestAddQuestionValidation(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(t, testConfig(), gw)

	err := c.AddQuestion(context.Background(), "question only", "")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 0, gw.count("add_question"))
}

func TestRemoveQuestionValidation(t *testing.T) {
	gw := newFakeGateway()
	c := newTestController(t, testConfig(), gw)

	err := c.RemoveQuestion(context.Background(), "  ")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 0, gw.count("remove_question"))
	assert.Equal(t, "Please select a question to remove", c.Snapshot().LastError)
}

func TestUploadQuestionSet(t *testing.T) {
	gw := newFakeGateway()
	gw.questions = []string{"q1"}
	c := newTestController(t, testConfig(), gw)

	err := c.UploadQuestionSet(context.Background(), "", nil)
	require.Error(t, err)
	assert.True(t, IsValidation(err))

	require.NoError(t, c.UploadQuestionSet(context.Background(), "questions.csv", []byte("question,answer1\n")))
	msgs := c.Messages(models.ModeManage)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Successfully imported 3 questions", msgs[0].Text)
	assert.Equal(t, 1, gw.count("list_questions"))
}

func TestClearLogKeepsModeTag(t *testing.T) {
	gw := newFakeGateway()
	gw.askResult = &gateway.AskResult{Answer: "hi", Type: "answer"}
	c := newTestController(t, testConfig(), gw)
	require.NoError(t, c.Submit(context.Background(), "hello"))
	require.NoError(t, c.SetMode(models.ModeManage))

	c.ClearLog()

	all := c.Timeline()
	require.Len(t, all, 1)
	assert.Equal(t, "Chat cleared. How can I help you?", all[0].Text)
	assert.Equal(t, models.ModeManage, all[0].Mode)
}

func TestRateLimitedSubmissionIsRejected(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 1, Burst: 1}

	gw := newFakeGateway()
	gw.askResult = &gateway.AskResult{Answer: "ok", Type: "answer"}
	c := newTestController(t, cfg, gw)

	require.NoError(t, c.Submit(context.Background(), "first"))

	err := c.Submit(context.Background(), "second")
	require.Error(t, err)
	assert.True(t, IsValidation(err))
	assert.Equal(t, 1, gw.count("ask"))
	assert.False(t, c.Snapshot().Busy)
}

func TestReconcileEndsStaleServerGame(t *testing.T) {
	gw := newFakeGateway()
	gw.statusResult = &gateway.StatusResult{Active: true, Score: 3, Total: 4}
	c := newTestController(t, testConfig(), gw)

	require.NoError(t, c.ReconcileTriviaStatus(context.Background()))
	assert.Equal(t, 1, gw.count("end_trivia"))

	gw.statusResult = &gateway.StatusResult{Active: false}
	require.NoError(t, c.ReconcileTriviaStatus(context.Background()))
	assert.Equal(t, 1, gw.count("end_trivia"))
}
