package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/service-chatbot-go/internal/config"
	"github.com/service-chatbot-go/internal/middleware"
	"github.com/service-chatbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// Service is the single abstraction point for all calls to the
// knowledge service. Every operation is a single request/response with
// no client-side retry; callers decide how to surface failure.
type Service interface {
	Ask(ctx context.Context, question string) (*AskResult, error)
	StartTrivia(ctx context.Context, count int) (*StartResult, error)
	AnswerTrivia(ctx context.Context, choice string) (*AnswerResult, error)
	EndTrivia(ctx context.Context) (*EndResult, error)
	TriviaStatus(ctx context.Context) (*StatusResult, error)
	ListQuestions(ctx context.Context) ([]string, error)
	ListTriviaQuestions(ctx context.Context) ([]string, error)
	AddQuestion(ctx context.Context, question, answer string) (string, error)
	RemoveQuestion(ctx context.Context, question string) (string, error)
	AddTriviaQuestion(ctx context.Context, q TriviaQuestionInput) (string, error)
	UploadQuestionSet(ctx context.Context, filename string, contents []byte) (*UploadResult, error)
}

// AskResult is the outcome of a free-form question. Trivia fields are
// set when the server piggybacks game activity onto a chat exchange
// (typing "trivia" in chat starts or ends a game server-side).
type AskResult struct {
	Answer         string
	Type           string
	TriviaActive   *bool
	TriviaQuestion *models.Question
	TriviaResult   *models.FinalResult
	NextQuestion   *models.Question
}

// StartResult is the outcome of starting a trivia game.
type StartResult struct {
	Active  bool
	Score   int
	Total   int
	Current *models.Question
}

// AnswerResult is the outcome of answering the current trivia question.
// Exactly one of Next and Final is set.
type AnswerResult struct {
	Correct       bool
	CorrectAnswer string
	Score         int
	Total         int
	Next          *models.Question
	Final         *models.FinalResult
}

// EndResult is the outcome of ending a trivia game. Ended is false when
// the server had no active game.
type EndResult struct {
	Ended bool
	Final *models.FinalResult
}

// StatusResult is the server-side view of the trivia session.
type StatusResult struct {
	Active bool
	Score  int
	Total  int
}

// UploadResult is the outcome of a bulk CSV upload.
type UploadResult struct {
	Message    string
	CountAdded int
}

// TriviaQuestionInput describes a new trivia question to add.
type TriviaQuestionInput struct {
	Question      string
	OptionA       string
	OptionB       string
	OptionC       string
	OptionD       string
	CorrectAnswer string
}

// Client speaks JSON over HTTP to the knowledge service.
type Client struct {
	baseURL        string
	requestTimeout time.Duration
	httpClient     *http.Client
	metrics        *middleware.Metrics
	logger         *logrus.Logger
}

// NewClient creates a gateway client for the configured service address.
func NewClient(cfg *config.ServerConfig, metrics *middleware.Metrics, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:        strings.TrimSuffix(cfg.BaseURL, "/"),
		requestTimeout: cfg.RequestTimeout,
		httpClient: &http.Client{
			Timeout: cfg.ClientTimeout,
		},
		metrics: metrics,
		logger:  logger,
	}
}

type askResponse struct {
	Response       string              `json:"response"`
	Type           string              `json:"type"`
	TriviaActive   *bool               `json:"trivia_active"`
	TriviaQuestion *models.Question    `json:"trivia_question"`
	TriviaResult   *models.FinalResult `json:"trivia_result"`
	NextQuestion   *models.Question    `json:"next_question"`
}

// Ask sends a free-form question to the knowledge service.
func (c *Client) Ask(ctx context.Context, question string) (*AskResult, error) {
	const op = "ask"
	var out askResponse
	if err := c.postJSON(ctx, op, "/api/ask", map[string]string{"question": question}, &out); err != nil {
		return nil, err
	}
	if out.Response == "" {
		return nil, &ProtocolError{Op: op, Reason: "response text missing"}
	}
	return &AskResult{
		Answer:         out.Response,
		Type:           out.Type,
		TriviaActive:   out.TriviaActive,
		TriviaQuestion: out.TriviaQuestion,
		TriviaResult:   out.TriviaResult,
		NextQuestion:   out.NextQuestion,
	}, nil
}

type startResponse struct {
	Status          string           `json:"status"`
	GameActive      bool             `json:"game_active"`
	Score           int              `json:"score"`
	Total           int              `json:"total"`
	CurrentQuestion *models.Question `json:"current_question"`
}

// StartTrivia asks the server to begin a game of count questions.
func (c *Client) StartTrivia(ctx context.Context, count int) (*StartResult, error) {
	const op = "start_trivia"
	var out startResponse
	if err := c.postJSON(ctx, op, "/api/trivia/start", map[string]int{"num_questions": count}, &out); err != nil {
		return nil, err
	}
	if !out.GameActive || out.CurrentQuestion == nil {
		return nil, &ProtocolError{Op: op, Reason: "started game has no current question"}
	}
	return &StartResult{
		Active:  out.GameActive,
		Score:   out.Score,
		Total:   out.Total,
		Current: out.CurrentQuestion,
	}, nil
}

type answerResponse struct {
	Status        string              `json:"status"`
	Result        string              `json:"result"`
	CorrectAnswer string              `json:"correct_answer"`
	Score         int                 `json:"score"`
	Total         int                 `json:"total"`
	NextQuestion  *models.Question    `json:"next_question"`
	FinalResult   *models.FinalResult `json:"final_result"`
}

// AnswerTrivia submits a choice (A-D) for the current question.
func (c *Client) AnswerTrivia(ctx context.Context, choice string) (*AnswerResult, error) {
	const op = "answer_trivia"
	var out answerResponse
	if err := c.postJSON(ctx, op, "/api/trivia/answer", map[string]string{"answer": choice}, &out); err != nil {
		return nil, err
	}
	if out.Result != "correct" && out.Result != "incorrect" {
		return nil, &ProtocolError{Op: op, Reason: fmt.Sprintf("unexpected result %q", out.Result)}
	}
	if out.NextQuestion == nil && out.FinalResult == nil {
		return nil, &ProtocolError{Op: op, Reason: "neither next question nor final result present"}
	}
	if out.Score > out.Total {
		return nil, &ProtocolError{Op: op, Reason: fmt.Sprintf("score %d exceeds answered count %d", out.Score, out.Total)}
	}
	return &AnswerResult{
		Correct:       out.Result == "correct",
		CorrectAnswer: out.CorrectAnswer,
		Score:         out.Score,
		Total:         out.Total,
		Next:          out.NextQuestion,
		Final:         out.FinalResult,
	}, nil
}

type endResponse struct {
	Status     string              `json:"status"`
	FinalScore *models.FinalResult `json:"final_score"`
}

// EndTrivia terminates the game and returns the final score snapshot.
func (c *Client) EndTrivia(ctx context.Context) (*EndResult, error) {
	const op = "end_trivia"
	var out endResponse
	if err := c.postJSON(ctx, op, "/api/trivia/end", map[string]string{}, &out); err != nil {
		return nil, err
	}
	if out.Status == "no_active_game" {
		return &EndResult{Ended: false}, nil
	}
	if out.FinalScore == nil {
		return nil, &ProtocolError{Op: op, Reason: "ended game has no final score"}
	}
	return &EndResult{Ended: true, Final: out.FinalScore}, nil
}

type statusResponse struct {
	Active bool `json:"active"`
	Score  int  `json:"score"`
	Total  int  `json:"total"`
}

// TriviaStatus reports the server-side trivia state, used to reconcile
// a fresh client session against a server with a game left running.
func (c *Client) TriviaStatus(ctx context.Context) (*StatusResult, error) {
	const op = "trivia_status"
	var out statusResponse
	if err := c.getJSON(ctx, op, "/api/trivia/status", &out); err != nil {
		return nil, err
	}
	return &StatusResult{Active: out.Active, Score: out.Score, Total: out.Total}, nil
}

// ListQuestions returns the ordered catalog of knowledge-base questions.
func (c *Client) ListQuestions(ctx context.Context) ([]string, error) {
	const op = "list_questions"
	var out struct {
		Questions []string `json:"questions"`
	}
	if err := c.getJSON(ctx, op, "/api/question/list", &out); err != nil {
		return nil, err
	}
	return out.Questions, nil
}

// ListTriviaQuestions returns the catalog of trivia questions.
func (c *Client) ListTriviaQuestions(ctx context.Context) ([]string, error) {
	const op = "list_trivia_questions"
	var out struct {
		TriviaQuestions []string `json:"trivia_questions"`
	}
	if err := c.getJSON(ctx, op, "/api/trivia/list", &out); err != nil {
		return nil, err
	}
	return out.TriviaQuestions, nil
}

type ackResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// AddQuestion adds a question/answer pair to the knowledge base.
func (c *Client) AddQuestion(ctx context.Context, question, answer string) (string, error) {
	const op = "add_question"
	var out ackResponse
	payload := map[string]string{"question": question, "answer": answer}
	if err := c.postJSON(ctx, op, "/api/question/add", payload, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// RemoveQuestion removes a question from the knowledge base.
func (c *Client) RemoveQuestion(ctx context.Context, question string) (string, error) {
	const op = "remove_question"
	var out ackResponse
	if err := c.postJSON(ctx, op, "/api/question/remove", map[string]string{"question": question}, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// AddTriviaQuestion adds a multiple-choice question to the trivia bank.
func (c *Client) AddTriviaQuestion(ctx context.Context, q TriviaQuestionInput) (string, error) {
	const op = "add_trivia_question"
	var out ackResponse
	payload := map[string]string{
		"question":       q.Question,
		"option_a":       q.OptionA,
		"option_b":       q.OptionB,
		"option_c":       q.OptionC,
		"option_d":       q.OptionD,
		"correct_answer": q.CorrectAnswer,
	}
	if err := c.postJSON(ctx, op, "/api/trivia/add", payload, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

type uploadResponse struct {
	Status     string `json:"status"`
	Message    string `json:"message"`
	CountAdded int    `json:"count_added"`
}

// UploadQuestionSet uploads a CSV of questions as a multipart file.
func (c *Client) UploadQuestionSet(ctx context.Context, filename string, contents []byte) (*UploadResult, error) {
	const op = "upload_question_set"

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to build multipart body: %w", err)}
	}
	if _, err := part.Write(contents); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to write file contents: %w", err)}
	}
	if err := writer.Close(); err != nil {
		return nil, &TransportError{Op: op, Err: fmt.Errorf("failed to finalize multipart body: %w", err)}
	}

	var out uploadResponse
	if err := c.do(ctx, op, http.MethodPost, "/api/upload", &buf, writer.FormDataContentType(), &out); err != nil {
		return nil, err
	}
	return &UploadResult{Message: out.Message, CountAdded: out.CountAdded}, nil
}

func (c *Client) postJSON(ctx context.Context, op, path string, payload interface{}, out interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
	}
	return c.do(ctx, op, http.MethodPost, path, bytes.NewReader(jsonData), "application/json", out)
}

func (c *Client) getJSON(ctx context.Context, op, path string, out interface{}) error {
	return c.do(ctx, op, http.MethodGet, path, nil, "", out)
}

// do performs a single request/response exchange. Every suspension in
// the client core happens here; a per-request timeout bounds how long
// the busy flag can be held by a hung call.
func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out interface{}) error {
	reqCtx := ctx
	if c.requestTimeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, c.requestTimeout)
		defer cancel()
	}

	url := c.baseURL + path
	req, err := http.NewRequestWithContext(reqCtx, method, url, body)
	if err != nil {
		return &TransportError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	c.logger.WithFields(logrus.Fields{
		"op":     op,
		"method": method,
		"url":    url,
	}).Debug("Sending gateway request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordGatewayRequest(op, "network_error", time.Since(start))
		return &TransportError{Op: op, Err: fmt.Errorf("failed to send request: %w", err)}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.RecordGatewayRequest(op, "read_error", time.Since(start))
		return &TransportError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.metrics.RecordGatewayRequest(op, "http_error", time.Since(start))

		// Non-2xx bodies carry {"error": "..."}; surface it as the reason.
		var errBody struct {
			Error string `json:"error"`
		}
		message := strings.TrimSpace(string(respBody))
		if jsonErr := json.Unmarshal(respBody, &errBody); jsonErr == nil && errBody.Error != "" {
			message = errBody.Error
		}

		c.logger.WithFields(logrus.Fields{
			"op":     op,
			"status": resp.StatusCode,
			"error":  message,
		}).Warn("Gateway request rejected")

		return &TransportError{Op: op, Status: resp.StatusCode, Message: message}
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		c.metrics.RecordGatewayRequest(op, "parse_error", time.Since(start))
		return &TransportError{Op: op, Err: fmt.Errorf("failed to parse response: %w", err)}
	}

	c.metrics.RecordGatewayRequest(op, "success", time.Since(start))
	return nil
}
