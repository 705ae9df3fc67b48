package i18n

import (
	"embed"
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"github.com/service-chatbot-go/internal/config"
	"golang.org/x/text/language"
)

//go:embed locales/*.json
var localeFS embed.FS

// Localizer manages internationalization of client-originated text.
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a new localizer from the embedded locale bundle.
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	// Load language files
	for _, lang := range cfg.Languages {
		if _, err := bundle.LoadMessageFileFS(localeFS, fmt.Sprintf("locales/%s.json", lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns localized message
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID // Fallback to message ID
	}

	return msg
}

// Message IDs
const (
	MsgGreeting               = "greeting"
	MsgClearGreeting          = "clear_greeting"
	MsgGenericError           = "generic_error"
	MsgTriviaStartFailed      = "trivia_start_failed"
	MsgTriviaBanner           = "trivia_banner"
	MsgTriviaCorrect          = "trivia_correct"
	MsgTriviaIncorrect        = "trivia_incorrect"
	MsgTriviaQuestion         = "trivia_question"
	MsgTriviaGameOver         = "trivia_game_over"
	MsgTriviaEnded            = "trivia_ended"
	MsgQuestionAdded          = "question_added"
	MsgQuestionRemoved        = "question_removed"
	MsgEmptyInput             = "empty_input"
	MsgMissingQuestionAnswer  = "missing_question_answer"
	MsgMissingRemoveSelection = "missing_remove_selection"
	MsgMissingUploadFile      = "missing_upload_file"
	MsgRateLimitExceeded      = "rate_limit_exceeded"
	MsgBusy                   = "busy"
	MsgHelp                   = "help"
)
