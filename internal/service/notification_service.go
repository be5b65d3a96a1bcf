package service

import (
	"bytes"
	"fmt"
	"strconv"
	"sync"
	"text/template"
	"time"

	"go.uber.org/zap"

	"vpnkey-hub/internal/model"
	"vpnkey-hub/pkg/telegram"
	tplfs "vpnkey-hub/templates"
)

type NotificationTemplate string

const (
	NotificationQuotaExceeded NotificationTemplate = "quota_exceeded"
	NotificationKeyExpired    NotificationTemplate = "key_expired"
)

var notificationTemplateFiles = map[NotificationTemplate]string{
	NotificationQuotaExceeded: "notifications/quota_exceeded.tmpl",
	NotificationKeyExpired:    "notifications/key_expired.tmpl",
}

// NotificationService delivers lifecycle events to subscribers over Telegram.
// All sends are asynchronous best-effort; a failed send never fails the
// operation that triggered it.
type NotificationService struct {
	client     *telegram.BotClient
	logger     *zap.Logger
	templateMu sync.RWMutex
	templates  map[NotificationTemplate]*template.Template

	sendFn func(chatID int64, text string, templateName NotificationTemplate)
}

func NewNotificationService(client *telegram.BotClient, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		client:    client,
		logger:    logger,
		templates: make(map[NotificationTemplate]*template.Template),
	}
}

func (s *NotificationService) NotifyQuotaExceeded(user *model.User, key *model.VPNKey) {
	s.notify(user, NotificationQuotaExceeded, map[string]string{
		"key_name":    key.Name,
		"server_name": key.ServerID.String(),
		"limit_gb":    strconv.FormatInt(key.TrafficLimit>>30, 10),
	})
}

func (s *NotificationService) NotifyKeyExpired(user *model.User, key *model.VPNKey) {
	s.notify(user, NotificationKeyExpired, map[string]string{
		"key_name":    key.Name,
		"server_name": key.ServerID.String(),
		"expired_at":  key.ExpirationDate.UTC().Format("2006-01-02"),
	})
}

func (s *NotificationService) notify(user *model.User, templateName NotificationTemplate, vars map[string]string) {
	if s == nil || user == nil || user.TelegramID == 0 {
		return
	}

	payload := cloneStringMap(vars)
	payload["username"] = user.DisplayName()

	text, err := s.renderTemplate(templateName, payload)
	if err != nil {
		s.logger.Error("render notification template failed",
			zap.String("template", string(templateName)),
			zap.Error(err),
		)
		return
	}

	if s.sendFn != nil {
		s.sendFn(user.TelegramID, text, templateName)
		return
	}
	s.sendAsyncWithRetry(user.TelegramID, text, templateName)
}

func (s *NotificationService) sendAsyncWithRetry(chatID int64, text string, templateName NotificationTemplate) {
	if s.client == nil {
		return
	}

	go func() {
		retryDelays := []time.Duration{0, 5 * time.Second, 15 * time.Second, 60 * time.Second}
		var sendErr error
		for i, delay := range retryDelays {
			if i > 0 {
				time.Sleep(delay)
			}
			sendErr = s.client.SendMarkdown(chatID, text)
			if sendErr == nil {
				return
			}
		}

		s.logger.Error("send telegram notification failed",
			zap.Int64("chat_id", chatID),
			zap.String("template", string(templateName)),
			zap.Error(sendErr),
		)
	}()
}

func (s *NotificationService) renderTemplate(templateName NotificationTemplate, vars map[string]string) (string, error) {
	tpl, err := s.loadTemplate(templateName)
	if err != nil {
		return "", err
	}

	buf := bytes.NewBuffer(nil)
	if err := tpl.Execute(buf, vars); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *NotificationService) loadTemplate(name NotificationTemplate) (*template.Template, error) {
	s.templateMu.RLock()
	if tpl, ok := s.templates[name]; ok {
		s.templateMu.RUnlock()
		return tpl, nil
	}
	s.templateMu.RUnlock()

	file, ok := notificationTemplateFiles[name]
	if !ok {
		return nil, fmt.Errorf("notification template not found: %s", name)
	}

	raw, err := tplfs.NotificationTemplateFS.ReadFile(file)
	if err != nil {
		return nil, err
	}

	tpl, err := template.New(file).Parse(string(raw))
	if err != nil {
		return nil, err
	}

	s.templateMu.Lock()
	s.templates[name] = tpl
	s.templateMu.Unlock()
	return tpl, nil
}

func cloneStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return make(map[string]string)
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
