package command

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/whisper/spamguard/internal/audit"
	"github.com/whisper/spamguard/internal/catalog"
	"github.com/whisper/spamguard/internal/moderation"
)

const (
	statsWindow   = 24 * time.Hour
	topTermsShown = 3
)

// Reply texts.
const (
	WelcomeText = `🤖 Anti-spam bot started!

📝 Admin commands:
• /add <keyword> - Add keyword
• /delete <keyword> - Delete keyword
• /list - View keyword list
• /stats - View statistics

⚡ Functions:
• Auto detect and delete spam/ads
• Support gambling, adult and crypto scam filtering

💡 Usage:
Please ensure bot has delete message admin permissions`

	HealthText = "🟢 Bot running normally"

	addUsageText    = "❌ Please provide keyword to add\nUsage: /add <keyword>"
	deleteUsageText = "❌ Please provide keyword to delete\nUsage: /delete <keyword>"
	saveFailedText  = "❌ Failed to save keyword list, try again later"
)

// Catalog is the keyword store the admin commands operate on.
type Catalog interface {
	Add(keyword, category string) (bool, error)
	Remove(keyword string) (bool, error)
	Snapshot() catalog.Snapshot
}

// History reports recent moderation activity in a chat. *audit.Store
// satisfies it.
type History interface {
	CountRecent(ctx context.Context, chatID int64, window time.Duration) (int, error)
	TopTerms(ctx context.Context, chatID int64, window time.Duration, limit int) ([]audit.TermCount, error)
}

// Handlers holds the built-in command handlers.
type Handlers struct {
	catalog Catalog
	history History
	logger  *logrus.Entry
}

// NewHandlers creates the handlers. history may be nil when no audit store
// is configured.
func NewHandlers(c Catalog, history History, logger *logrus.Logger) *Handlers {
	return &Handlers{
		catalog: c,
		history: history,
		logger:  logger.WithField("component", "command"),
	}
}

// Register installs every built-in command on d. Catalog commands are
// wrapped in RequirePrivilege.
func (h *Handlers) Register(d *Dispatcher, checker moderation.PrivilegeChecker, allowPrivate []int64) {
	admin := func(fn Handler) Handler { return RequirePrivilege(checker, allowPrivate, fn) }

	d.Register("start", h.Start)
	d.Register("health", h.Health)
	d.Register("add", admin(h.Add))
	d.Register("delete", admin(h.Delete))
	d.Register("list", admin(h.List))
	d.Register("stats", admin(h.Stats))
}

func (h *Handlers) Start(context.Context, Request) string { return WelcomeText }

func (h *Handlers) Health(context.Context, Request) string { return HealthText }

// Add adds the space-joined arguments as a custom keyword.
func (h *Handlers) Add(_ context.Context, req Request) string {
	keyword := strings.Join(req.Args, " ")
	if keyword == "" {
		return addUsageText
	}

	added, err := h.catalog.Add(keyword, catalog.CategoryCustom)
	switch {
	case errors.Is(err, catalog.ErrEmptyKeyword):
		return addUsageText
	case err != nil:
		h.logger.WithError(err).WithField("keyword", keyword).Error("failed to add keyword")
		return saveFailedText
	case !added:
		return "❌ Keyword already exists: " + keyword
	}
	h.logger.WithFields(logrus.Fields{"keyword": keyword, "user_id": req.SenderID}).Info("keyword added")
	return "✅ Added keyword: " + keyword
}

// Delete removes the space-joined arguments from the catalog.
func (h *Handlers) Delete(_ context.Context, req Request) string {
	keyword := strings.Join(req.Args, " ")
	if keyword == "" {
		return deleteUsageText
	}

	removed, err := h.catalog.Remove(keyword)
	switch {
	case err != nil:
		h.logger.WithError(err).WithField("keyword", keyword).Error("failed to delete keyword")
		return saveFailedText
	case !removed:
		return "❌ Keyword not found: " + keyword
	}
	h.logger.WithFields(logrus.Fields{"keyword": keyword, "user_id": req.SenderID}).Info("keyword deleted")
	return "✅ Deleted keyword: " + keyword
}

func (h *Handlers) List(context.Context, Request) string {
	return RenderList(h.catalog.Snapshot())
}

func (h *Handlers) Stats(ctx context.Context, req Request) string {
	view := StatsView{Snapshot: h.catalog.Snapshot(), RemovedLastDay: -1}
	if h.history == nil || !req.Chat.IsGroup() {
		return RenderStats(view)
	}

	n, err := h.history.CountRecent(ctx, req.Chat.ID, statsWindow)
	if err != nil {
		h.logger.WithError(err).Warn("failed to count recent removals")
		return RenderStats(view)
	}
	view.RemovedLastDay = n
	if n > 0 {
		top, err := h.history.TopTerms(ctx, req.Chat.ID, statsWindow, topTermsShown)
		if err != nil {
			h.logger.WithError(err).Warn("failed to load top matches")
		}
		view.TopTerms = top
	}
	return RenderStats(view)
}
