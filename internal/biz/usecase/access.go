package usecase

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/DevRickLin/feishu-chat-analyst/internal/biz/domain"
	"github.com/DevRickLin/feishu-chat-analyst/internal/metrics"
)

// AccessController maintains the authorized-user set.
// The first entry is the main admin; it is fixed for the process lifetime.
type AccessController struct {
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu    sync.RWMutex
	users []string
}

// NewAccessController seeds the set from configuration. Blank and duplicate ids are dropped.
func NewAccessController(initial []string, m *metrics.Metrics, logger *slog.Logger) (*AccessController, error) {
	var users []string
	seen := make(map[string]struct{}, len(initial))
	for _, id := range initial {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		users = append(users, id)
	}
	if len(users) == 0 {
		return nil, fmt.Errorf("at least one authorized user is required")
	}

	logger.Info("access controller initialized", "main_admin", users[0], "authorized", len(users))
	return &AccessController{metrics: m, logger: logger, users: users}, nil
}

// IsAuthorized reports whether userID may use privileged commands
func (c *AccessController) IsAuthorized(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.indexOf(userID) >= 0
}

// IsMainAdmin reports whether userID is the main admin
func (c *AccessController) IsMainAdmin(userID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return userID != "" && userID == c.users[0]
}

// MainAdmin returns the main admin id
func (c *AccessController) MainAdmin() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.users[0]
}

// List returns the authorized users, main admin first
func (c *AccessController) List() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.users))
	copy(out, c.users)
	return out
}

// AddUser authorizes target. Only the main admin may call it.
// It reports whether the set changed; adding an existing user is a no-op.
func (c *AccessController) AddUser(caller, target string) (bool, error) {
	target = strings.TrimSpace(target)

	c.mu.Lock()
	defer c.mu.Unlock()

	if caller != c.users[0] {
		c.metrics.PermissionDeniedTotal.WithLabelValues("add_user").Inc()
		return false, fmt.Errorf("add user: %w", domain.ErrPermissionDenied)
	}
	if target == "" {
		return false, fmt.Errorf("add user: empty id: %w", domain.ErrInvalidTarget)
	}
	if c.indexOf(target) >= 0 {
		return false, nil
	}

	c.users = append(c.users, target)
	c.metrics.AccessChangesTotal.WithLabelValues("add").Inc()
	c.logger.Info("authorized user added", "user_id", target, "by", caller)
	return true, nil
}

// RemoveUser revokes target. The main admin can never be removed, whoever asks.
// It reports whether the set changed; removing an absent user is a no-op.
func (c *AccessController) RemoveUser(caller, target string) (bool, error) {
	target = strings.TrimSpace(target)

	c.mu.Lock()
	defer c.mu.Unlock()

	if target == c.users[0] {
		return false, fmt.Errorf("remove user: main admin: %w", domain.ErrInvalidTarget)
	}
	if caller != c.users[0] {
		c.metrics.PermissionDeniedTotal.WithLabelValues("remove_user").Inc()
		return false, fmt.Errorf("remove user: %w", domain.ErrPermissionDenied)
	}
	if target == "" {
		return false, fmt.Errorf("remove user: empty id: %w", domain.ErrInvalidTarget)
	}

	i := c.indexOf(target)
	if i < 0 {
		return false, nil
	}

	c.users = append(c.users[:i], c.users[i+1:]...)
	c.metrics.AccessChangesTotal.WithLabelValues("remove").Inc()
	c.logger.Info("authorized user removed", "user_id", target, "by", caller)
	return true, nil
}

// indexOf must be called with mu held
func (c *AccessController) indexOf(userID string) int {
	for i, id := range c.users {
		if id == userID {
			return i
		}
	}
	return -1
}
