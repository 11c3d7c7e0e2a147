package sandbox

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// MaxHistory is the number of runs kept, newest first
const MaxHistory = 50

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type HistoryItem struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Language  string `json:"language"`
	Code      string `json:"code"`
	Output    string `json:"output"`
	Status    string `json:"status"`
}

// NewHistoryItem records a finished run. Runner failures are stored with their message.
func NewHistoryItem(lang Language, code string, resp RunResponse, now time.Time) HistoryItem {
	ms := now.UnixMilli()
	item := HistoryItem{
		ID:        strconv.FormatInt(ms, 10),
		Timestamp: ms,
		Language:  lang.Name,
		Code:      code,
		Status:    StatusError,
	}

	if resp.Code == 0 {
		item.Output = resp.Data.Output
		if item.Output == "" {
			item.Output = resp.Data.Message
		}
		if resp.Data.Code == 0 {
			item.Status = StatusSuccess
		}
		return item
	}

	item.Output = resp.Data.Message
	if item.Output == "" {
		item.Output = "execution failed"
	}
	return item
}

// History is a capped run list persisted as a JSON file
type History struct {
	mu    sync.Mutex
	path  string
	items []HistoryItem
}

// LoadHistory reads path. A missing or unreadable file starts an empty history.
func LoadHistory(path string) *History {
	h := &History{path: path}

	var items []HistoryItem
	if err := readJSON(path, &items); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", path).Msg("Sandbox history unreadable, starting empty")
		}
		return h
	}
	if len(items) > MaxHistory {
		items = items[:MaxHistory]
	}
	h.items = items
	return h
}

// Add puts item first, drops the oldest beyond MaxHistory and saves
func (h *History) Add(item HistoryItem) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	items := append([]HistoryItem{item}, h.items...)
	if len(items) > MaxHistory {
		items = items[:MaxHistory]
	}
	h.items = items
	return writeJSON(h.path, h.items)
}

// Items returns a copy, newest first
func (h *History) Items() []HistoryItem {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]HistoryItem, len(h.items))
	copy(out, h.items)
	return out
}

// Clear empties the history and saves
func (h *History) Clear() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = nil
	return writeJSON(h.path, []HistoryItem{})
}

// Editor themes
const (
	ThemeLight = "vs"
	ThemeDark  = "vs-dark"
)

// PersistedState is the last editor state
type PersistedState struct {
	LangID      string `json:"langId"`
	Code        string `json:"code"`
	Stdin       string `json:"stdin"`
	EditorTheme string `json:"editorTheme"`
}

// StatePath places the state file next to the history file
func StatePath(historyPath string) string {
	return filepath.Join(filepath.Dir(historyPath), "sandbox_state.json")
}

// LoadState returns the saved state, or false when there is none usable
func LoadState(path string) (PersistedState, bool) {
	var st PersistedState
	if err := readJSON(path, &st); err != nil {
		return PersistedState{}, false
	}
	if st.EditorTheme != ThemeLight && st.EditorTheme != ThemeDark {
		st.EditorTheme = ThemeLight
	}
	return st, true
}

func SaveState(path string, st PersistedState) error {
	return writeJSON(path, st)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// writeJSON replaces path atomically
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
