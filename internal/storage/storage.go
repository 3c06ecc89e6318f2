// /internal/storage/storage.go
package storage

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/keshon/gremlin/datastore"
	"github.com/keshon/gremlin/internal/config"
	"github.com/rs/zerolog"
)

const (
	chatKeyPrefix       = "chat:"
	appKey              = "app"
	commandHistoryLimit = 20
)

// Chat kinds.
const (
	KindGroup   = "group"
	KindPrivate = "private"
)

type Storage struct {
	ds *datastore.DataStore
	mu sync.Mutex // serialises read-modify-write of records
}

type CommandHistoryRecord struct {
	ChannelID string    `json:"channel_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username"`
	Command   string    `json:"command"`
	Param     string    `json:"param"`
	Datetime  time.Time `json:"datetime"`
}

// Record is everything kept about one chat.
type Record struct {
	ID                  string                 `json:"id"`
	Title               string                 `json:"title"`
	Kind                string                 `json:"kind"`
	CreatedAt           time.Time              `json:"created_at"`
	Settings            map[string]any         `json:"settings"`
	CommandsHistoryList []CommandHistoryRecord `json:"cmd_history"`
}

// Chat is the registry view of a chat.
type Chat struct {
	ID     string
	Title  string
	Kind   string
	Active bool
}

func New(filePath string, log zerolog.Logger) (*Storage, error) {
	cfg := datastore.DefaultConfig(filePath)
	cfg.Logger = log
	ds, err := datastore.NewWithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return &Storage{ds: ds}, nil
}

func (s *Storage) Close() error {
	return s.ds.Close()
}

func chatKey(chatID string) string { return chatKeyPrefix + chatID }

func (s *Storage) getRecord(chatID string) (*Record, bool, error) {
	var record Record
	ok, err := s.ds.Decode(chatKey(chatID), &record)
	if err != nil || !ok {
		return nil, ok, err
	}
	if record.Settings == nil {
		record.Settings = map[string]any{}
	}
	if len(record.CommandsHistoryList) > commandHistoryLimit {
		record.CommandsHistoryList = record.CommandsHistoryList[len(record.CommandsHistoryList)-commandHistoryLimit:]
	}
	return &record, true, nil
}

// Helper function to get or create a Record for a chat; callers hold s.mu.
func (s *Storage) getOrCreateRecord(chatID string) (*Record, error) {
	record, ok, err := s.getRecord(chatID)
	if err != nil {
		return nil, err
	}
	if ok {
		return record, nil
	}
	record = &Record{
		ID:        chatID,
		Kind:      KindGroup,
		CreatedAt: time.Now(),
		Settings:  map[string]any{},
	}
	s.ds.Add(chatKey(chatID), record)
	return record, nil
}

// EnsureChat registers a chat on first sight and keeps its title current.
// created is true when the chat was not known before.
func (s *Storage) EnsureChat(chatID, title, kind string) (created bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok, err := s.getRecord(chatID)
	if err != nil {
		return false, err
	}
	if !ok {
		record = &Record{ID: chatID, CreatedAt: time.Now(), Settings: map[string]any{}}
		created = true
	}
	if title != "" {
		record.Title = title
	}
	if kind != "" {
		record.Kind = kind
	}
	if record.Kind == "" {
		record.Kind = KindGroup
	}
	s.ds.Add(chatKey(chatID), record)
	return created, nil
}

// SetChatSetting stores one per-chat setting; a nil value removes it.
func (s *Storage) SetChatSetting(chatID, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getOrCreateRecord(chatID)
	if err != nil {
		return err
	}
	if value == nil {
		delete(record.Settings, key)
	} else {
		record.Settings[key] = value
	}
	s.ds.Add(chatKey(chatID), record)
	return nil
}

// SetAppSetting stores one app-wide setting; a nil value removes it.
func (s *Storage) SetAppSetting(key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	app, err := s.appSettings()
	if err != nil {
		return err
	}
	if value == nil {
		delete(app, key)
	} else {
		app[key] = value
	}
	s.ds.Add(appKey, app)
	return nil
}

func (s *Storage) appSettings() (map[string]any, error) {
	app := map[string]any{}
	if _, err := s.ds.Decode(appKey, &app); err != nil {
		return nil, err
	}
	if app == nil {
		app = map[string]any{}
	}
	return app, nil
}

// ChatSettings returns the raw per-chat settings map.
func (s *Storage) ChatSettings(chatID string) (map[string]any, error) {
	record, ok, err := s.getRecord(chatID)
	if err != nil || !ok {
		return map[string]any{}, err
	}
	return record.Settings, nil
}

// ChatConfig resolves the effective configuration of a chat.
func (s *Storage) ChatConfig(_ context.Context, chatID string) (config.ChatConfig, error) {
	app, err := s.appSettings()
	if err != nil {
		return config.Defaults(), fmt.Errorf("read app settings: %w", err)
	}
	chat, err := s.ChatSettings(chatID)
	if err != nil {
		return config.Resolve(app, nil), fmt.Errorf("read chat %s settings: %w", chatID, err)
	}
	return config.Resolve(app, chat), nil
}

// Chats lists every registered chat.
func (s *Storage) Chats(ctx context.Context) ([]Chat, error) {
	var out []Chat
	for _, key := range s.ds.Keys(chatKeyPrefix) {
		chatID := strings.TrimPrefix(key, chatKeyPrefix)
		record, ok, err := s.getRecord(chatID)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		conf, err := s.ChatConfig(ctx, chatID)
		if err != nil {
			return nil, err
		}
		out = append(out, Chat{ID: chatID, Title: record.Title, Kind: record.Kind, Active: conf.IsActive})
	}
	return out, nil
}

// ActiveChats lists chats whose effective is_active is true.
func (s *Storage) ActiveChats(ctx context.Context) ([]Chat, error) {
	all, err := s.Chats(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

// AppendCommandToHistory appends a command history record for a chat
func (s *Storage) AppendCommandToHistory(chatID string, command CommandHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, err := s.getOrCreateRecord(chatID)
	if err != nil {
		return err
	}
	record.CommandsHistoryList = append(record.CommandsHistoryList, command)
	if len(record.CommandsHistoryList) > commandHistoryLimit {
		record.CommandsHistoryList = record.CommandsHistoryList[len(record.CommandsHistoryList)-commandHistoryLimit:]
	}
	s.ds.Add(chatKey(chatID), record)
	return nil
}

func (s *Storage) FetchCommandHistory(chatID string) ([]CommandHistoryRecord, error) {
	record, ok, err := s.getRecord(chatID)
	if err != nil || !ok {
		return nil, err
	}
	return record.CommandsHistoryList, nil
}

// Flush writes pending changes to disk.
func (s *Storage) Flush() error {
	return s.ds.SaveToFile()
}
