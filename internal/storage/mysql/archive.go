package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/go-sql-driver/mysql"

	"Agentrix-Chat/internal/conversation"
	xerrors "Agentrix-Chat/internal/errors"
	"Agentrix-Chat/internal/payload"
	"Agentrix-Chat/internal/workflow"
)

// ArchivedMessage 是归档中的一条消息及其会话上下文。
type ArchivedMessage struct {
	ConversationID string               `json:"conversationId"`
	SessionID      string               `json:"sessionId,omitempty"`
	Message        conversation.Message `json:"message"`
}

// Repository 抽象会话归档的读写接口。
type Repository interface {
	conversation.Archive
	// ListConversation 按时间顺序返回会话最近的 limit 条消息，limit 不大于 0 时返回全部。
	ListConversation(ctx context.Context, conversationID string, limit int) ([]ArchivedMessage, error)
	Close() error
}

// FileArchive 以 JSON lines 追加写本地文件，启动时回放到内存索引。
type FileArchive struct {
	mu       sync.RWMutex
	dataFile string
	byConv   map[string][]ArchivedMessage
}

// NewFileArchive 在 dataDir 下创建或打开 conversations.log。
func NewFileArchive(dataDir string) (*FileArchive, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	archive := &FileArchive{
		dataFile: filepath.Join(dataDir, "conversations.log"),
		byConv:   make(map[string][]ArchivedMessage),
	}
	if err := archive.loadFromDisk(); err != nil {
		return nil, err
	}
	return archive, nil
}

// Append 实现 conversation.Archive。
func (f *FileArchive) Append(_ context.Context, conversationID, sessionID string, msg conversation.Message) error {
	record := ArchivedMessage{ConversationID: conversationID, SessionID: sessionID, Message: msg}
	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化归档消息失败: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开归档文件失败: %w", err)
	}
	defer file.Close()

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入归档文件失败: %w", err)
	}
	f.byConv[conversationID] = append(f.byConv[conversationID], record)
	return nil
}

// ListConversation 实现 Repository。
func (f *FileArchive) ListConversation(_ context.Context, conversationID string, limit int) ([]ArchivedMessage, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	records := f.byConv[conversationID]
	if limit > 0 && limit < len(records) {
		records = records[len(records)-limit:]
	}
	return slices.Clone(records), nil
}

// Close 实现 Repository。
func (f *FileArchive) Close() error {
	return nil
}

func (f *FileArchive) loadFromDisk() error {
	file, err := os.OpenFile(f.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取归档文件失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var record ArchivedMessage
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		f.byConv[record.ConversationID] = append(f.byConv[record.ConversationID], record)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析归档文件失败: %w", err)
	}
	return nil
}

// SQLArchive 把消息写入 conversation_messages 表。连接由 Open 创建并共享。
type SQLArchive struct {
	db *sql.DB
}

// NewSQLArchive 基于已迁移的连接创建归档。
func NewSQLArchive(db *sql.DB) (*SQLArchive, error) {
	if db == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "MySQL 连接未初始化")
	}
	return &SQLArchive{db: db}, nil
}

const insertMessageSQL = `INSERT INTO conversation_messages
    (id, conversation_id, session_id, role, content, payload, trail, created_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

const selectMessagesSQL = `SELECT id, session_id, role, content, payload, trail, created_at
    FROM conversation_messages WHERE conversation_id = ?
    ORDER BY created_at DESC, id DESC LIMIT ?`

// Append 实现 conversation.Archive。同一消息重复写入视为成功。
func (s *SQLArchive) Append(ctx context.Context, conversationID, sessionID string, msg conversation.Message) error {
	var payloadJSON, trailJSON any
	if msg.Payload != nil {
		encoded, err := json.Marshal(msg.Payload)
		if err != nil {
			return fmt.Errorf("序列化结构化负载失败: %w", err)
		}
		payloadJSON = string(encoded)
	}
	if len(msg.Trail) > 0 {
		encoded, err := json.Marshal(msg.Trail)
		if err != nil {
			return fmt.Errorf("序列化事件轨迹失败: %w", err)
		}
		trailJSON = string(encoded)
	}

	_, err := s.db.ExecContext(ctx, insertMessageSQL,
		msg.ID,
		conversationID,
		sessionID,
		string(msg.Role),
		msg.Content,
		payloadJSON,
		trailJSON,
		msg.Timestamp.UnixMilli(),
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return nil
		}
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入会话归档失败")
	}
	return nil
}

// ListConversation 实现 Repository。
func (s *SQLArchive) ListConversation(ctx context.Context, conversationID string, limit int) ([]ArchivedMessage, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, selectMessagesSQL, conversationID, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询会话归档失败")
	}
	defer rows.Close()

	var records []ArchivedMessage
	for rows.Next() {
		var (
			record    = ArchivedMessage{ConversationID: conversationID}
			role      string
			payloadJS sql.NullString
			trailJS   sql.NullString
			createdAt int64
		)
		if err := rows.Scan(&record.Message.ID, &record.SessionID, &role, &record.Message.Content,
			&payloadJS, &trailJS, &createdAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析会话归档失败")
		}
		record.Message.Role = conversation.Role(role)
		record.Message.Timestamp = time.UnixMilli(createdAt).UTC()
		if payloadJS.Valid && payloadJS.String != "" {
			var p payload.Payload
			if err := json.Unmarshal([]byte(payloadJS.String), &p); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析结构化负载失败")
			}
			record.Message.Payload = &p
		}
		if trailJS.Valid && trailJS.String != "" {
			var trail []workflow.Event
			if err := json.Unmarshal([]byte(trailJS.String), &trail); err != nil {
				return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析事件轨迹失败")
			}
			record.Message.Trail = trail
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历会话归档失败")
	}
	slices.Reverse(records)
	return records, nil
}

// Close 不关闭共享连接。
func (s *SQLArchive) Close() error {
	return nil
}

var (
	_ Repository = (*FileArchive)(nil)
	_ Repository = (*SQLArchive)(nil)
)
