package mysql

import (
	"bufio"
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
	"time"

	"Agentrix-Chat/deploy/migrations"
	"Agentrix-Chat/pkg/logger"
)

var embeddedMigrations fs.ReadFileFS = migrations.Files

const (
	createMigrationsTable = `CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`
	selectAppliedVersions = `SELECT version FROM schema_migrations`
	insertAppliedVersion  = `INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`
)

// migration 是一个 SQL 文件解析后的结果。
type migration struct {
	version    string
	file       string
	statements []string
}

// runMigrations 把共享 schema 升级到最新版本。每个文件在独立事务中执行，
// 已记录在 schema_migrations 中的版本会被跳过。
func runMigrations(ctx context.Context, db *sql.DB) error {
	pending, err := loadMigrations(embeddedMigrations)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, createMigrationsTable); err != nil {
		return fmt.Errorf("创建 schema_migrations 表失败: %w", err)
	}
	applied, err := appliedVersions(ctx, db)
	if err != nil {
		return err
	}

	log := logger.Named("migrations")
	for _, m := range pending {
		if applied[m.version] {
			continue
		}
		started := time.Now()
		if err := m.apply(ctx, db); err != nil {
			return err
		}
		log.InfoContext(ctx, "schema migration applied",
			slog.String("version", m.version),
			slog.String("file", m.file),
			slog.Int("statements", len(m.statements)),
			slog.Duration("elapsed", time.Since(started)))
	}
	return nil
}

func appliedVersions(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, selectAppliedVersions)
	if err != nil {
		return nil, fmt.Errorf("查询已应用迁移失败: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]bool)
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("读取迁移版本失败: %w", err)
		}
		versions[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历迁移版本失败: %w", err)
	}
	return versions, nil
}

func (m migration) apply(ctx context.Context, db *sql.DB) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启迁移事务失败: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for i, stmt := range m.statements {
		if _, err = tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("执行迁移 %s 第 %d 条语句失败: %w", m.file, i+1, err)
		}
	}
	if _, err = tx.ExecContext(ctx, insertAppliedVersion, m.version, time.Now().Unix()); err != nil {
		return fmt.Errorf("记录迁移版本 %s 失败: %w", m.version, err)
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交迁移 %s 失败: %w", m.file, err)
	}
	return nil
}

// loadMigrations 读取 src 根目录下的 *.sql 文件并按版本排序。
// 同一版本出现在多个文件中视为错误。
func loadMigrations(src fs.ReadFileFS) ([]migration, error) {
	files, err := fs.Glob(src, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("列出迁移文件失败: %w", err)
	}

	out := make([]migration, 0, len(files))
	seen := make(map[string]string, len(files))
	for _, file := range files {
		content, err := src.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("读取迁移文件 %s 失败: %w", file, err)
		}
		statements := splitSQLStatements(string(content))
		if len(statements) == 0 {
			continue
		}
		version := parseMigrationVersion(file)
		if other, dup := seen[version]; dup {
			return nil, fmt.Errorf("迁移版本 %s 重复: %s 与 %s", version, other, file)
		}
		seen[version] = file
		out = append(out, migration{version: version, file: file, statements: statements})
	}
	slices.SortFunc(out, func(a, b migration) int { return cmp.Compare(a.version, b.version) })
	return out, nil
}

// splitSQLStatements 按分号切分语句，忽略以 -- 开头的整行注释。
func splitSQLStatements(content string) []string {
	var (
		statements []string
		current    strings.Builder
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for {
			before, after, found := strings.Cut(line, ";")
			current.WriteString(before)
			if !found {
				break
			}
			flush()
			line = after
		}
		current.WriteByte('\n')
	}
	flush()
	return statements
}

// parseMigrationVersion 取文件名中第一个下划线或扩展名之前的部分作为版本。
func parseMigrationVersion(file string) string {
	name := path.Base(file)
	if version, _, ok := strings.Cut(name, "_"); ok && version != "" {
		return version
	}
	return strings.TrimSuffix(name, path.Ext(name))
}
