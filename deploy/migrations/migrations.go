// Package migrations embeds the MySQL schema shared by the conversation
// archive and the submission task store.
package migrations

import "embed"

// Files 暴露所有 SQL 迁移文件。
//
//go:embed *.sql
var Files embed.FS
