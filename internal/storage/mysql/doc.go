// Package mysql persists the conversation archive. It owns the shared MySQL
// connection pool and the embedded schema migrations, and offers a JSON-lines
// file archive for deployments without a database.
package mysql
