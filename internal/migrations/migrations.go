// Package migrations 内嵌 PostgreSQL 与 MySQL 的建表脚本
package migrations

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

//go:embed postgres/*.sql mysql/*.sql
var files embed.FS

// Direction 迁移方向
type Direction string

const (
	Up   Direction = "up"
	Down Direction = "down"
)

// Files 返回指定数据库与方向的迁移文件名，升级按序号正序，回滚倒序
func Files(driver string, dir Direction) ([]string, error) {
	if driver != "postgres" && driver != "mysql" {
		return nil, fmt.Errorf("unsupported database type: %s", driver)
	}
	if dir != Up && dir != Down {
		return nil, fmt.Errorf("unsupported direction: %s", dir)
	}

	matches, err := fs.Glob(files, fmt.Sprintf("%s/*.%s.sql", driver, dir))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	if dir == Down {
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))
	}
	return matches, nil
}

// Statements 读取迁移文件并拆分为单条 SQL
func Statements(name string) ([]string, error) {
	content, err := files.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("read migration %s: %w", name, err)
	}
	return splitStatements(string(content)), nil
}

// splitStatements 按分号分割 SQL，忽略字符串中的分号和整行注释
func splitStatements(sql string) []string {
	var statements []string
	var current strings.Builder
	var inString bool
	var stringChar rune

	flush := func() {
		stmt := strings.TrimSpace(stripComments(current.String()))
		if stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for _, r := range sql {
		switch {
		case r == '\'' || r == '"' || r == '`':
			if !inString {
				inString = true
				stringChar = r
			} else if r == stringChar {
				inString = false
			}
			current.WriteRune(r)
		case r == ';' && !inString:
			flush()
		default:
			current.WriteRune(r)
		}
	}
	flush()

	return statements
}

func stripComments(stmt string) string {
	lines := strings.Split(stmt, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}
