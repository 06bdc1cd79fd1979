package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"bloghub/internal/model"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// SQL 为基于 database/sql 的 Repository。
type SQL struct {
	db      *sql.DB
	dialect string
}

// Open 按方言打开数据库并执行迁移。
func Open(dialect, dsn string) (*SQL, error) {
	switch dialect {
	case DialectSQLite, "":
		return OpenSQLite(dsn)
	case DialectPostgres:
		return OpenPostgres(dsn)
	}
	return nil, fmt.Errorf("unsupported database type: %s", dialect)
}

// OpenSQLite 打开 modernc sqlite 文件并启用外键，删除来源时级联删除文章。
func OpenSQLite(path string) (*SQL, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	s := &SQL{db: db, dialect: DialectSQLite}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// OpenPostgres 打开 lib/pq 连接池。
func OpenPostgres(dsn string) (*SQL, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := &SQL{db: db, dialect: DialectPostgres}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func sqliteDSN(path string) string {
	if strings.Contains(path, "foreign_keys") {
		return path
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)"
}

func (s *SQL) Close() error { return s.db.Close() }

// q 为 postgres 将 ? 占位符改写为 $n。
func (s *SQL) q(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// migrate 执行幂等的建表语句。
func (s *SQL) migrate() error {
	pk, ts := "INTEGER PRIMARY KEY AUTOINCREMENT", "TIMESTAMP"
	if s.dialect == DialectPostgres {
		pk, ts = "BIGSERIAL PRIMARY KEY", "TIMESTAMPTZ"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS categories (
            id ` + pk + `,
            name TEXT NOT NULL,
            slug TEXT NOT NULL UNIQUE,
            color TEXT NOT NULL DEFAULT '',
            icon TEXT NOT NULL DEFAULT ''
        )`,
		`CREATE TABLE IF NOT EXISTS blog_sources (
            id ` + pk + `,
            name TEXT NOT NULL,
            description TEXT NOT NULL DEFAULT '',
            feed_url TEXT NOT NULL,
            homepage_url TEXT NOT NULL DEFAULT '',
            logo_url TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            author TEXT NOT NULL DEFAULT '',
            language TEXT NOT NULL DEFAULT '',
            tags TEXT NOT NULL DEFAULT '',
            category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
            created_at ` + ts + ` NOT NULL,
            updated_at ` + ts + ` NOT NULL,
            last_fetched ` + ts + `
        )`,
		`CREATE TABLE IF NOT EXISTS posts (
            id ` + pk + `,
            title VARCHAR(500) NOT NULL,
            link TEXT NOT NULL UNIQUE,
            excerpt TEXT NOT NULL DEFAULT '',
            thumbnail_url TEXT NOT NULL DEFAULT '',
            published_date ` + ts + ` NOT NULL,
            blog_source_id BIGINT NOT NULL REFERENCES blog_sources(id) ON DELETE CASCADE,
            category_id BIGINT REFERENCES categories(id) ON DELETE SET NULL,
            created_at ` + ts + ` NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_posts_published ON posts(published_date)`,
		`CREATE INDEX IF NOT EXISTS idx_posts_source ON posts(blog_source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_feed_url ON blog_sources(feed_url)`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("exec migrate: %w", err)
		}
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

const sourceCols = `id, name, description, feed_url, homepage_url, logo_url, is_active,
    author, language, tags, category_id, created_at, updated_at, last_fetched`

func scanSource(sc scanner) (model.BlogSource, error) {
	var (
		src         model.BlogSource
		categoryID  sql.NullInt64
		lastFetched sql.NullTime
	)
	err := sc.Scan(&src.ID, &src.Name, &src.Description, &src.FeedURL, &src.HomepageURL,
		&src.LogoURL, &src.Active, &src.Author, &src.Language, &src.Tags, &categoryID,
		&src.CreatedAt, &src.UpdatedAt, &lastFetched)
	if err != nil {
		return src, err
	}
	src.CategoryID = int64Ptr(categoryID)
	if lastFetched.Valid {
		t := lastFetched.Time
		src.LastFetched = &t
	}
	return src, nil
}

const postCols = `p.id, p.title, p.link, p.excerpt, p.thumbnail_url, p.published_date,
    p.blog_source_id, p.category_id, p.created_at`

func scanPost(sc scanner) (model.Post, error) {
	var (
		p          model.Post
		categoryID sql.NullInt64
	)
	err := sc.Scan(&p.ID, &p.Title, &p.Link, &p.Excerpt, &p.ThumbnailURL, &p.PublishedDate,
		&p.BlogSourceID, &categoryID, &p.CreatedAt)
	if err != nil {
		return p, err
	}
	p.CategoryID = int64Ptr(categoryID)
	return p, nil
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func (s *SQL) FindPostByLink(ctx context.Context, link string) (model.Post, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+postCols+` FROM posts p WHERE p.link = ?`), link)
	p, err := scanPost(row)
	if errors.Is(err, sql.ErrNoRows) {
		return p, ErrNotFound
	}
	if err != nil {
		return p, fmt.Errorf("find post %s: %w", link, err)
	}
	return p, nil
}

func (s *SQL) InsertPost(ctx context.Context, p model.Post) (bool, error) {
	if p.Link == "" {
		return false, errors.New("post.link required")
	}
	res, err := s.db.ExecContext(ctx, s.q(`INSERT INTO posts(title, link, excerpt, thumbnail_url,
        published_date, blog_source_id, category_id, created_at)
        VALUES(?,?,?,?,?,?,?,?)
        ON CONFLICT(link) DO NOTHING`),
		p.Title, p.Link, p.Excerpt, p.ThumbnailURL, p.PublishedDate.UTC(), p.BlogSourceID,
		nullInt64(p.CategoryID), nowOr(p.CreatedAt).UTC())
	if err != nil {
		return false, fmt.Errorf("insert post %s: %w", p.Link, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert post %s: %w", p.Link, err)
	}
	return n > 0, nil
}

func (s *SQL) UpdateLastFetched(ctx context.Context, sourceID int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.q(`UPDATE blog_sources SET last_fetched = ? WHERE id = ?`),
		at.UTC(), sourceID)
	if err != nil {
		return fmt.Errorf("update last_fetched %d: %w", sourceID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQL) ListActiveSources(ctx context.Context) ([]model.BlogSource, error) {
	return s.ListSources(ctx, true)
}

func (s *SQL) GetActiveSource(ctx context.Context, id int64) (model.BlogSource, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+sourceCols+` FROM blog_sources WHERE id = ? AND is_active = ?`), id, true)
	src, err := scanSource(row)
	if errors.Is(err, sql.ErrNoRows) {
		return src, ErrNotFound
	}
	if err != nil {
		return src, fmt.Errorf("get source %d: %w", id, err)
	}
	return src, nil
}

func (s *SQL) ListSources(ctx context.Context, activeOnly bool) ([]model.BlogSource, error) {
	query := `SELECT ` + sourceCols + ` FROM blog_sources`
	var args []any
	if activeOnly {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY name, id`
	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer rows.Close()
	var out []model.BlogSource
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sources: %w", err)
		}
		out = append(out, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sources: %w", err)
	}
	return out, nil
}

func (s *SQL) UpsertSource(ctx context.Context, in model.BlogSource) (model.BlogSource, error) {
	if in.FeedURL == "" {
		return in, errors.New("source.feed_url required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return in, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx,
		s.q(`SELECT `+sourceCols+` FROM blog_sources WHERE feed_url = ? ORDER BY id LIMIT 1`), in.FeedURL)
	old, err := scanSource(row)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		now := time.Now()
		out := in
		out.CreatedAt, out.UpdatedAt, out.LastFetched = nowOr(in.CreatedAt), now, nil
		err = tx.QueryRowContext(ctx, s.q(`INSERT INTO blog_sources(name, description, feed_url,
            homepage_url, logo_url, is_active, author, language, tags, category_id, created_at, updated_at)
            VALUES(?,?,?,?,?,?,?,?,?,?,?,?) RETURNING id`),
			out.Name, out.Description, out.FeedURL, out.HomepageURL, out.LogoURL, out.Active,
			out.Author, out.Language, out.Tags, nullInt64(out.CategoryID),
			out.CreatedAt.UTC(), out.UpdatedAt.UTC()).Scan(&out.ID)
		if err != nil {
			return in, fmt.Errorf("insert source %s: %w", in.FeedURL, err)
		}
		if err := tx.Commit(); err != nil {
			return in, fmt.Errorf("commit: %w", err)
		}
		return out, nil
	case err != nil:
		return in, fmt.Errorf("lookup source %s: %w", in.FeedURL, err)
	}

	out := mergeSource(old, in)
	_, err = tx.ExecContext(ctx, s.q(`UPDATE blog_sources SET name = ?, description = ?,
        homepage_url = ?, logo_url = ?, is_active = ?, author = ?, language = ?, tags = ?,
        category_id = ?, updated_at = ? WHERE id = ?`),
		out.Name, out.Description, out.HomepageURL, out.LogoURL, out.Active, out.Author,
		out.Language, out.Tags, nullInt64(out.CategoryID), out.UpdatedAt.UTC(), out.ID)
	if err != nil {
		return in, fmt.Errorf("update source %s: %w", in.FeedURL, err)
	}
	if err := tx.Commit(); err != nil {
		return in, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}

func (s *SQL) UpsertCategory(ctx context.Context, c model.Category) (model.Category, error) {
	if c.Slug == "" {
		return c, errors.New("category.slug required")
	}
	err := s.db.QueryRowContext(ctx, s.q(`INSERT INTO categories(name, slug, color, icon)
        VALUES(?,?,?,?)
        ON CONFLICT(slug) DO UPDATE SET name=excluded.name, color=excluded.color, icon=excluded.icon
        RETURNING id`), c.Name, c.Slug, c.Color, c.Icon).Scan(&c.ID)
	if err != nil {
		return c, fmt.Errorf("upsert category %s: %w", c.Slug, err)
	}
	return c, nil
}

// DeleteSource 同时显式删除文章，未启用外键的连接上也能级联。
func (s *SQL) DeleteSource(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, s.q(`DELETE FROM posts WHERE blog_source_id = ?`), id); err != nil {
		return fmt.Errorf("delete posts of source %d: %w", id, err)
	}
	res, err := tx.ExecContext(ctx, s.q(`DELETE FROM blog_sources WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("delete source %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

func (s *SQL) ListPosts(ctx context.Context, f model.PostFilter) ([]model.Post, error) {
	var b strings.Builder
	b.WriteString(`SELECT ` + postCols + ` FROM posts p
        JOIN blog_sources s ON s.id = p.blog_source_id
        WHERE s.is_active = ?`)
	args := []any{true}
	if f.SourceID > 0 {
		b.WriteString(` AND p.blog_source_id = ?`)
		args = append(args, f.SourceID)
	}
	if q := strings.TrimSpace(f.Search); q != "" {
		like := "%" + strings.ToLower(q) + "%"
		b.WriteString(` AND (LOWER(p.title) LIKE ? OR LOWER(p.excerpt) LIKE ?)`)
		args = append(args, like, like)
	}
	b.WriteString(` ORDER BY p.published_date DESC, p.id DESC`)
	switch {
	case f.Limit > 0:
		b.WriteString(` LIMIT ? OFFSET ?`)
		args = append(args, f.Limit, f.Offset)
	case f.Offset > 0 && s.dialect == DialectSQLite:
		b.WriteString(` LIMIT -1 OFFSET ?`)
		args = append(args, f.Offset)
	case f.Offset > 0:
		b.WriteString(` OFFSET ?`)
		args = append(args, f.Offset)
	}
	rows, err := s.db.QueryContext(ctx, s.q(b.String()), args...)
	if err != nil {
		return nil, fmt.Errorf("query posts: %w", err)
	}
	defer rows.Close()
	var out []model.Post
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("scan posts: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}

// Stats 统计文章与启用来源数，并按文章数给启用来源排名。
func (s *SQL) Stats(ctx context.Context) (model.Stats, error) {
	st := model.Stats{TopSources: []model.SourceCount{}}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM posts`).Scan(&st.TotalPosts); err != nil {
		return st, fmt.Errorf("count posts: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, s.q(`SELECT COUNT(1) FROM blog_sources WHERE is_active = ?`), true).
		Scan(&st.TotalSources); err != nil {
		return st, fmt.Errorf("count sources: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, s.q(`SELECT s.id, s.name, COUNT(p.id) AS n
        FROM blog_sources s LEFT JOIN posts p ON p.blog_source_id = s.id
        WHERE s.is_active = ?
        GROUP BY s.id, s.name
        ORDER BY n DESC, s.name
        LIMIT ?`), true, DefaultTopSources)
	if err != nil {
		return st, fmt.Errorf("query top sources: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sc model.SourceCount
		if err := rows.Scan(&sc.ID, &sc.Name, &sc.PostsCount); err != nil {
			return st, fmt.Errorf("scan top sources: %w", err)
		}
		st.TopSources = append(st.TopSources, sc)
	}
	if err := rows.Err(); err != nil {
		return st, fmt.Errorf("iterate top sources: %w", err)
	}
	st.UpdatedAt = time.Now()
	return st, nil
}
