package ingest

import (
	"errors"
	"fmt"
)

// ErrSourceNotFound 表示指定来源不存在或未启用。
var ErrSourceNotFound = errors.New("blog source not found or inactive")

// FeedFetchError 为整个订阅的网络或解析失败。
type FeedFetchError struct {
	SourceID int64
	URL      string
	Err      error
}

func (e *FeedFetchError) Error() string {
	return fmt.Sprintf("failed to fetch feed of source %d (%s): %v", e.SourceID, e.URL, e.Err)
}

func (e *FeedFetchError) Unwrap() error { return e.Err }

// EntryPersistError 为单个条目写入失败。
type EntryPersistError struct {
	Link string
	Err  error
}

func (e *EntryPersistError) Error() string {
	return fmt.Sprintf("could not save post %s: %v", e.Link, e.Err)
}

func (e *EntryPersistError) Unwrap() error { return e.Err }
