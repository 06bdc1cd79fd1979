package ingest

import (
	"fmt"
	"io"
)

// PrintReport 为每个来源输出一行状态，最后输出新增总数。
// 失败来源若在出错前已写入文章，会注明数量（这些文章已提交，不会回滚）。
func PrintReport(w io.Writer, rep Report) error {
	for _, o := range rep.Outcomes {
		var err error
		switch o.State {
		case StateSucceeded:
			_, err = fmt.Fprintf(w, "✓ Added %d new posts from %s (%d entries examined)\n",
				o.Result.Created, o.Source.Name, o.Result.Examined)
			if err == nil && o.Result.Malformed {
				_, err = fmt.Fprintf(w, "  ⚠ feed may have issues: %s\n", o.Source.FeedURL)
			}
			if err == nil && o.Result.Failed > 0 {
				_, err = fmt.Fprintf(w, "  ⚠ %d entries could not be saved\n", o.Result.Failed)
			}
		default:
			if o.Result.Created > 0 {
				_, err = fmt.Fprintf(w, "✗ Error processing %s: %v (%d posts stored before failure)\n",
					o.Source.Name, o.Err, o.Result.Created)
			} else {
				_, err = fmt.Fprintf(w, "✗ Error processing %s: %v\n", o.Source.Name, o.Err)
			}
		}
		if err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(w, "Crawling completed! Total new posts: %d\n", rep.TotalNew)
	return err
}
