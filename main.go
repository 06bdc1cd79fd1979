// 命令行入口：
// - 解析 flags 与 settings.yaml（及 .env）
// - 初始化日志、HTTP 客户端、存储
// - 同步配置中的来源，抓取指定来源（-source-id）或全部启用来源
// - 支持 -list-sources/-delete-source 运维命令与 -export 导出 JSON
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"bloghub/internal/config"
	"bloghub/internal/export"
	"bloghub/internal/feeds"
	"bloghub/internal/fetch"
	"bloghub/internal/ingest"
	"bloghub/internal/logx"
	"bloghub/internal/sources"
	"bloghub/internal/store"
)

func main() {
	var (
		configPath   = flag.String("config", "settings.yaml", "path to settings.yaml")
		sourceID     = flag.Int64("source-id", 0, "crawl only the blog source with this ID")
		limit        = flag.Int("limit", config.DefaultFetchLimit, "max entries examined per source")
		exportPath   = flag.String("export", "", "write a JSON snapshot here after the run (SIMPLE_MODE defaults to data.json)")
		listSources  = flag.Bool("list-sources", false, "print stored sources and exit")
		deleteSource = flag.Int64("delete-source", 0, "delete the source with this ID and all its posts, then exit")
	)
	flag.Parse()
	limitSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "limit" {
			limitSet = true
		}
	})

	// 1) 配置与日志
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logx.Init(logx.Options{Level: cfg.LogLevel, Format: cfg.LogFormat, Locale: cfg.LogLocale, Color: cfg.LogColor})
	if !limitSet {
		*limit = cfg.FetchLimit
	}
	if *limit <= 0 {
		log.Fatalf("-limit must be > 0, got %d", *limit)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2) 存储：极简模式只用内存，结束时导出
	var repo store.Repository
	if cfg.SimpleMode {
		repo = store.NewMemory()
		if *exportPath == "" {
			*exportPath = "data.json"
		}
	} else {
		db, err := store.Open(cfg.Database.Type, cfg.Database.DSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		repo = db
	}
	defer repo.Close()

	if *listSources {
		if err := printSources(ctx, repo); err != nil {
			log.Fatalf("list sources: %v", err)
		}
		return
	}
	if *deleteSource > 0 {
		if err := repo.DeleteSource(ctx, *deleteSource); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				fmt.Fprintf(os.Stderr, "Blog source with ID %d not found\n", *deleteSource)
				return
			}
			log.Fatalf("delete source: %v", err)
		}
		fmt.Printf("Deleted blog source %d and its posts\n", *deleteSource)
		return
	}

	// 3) 订阅与主页补全共用的 HTTP 客户端
	cl, err := fetch.New(fetch.Options{
		ProxyHTTP:  cfg.Proxy.HTTP,
		ProxyHTTPS: cfg.Proxy.HTTPS,
		Timeout:    cfg.Timeout(),
		UserAgent:  cfg.UserAgent,
	})
	if err != nil {
		log.Fatalf("http client: %v", err)
	}

	// 4) 配置中的来源写入存储
	var enricher *sources.Enricher
	if cfg.EnrichSources {
		enricher = sources.NewEnricher(cl).WithRules(cfg.EnrichRules.Description, cfg.EnrichRules.Logo)
	}
	if _, err := sources.Sync(ctx, repo, cfg, enricher); err != nil {
		log.Fatalf("sync sources: %v", err)
	}

	// 5) 抓取入库
	runner := ingest.New(repo,
		ingest.NewSourceFetcher(feeds.NewParser(cl), repo, time.Local, time.Now),
		ingest.Options{Workers: cfg.Concurrency.Fetch, Timeout: cfg.Timeout(), Limit: *limit},
	)
	rep, err := runner.Run(ctx, ingest.RunOptions{SourceID: *sourceID, Limit: *limit})
	if errors.Is(err, ingest.ErrSourceNotFound) {
		fmt.Fprintf(os.Stderr, "Blog source with ID %d not found or inactive\n", *sourceID)
		return
	}
	if err != nil {
		log.Fatalf("run: %v", err)
	}
	if err := ingest.PrintReport(os.Stdout, rep); err != nil {
		logx.Warnf("输出报告失败：%v", err)
	}

	// 6) 可选导出
	if *exportPath != "" {
		if err := export.ToJSON(ctx, repo, *exportPath, cfg.ExportMaxPosts); err != nil {
			log.Fatalf("export json: %v", err)
		}
		logx.Infof("已导出 %s", *exportPath)
	}
}

func printSources(ctx context.Context, repo store.Repository) error {
	list, err := repo.ListSources(ctx, false)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tACTIVE\tLAST FETCHED\tFEED URL")
	for _, s := range list {
		last := "never"
		if s.LastFetched != nil {
			last = s.LastFetched.Local().Format(time.DateTime)
		}
		fmt.Fprintf(tw, "%d\t%s\t%v\t%s\t%s\n", s.ID, s.Name, s.Active, last, s.FeedURL)
	}
	return tw.Flush()
}
