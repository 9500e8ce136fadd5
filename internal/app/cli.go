package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/hitoshi/gamehub/internal/auth"
	"github.com/hitoshi/gamehub/internal/browse"
	"github.com/hitoshi/gamehub/internal/config"
	"github.com/hitoshi/gamehub/internal/download"
	"github.com/hitoshi/gamehub/internal/gateway"
	"github.com/hitoshi/gamehub/internal/model"
	"github.com/hitoshi/gamehub/internal/security"
)

// stdout はlist・download・migrate versionの結果の出力先。ログとは分ける。
var stdout io.Writer = os.Stdout

// cliExcerptLength はlistで表示する説明文の最大文字数。
const cliExcerptLength = 80

// errDownloadPrompt はダウンロードがログインまたは加入の誘導になったことを表す。
var errDownloadPrompt = errors.New("download not permitted")

// runList は商品一覧画面と同じ状態遷移で商品を読み込み、表示する。
func runList(ctx context.Context, cfg *config.Config, args ListArgs, out io.Writer) error {
	log := slog.Default()
	comp := newComponents(cfg, log)

	sf := comp.newStorefront(cfg, log)
	defer sf.Close()

	if err := applyListFilter(ctx, sf, comp.gateway, args); err != nil {
		return err
	}

	for page := 1; page < args.Pages; page++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !sf.SentinelVisible() {
			break
		}
		sf.Wait()
	}

	v := sf.View()
	if v.Error != nil {
		return fmt.Errorf("%s (%s)", v.Error.Message, v.Error.Code)
	}
	return printView(out, v)
}

// applyListFilter は1ページ目を読み込み、指定された絞り込みに切り替える。
func applyListFilter(ctx context.Context, sf *browse.Storefront, gw gateway.Gateway, args ListArgs) error {
	sf.Start()
	sf.Wait()

	switch {
	case args.TagID != "":
		tag := model.Tag{ID: args.TagID}
		if tags, err := gw.ListTags(ctx); err == nil {
			for _, t := range tags {
				if t.ID == args.TagID {
					tag = t
					break
				}
			}
		} else {
			slog.Warn("failed to resolve tag name", slog.String("tag_id", args.TagID), slog.String("error", err.Error()))
		}
		sf.SelectTag(&tag)
	case args.MainTag != "":
		v := model.MainTag(args.MainTag)
		if !v.Valid() {
			return fmt.Errorf("invalid main tag: %q (Game or Software)", args.MainTag)
		}
		sf.SelectMainTag(v)
	case args.Search != "":
		sf.SetSearch(args.Search)
		sf.FlushSearch()
	}
	sf.Wait()
	return nil
}

// printView は画面状態を表形式で出力する。
func printView(out io.Writer, v browse.View) error {
	fmt.Fprintf(out, "%s (%d件", v.Title, v.Count)
	if v.HasMore {
		fmt.Fprint(out, ", 続きあり")
	}
	if v.Partial {
		fmt.Fprint(out, ", 読み込み済みの商品のみ")
	}
	fmt.Fprintln(out, ")")

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, p := range v.Products {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			p.CanonicalID(),
			p.Title,
			p.MainTag,
			security.Excerpt(p.Description, cliExcerptLength),
		)
	}
	return tw.Flush()
}

// runDownload はACCESS_TOKENのログイン状態で商品ファイルを保存する。
func runDownload(ctx context.Context, cfg *config.Config, args DownloadArgs, out io.Writer) error {
	log := slog.Default()
	comp := newComponents(cfg, log)

	creds := auth.NewTokenState()
	if cfg.AccessToken != "" {
		client := auth.NewClient(&http.Client{Timeout: cfg.UpstreamTimeout}, log, cfg.UpstreamBaseURL)
		user, err := client.Profile(ctx, cfg.AccessToken)
		if err != nil && !errors.Is(err, model.ErrUnauthenticated) {
			return fmt.Errorf("failed to load profile: %w", err)
		}
		if user != nil {
			creds.Set(cfg.AccessToken, "", user)
		}
	}

	svc := download.NewService(download.GatewaySource(comp.gateway), log, download.Options{
		MaxSize:  cfg.DownloadMaxSize,
		Recorder: comp.collector,
	})

	outcome, err := svc.Prepare(ctx, creds, args.ProductID)
	if err != nil {
		return err
	}
	switch outcome.Kind {
	case model.DownloadPromptLogin:
		return fmt.Errorf("%w: login required (set ACCESS_TOKEN)", errDownloadPrompt)
	case model.DownloadPromptUpgrade:
		return fmt.Errorf("%w: subscription required", errDownloadPrompt)
	}

	dir := args.Dir
	if dir == "" {
		dir = cfg.DownloadDir
	}
	path, n, err := svc.Save(ctx, outcome, dir)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s\t%d bytes\n", path, n)
	return nil
}
