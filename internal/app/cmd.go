package app

import (
	"flag"
	"fmt"
	"io"
	"strconv"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandServe はBFFサーバーモードで起動することを示す。
	CommandServe Command = "serve"
	// CommandWorker は期限切れセッションと古いダウンロードログを掃除するワーカーモードを示す。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行することを示す。
	CommandMigrate Command = "migrate"
	// CommandList は商品一覧を標準出力に表示することを示す。
	CommandList Command = "list"
	// CommandDownload は商品ファイルを保存することを示す。
	CommandDownload Command = "download"
	// CommandHealthcheck はヘルスチェックを実行することを示す。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

// ParseCommand はコマンドライン引数からサブコマンドを解析する。
// 引数が空またはサポート外のコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}

	switch args[0] {
	case "worker":
		return CommandWorker
	case "serve":
		return CommandServe
	case "migrate":
		return CommandMigrate
	case "list":
		return CommandList
	case "download":
		return CommandDownload
	case "healthcheck":
		return CommandHealthcheck
	default:
		return CommandServe
	}
}

// NeedsDatabase はコマンドがDATABASE_URLを必要とするかを返す。
func (c Command) NeedsDatabase() bool {
	switch c {
	case CommandServe, CommandWorker, CommandMigrate:
		return true
	default:
		return false
	}
}

// MigrateAction はmigrateサブコマンドの動作。
type MigrateAction string

const (
	MigrateUp      MigrateAction = "up"
	MigrateDown    MigrateAction = "down"
	MigrateVersion MigrateAction = "version"
)

// MigrateArgs はmigrateサブコマンドの引数。
type MigrateArgs struct {
	Action MigrateAction
	Steps  int
}

// ParseMigrateArgs は "migrate" に続く引数を解析する。省略時は up。
// down はステップ数を省略すると1ステップ戻す。
func ParseMigrateArgs(args []string) (MigrateArgs, error) {
	if len(args) == 0 {
		return MigrateArgs{Action: MigrateUp}, nil
	}
	switch MigrateAction(args[0]) {
	case MigrateUp:
		return MigrateArgs{Action: MigrateUp}, nil
	case MigrateVersion:
		return MigrateArgs{Action: MigrateVersion}, nil
	case MigrateDown:
		steps := 1
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return MigrateArgs{}, fmt.Errorf("invalid step count: %q", args[1])
			}
			steps = n
		}
		return MigrateArgs{Action: MigrateDown, Steps: steps}, nil
	default:
		return MigrateArgs{}, fmt.Errorf("unknown migrate action: %q", args[0])
	}
}

// ListArgs はlistサブコマンドの引数。絞り込みは1種類だけ指定できる。
type ListArgs struct {
	TagID   string
	MainTag string
	Search  string
	Pages   int
}

// ParseListArgs は "list" に続く引数を解析する。
func ParseListArgs(args []string, output io.Writer) (ListArgs, error) {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(output)

	var la ListArgs
	fs.StringVar(&la.TagID, "tag", "", "追加タグIDで絞り込む")
	fs.StringVar(&la.MainTag, "main-tag", "", "主カテゴリ (Game|Software) で絞り込む")
	fs.StringVar(&la.Search, "search", "", "検索語")
	fs.IntVar(&la.Pages, "pages", 1, "読み込むページ数")

	if err := fs.Parse(args); err != nil {
		return ListArgs{}, err
	}

	set := 0
	for _, v := range []string{la.TagID, la.MainTag, la.Search} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return ListArgs{}, fmt.Errorf("only one of --tag, --main-tag, --search may be given")
	}
	if la.Pages < 1 {
		la.Pages = 1
	}
	return la, nil
}

// DownloadArgs はdownloadサブコマンドの引数。
type DownloadArgs struct {
	ProductID string
	Dir       string
}

// ParseDownloadArgs は "download" に続く引数を解析する。dirを省略した場合は空文字列を返す。
func ParseDownloadArgs(args []string) (DownloadArgs, error) {
	if len(args) == 0 || args[0] == "" {
		return DownloadArgs{}, fmt.Errorf("usage: download <productID> [dir]")
	}
	da := DownloadArgs{ProductID: args[0]}
	if len(args) > 1 {
		da.Dir = args[1]
	}
	return da, nil
}
