package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/hitoshi/rssroll/internal/config"
)

// Command はアプリケーションの起動モードを表す。
type Command string

const (
	// CommandPoll は全チャンネルを1回巡回して終了する。
	CommandPoll Command = "poll"
	// CommandWorker はFETCH_INTERVALごとに巡回を繰り返し、ステータスサーバーを公開する。
	CommandWorker Command = "worker"
	// CommandMigrate はデータベースマイグレーションを実行する。
	CommandMigrate Command = "migrate"
	// CommandAdd はURLからフィードを検出してチャンネルを登録する。
	CommandAdd Command = "add"
	// CommandParse はローカルのフィードファイルをパースしてJSONで出力する。
	CommandParse Command = "parse"
	// CommandHealthcheck はワーカーの/healthを確認する。
	// distroless環境でのDockerヘルスチェック用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = map[string]Command{
	string(CommandPoll):        CommandPoll,
	string(CommandWorker):      CommandWorker,
	string(CommandMigrate):     CommandMigrate,
	string(CommandAdd):         CommandAdd,
	string(CommandParse):       CommandParse,
	string(CommandHealthcheck): CommandHealthcheck,
}

// Options はコマンドラインオプション。指定された項目だけ環境変数の設定を上書きする。
type Options struct {
	Verbose     []bool        `short:"v" long:"verbose" description:"詳細ログを出力する（繰り返し指定可）"`
	Database    string        `short:"d" long:"database" value-name:"URL" description:"データベースURL（postgres://... または sqlite://path）"`
	Timeout     time.Duration `long:"timeout" value-name:"DURATION" description:"1チャンネルあたりの取得タイムアウト"`
	Concurrency int           `long:"concurrency" value-name:"N" description:"並列に巡回するチャンネル数"`
	Interval    time.Duration `long:"interval" value-name:"DURATION" description:"workerの巡回間隔"`
	Port        string        `long:"port" value-name:"PORT" description:"workerのステータスサーバーのポート"`
	Category    string        `long:"category" value-name:"NAME" description:"addで登録するチャンネルのカテゴリ"`
}

// Verbosity は -v の指定回数を返す。
func (o *Options) Verbosity() int {
	return len(o.Verbose)
}

// Apply はオプションで指定された値をcfgに上書きする。
func (o *Options) Apply(cfg *config.Config) {
	if o.Database != "" {
		cfg.DatabaseURL = o.Database
	}
	if o.Verbosity() > 0 {
		cfg.LogLevel = "debug"
	}
	if o.Timeout > 0 {
		cfg.FetchTimeout = o.Timeout
	}
	if o.Concurrency > 0 {
		cfg.FetchMaxConcurrent = o.Concurrency
	}
	if o.Interval > 0 {
		cfg.FetchInterval = o.Interval
	}
	if o.Port != "" {
		cfg.ServerPort = o.Port
	}
}

// Invocation は解析済みのコマンドライン。
type Invocation struct {
	Command Command
	Options Options
	Args    []string // サブコマンドより後ろの位置引数
}

const usage = "[OPTIONS] [poll|worker|migrate|add URL|parse FILE|healthcheck]"

// ParseCommand はコマンドライン引数からサブコマンドとオプションを解析する。
// サブコマンドが省略された場合はCommandPollを返す。
// -h/--helpの場合はflags.ErrHelp型の*flags.Errorを返す。
func ParseCommand(args []string) (*Invocation, error) {
	inv := &Invocation{}

	parser := flags.NewParser(&inv.Options, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "rssroll"
	parser.Usage = usage

	rest, err := parser.ParseArgs(args)
	if err != nil {
		return nil, err
	}

	if len(rest) == 0 {
		inv.Command = CommandPoll
		return inv, nil
	}

	cmd, ok := commands[rest[0]]
	if !ok {
		return nil, fmt.Errorf("unknown command: %q (usage: rssroll %s)", rest[0], usage)
	}
	inv.Command = cmd
	inv.Args = rest[1:]

	switch cmd {
	case CommandAdd:
		if len(inv.Args) != 1 {
			return nil, errors.New("usage: rssroll add [--category NAME] URL")
		}
	case CommandParse:
		if len(inv.Args) != 1 {
			return nil, errors.New("usage: rssroll parse [-v] FILE")
		}
	default:
		if len(inv.Args) != 0 {
			return nil, fmt.Errorf("%s does not take arguments: %v", cmd, inv.Args)
		}
	}

	return inv, nil
}

// isHelp はerrが-h/--helpによるものかを返す。
func isHelp(err error) bool {
	var flagsErr *flags.Error
	return errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp
}
