package app

// Command はアプリケーションの起動モード（サブコマンド）。
type Command string

const (
	CommandServe       Command = "serve"       // APIサーバー（デフォルト）
	CommandFetch       Command = "fetch"       // 全エンティティを1回フェッチして永続ストアへ書き込む
	CommandMigrate     Command = "migrate"     // PostgreSQLのマイグレーション
	CommandHealthcheck Command = "healthcheck" // distrolessコンテナ用のヘルスチェック
)

var knownCommands = map[string]Command{
	string(CommandServe):       CommandServe,
	string(CommandFetch):       CommandFetch,
	string(CommandMigrate):     CommandMigrate,
	string(CommandHealthcheck): CommandHealthcheck,
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。
// 引数がない場合や未知のサブコマンドの場合はCommandServeを返す。
func ParseCommand(args []string) Command {
	if len(args) == 0 {
		return CommandServe
	}
	if cmd, ok := knownCommands[args[0]]; ok {
		return cmd
	}
	return CommandServe
}
