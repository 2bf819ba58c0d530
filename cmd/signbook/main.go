// Command signbook はユーザー登録・ログインWebアプリケーションを起動する。
//
// サブコマンド:
//
//	serve          Webサーバーを起動する（デフォルト）
//	worker         期限切れセッションを定期的に削除する
//	migrate        データベースマイグレーションを適用する
//	healthcheck    /health に問い合わせる（Dockerヘルスチェック用）
//	hash-password  標準入力のパスワードからOWNER_PASSWORD_HASHを生成する
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/signbook/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
