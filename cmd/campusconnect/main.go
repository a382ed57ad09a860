// Command campusconnect はソーシャルAPIサーバー・ワーカー・マイグレーションを起動する。
//
// 使い方:
//
//	campusconnect [serve|worker|migrate|healthcheck]
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/campusconnect/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "campusconnect: %v\n", err)
		os.Exit(1)
	}
}
