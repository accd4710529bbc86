/**
 * OpenMTP 主入口
 *
 * Go 进程是拥有权限的后台上下文，WebView 是界面上下文；
 * 两者之间只通过 App 绑定的方法和 Wails 事件通信。
 */

package main

import (
	"context"
	"embed"
	"os"

	"github.com/openmtp/permbridge/internal/app"
	"github.com/openmtp/permbridge/pkg/logger"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"
	"github.com/wailsapp/wails/v2/pkg/options/mac"
	"go.uber.org/zap"
)

//go:embed all:frontend/dist
var assets embed.FS

func main() {
	// OPENMTP_CONFIG 为空时使用 ~/.openmtp/config.yaml
	openmtpApp := app.New(app.WithConfigPath(os.Getenv("OPENMTP_CONFIG")))

	err := wails.Run(&options.App{
		Title:            "OpenMTP",
		Width:            1024,
		Height:           700,
		MinWidth:         800,
		MinHeight:        560,
		BackgroundColour: &options.RGBA{R: 255, G: 255, B: 255, A: 255},

		AssetServer: &assetserver.Options{
			Assets: assets,
		},

		// 前端通过 window.go.app.App 调用权限对话框相关方法
		Bind: []interface{}{
			openmtpApp,
		},

		OnStartup: func(ctx context.Context) {
			if err := openmtpApp.Startup(ctx); err != nil {
				logger.Fatal("启动失败", zap.Error(err))
			}
		},

		OnShutdown: func(ctx context.Context) {
			openmtpApp.Shutdown()
		},

		Mac: &mac.Options{
			About: &mac.AboutInfo{
				Title:   "OpenMTP",
				Message: "Android File Transfer for macOS",
			},
		},
	})
	if err != nil {
		logger.Fatal("Wails 运行失败", zap.Error(err))
	}
}
