package main

import (
	"github.com/gin-gonic/gin"

	"github.com/kbcore/internal/config"
	"github.com/kbcore/internal/db"
	"github.com/kbcore/internal/handler"
	"github.com/kbcore/internal/router"
	"github.com/kbcore/pkg/logger"
)

func main() {
	cfg := config.Load()
	log := logger.New()

	gin.SetMode(cfg.GinMode)

	// 初始化数据库
	if err := db.Init(cfg.DatabasePath); err != nil {
		log.Fatal().Err(err).Msg("数据库初始化失败")
	}

	// 引导管理员账号
	if err := db.EnsureAdmin(db.DB, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatal().Err(err).Msg("管理员账号初始化失败")
	}

	// 设置并运行 Gin 服务器
	api := handler.NewAPI(db.DB, log)
	api.ConfigureDocumentSource(cfg.DocSourceBaseURL, cfg.DocSourceToken)
	r := router.SetupRouter(api, cfg.SessionSecret)

	log.Info().Str("addr", cfg.ListenAddr).Msg("服务启动")
	if err := r.Run(cfg.ListenAddr); err != nil {
		log.Fatal().Err(err).Msg("服务启动失败")
	}
}
