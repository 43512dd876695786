package main

import (
	"arc/auth-api/app"
	"arc/auth-api/config"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	gin.SetMode(gin.ReleaseMode)

	c, err := config.Setup()
	if err != nil {
		panic(err)
	}

	router, err := app.NewRouter(c)
	if err != nil {
		panic(err)
	}

	addr := fmt.Sprintf(":%d", c.Host.Port)
	zap.L().Info("Server starting", zap.String("addr", addr), zap.Bool("tls", c.Host.SSL.Enabled))

	if c.Host.SSL.Enabled {
		err = router.RunTLS(addr, c.Host.SSL.CertificatePath, c.Host.SSL.CertificateKeyPath)
	} else {
		err = router.Run(addr)
	}

	if err != nil {
		zap.L().Fatal("Server stopped", zap.Error(err))
	}
}
