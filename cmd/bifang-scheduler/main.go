package main

import (
	"flag"
	"log"
	"os"

	"github.com/timelyrain333/bifang-sub000/infra/application"
	"github.com/timelyrain333/bifang-sub000/infra/application/consts"
	bizConfig "github.com/timelyrain333/bifang-sub000/internal/config"

	_ "github.com/timelyrain333/bifang-sub000/internal/plugin/builtin"
	_ "github.com/timelyrain333/bifang-sub000/internal/registry_ext"
)

func main() {
	cfgPath := flag.String("config", envOr("BIFANG_CONFIG", consts.DEFAULT_CONFIG_PATH), "config file path")
	env := flag.String("env", envOr("BIFANG_ENV", consts.ENV_DEVELOPMENT), "runtime environment")
	flag.Parse()

	app := application.NewApp(*env, *cfgPath)
	app.SetBizConfig(bizConfig.GetBizConfig())
	if err := app.Run(); err != nil {
		log.Fatalf("bifang scheduler exited: %v", err)
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
