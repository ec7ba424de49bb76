// cmd/inventory-service/main.go
package main

import (
	"context"

	"go.opentelemetry.io/otel"

	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/httpclient"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/nacos"
	"atlas/internal/pkg/redis"
	"atlas/internal/pkg/zookeeper"
	"atlas/internal/service/inventory/application"
	"atlas/internal/service/inventory/infrastructure"
	"atlas/internal/service/inventory/infrastructure/adapter"
	"atlas/internal/service/inventory/interfaces"
)

const (
	serviceName = "inventory-service"
	servicePort = 3005
)

func main() {
	bootstrap.Init(serviceName)
	cfg := bootstrap.GetCurrentConfig()
	log := logger.Logger()

	db, err := infrastructure.OpenDB(cfg.Infra.MySQL.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	store := infrastructure.NewGormStore(db)

	// 服务寻址：配置了 Nacos 就走注册中心，否则用静态地址表
	var resolver httpclient.Resolver = httpclient.StaticResolver(cfg.Services)
	if cfg.Infra.Nacos.ServerAddrs != "" {
		nacosClient, err := nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		resolver = nacosClient
	}
	client := httpclient.NewClient(otel.Tracer(serviceName), resolver, 0)

	catalog := adapter.NewProductHTTPAdapter(client)
	orders := adapter.NewOrderHTTPAdapter(client)

	redisClient, err := redis.NewClient(context.Background(), cfg.Infra.Redis.Addr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	cache := adapter.NewStockRedisCache(redisClient, cfg.Infra.Redis.StockTTL.Std())

	hub := interfaces.NewStockHub()
	engine := application.NewEngine(store, catalog, orders, cache, hub)

	// 多实例部署时用 Zookeeper 锁保证同一时刻只有一个清扫器在跑
	var locker application.SweepLocker
	if cfg.Inventory.SweepLockPath != "" && len(cfg.Infra.Zookeeper.Servers) > 0 {
		zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, 0)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to zookeeper")
		}
		defer zkConn.Close()
		locker = adapter.NewZkSweepLocker(zkConn, cfg.Inventory.SweepLockPath)
	}
	sweeper := application.NewSweeper(engine, cfg.Inventory.SweepInterval.Std(), locker)

	handler := interfaces.NewInventoryHandler(engine, hub)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		BackgroundTasks: []bootstrap.Task{hub.Run, sweeper.Run},
	})
}
