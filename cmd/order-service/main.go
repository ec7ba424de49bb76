// cmd/order-service/main.go
package main

import (
	"go.opentelemetry.io/otel"

	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/httpclient"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/mq"
	"atlas/internal/pkg/nacos"
	"atlas/internal/service/order/application"
	"atlas/internal/service/order/infrastructure"
	"atlas/internal/service/order/infrastructure/adapter"
	"atlas/internal/service/order/infrastructure/rule"
	"atlas/internal/service/order/interfaces"
)

const (
	serviceName = "order-service"
	servicePort = 3003

	userEventsGroupID = "order-service-user-events"
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

	inventory := adapter.NewInventoryHTTPAdapter(client)
	cart := adapter.NewCartHTTPAdapter(client)

	rules, err := rule.NewCELRulesEngine(cfg.App.OrderRules)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to compile order acceptance rules")
	}

	writer := mq.NewKafkaWriter(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.OrderEventsTopic)
	defer writer.Close()
	publisher := adapter.NewOrderEventsKafkaAdapter(writer)

	service := application.NewOrderService(store, inventory, cart, rules, publisher, cfg.App.OrderTimeout.Std())

	reader := mq.NewKafkaReader(cfg.Infra.Kafka.Brokers, cfg.Infra.Kafka.UserEventsTopic, userEventsGroupID)
	consumer := infrastructure.NewUserEventsConsumer(reader, service)

	handler := interfaces.NewOrderHandler(service)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			handler.RegisterRoutes(appCtx.Mux)
		},
		BackgroundTasks: []bootstrap.Task{consumer.Run},
	})
}
