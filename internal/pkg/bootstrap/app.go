// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"atlas/internal/pkg/config"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/nacos"
	"atlas/internal/pkg/tracing"
)

var currentConfig *config.Config

// Init 加载配置并初始化日志，必须在 StartService 之前调用。
func Init(serviceName string) {
	logger.Init(serviceName)
	cfg, err := config.Load()
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to load config")
	}
	currentConfig = cfg
}

// GetCurrentConfig 返回进程级配置。
func GetCurrentConfig() *config.Config {
	return currentConfig
}

// Task 是随服务生命周期运行的后台任务，ctx 取消后必须尽快返回。
type Task func(ctx context.Context) error

// AppCtx 传给各服务的路由注册函数。
type AppCtx struct {
	Mux    *http.ServeMux
	Config *config.Config
}

// AppInfo 描述启动一个微服务所需的全部信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)
	// BackgroundTasks 与 HTTP 服务器一起由 errgroup 管理，例如过期预占的清扫器。
	BackgroundTasks []Task
}

// StartService 封装所有微服务共同的启动与优雅关停流程。
func StartService(info AppInfo) {
	log := logger.Logger()
	cfg := GetCurrentConfig()
	if cfg == nil {
		log.Fatal().Msg("bootstrap.Init must be called before StartService")
	}

	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// Nacos 是可选的：未配置时各服务走静态地址表寻址
	var registry *nacos.Client
	var ip string
	if cfg.Infra.Nacos.ServerAddrs != "" {
		registry, err = nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to initialize nacos client")
		}
		ip, err = outboundIP()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to get outbound IP address")
		}
		if err := registry.Register(info.ServiceName, ip, info.Port); err != nil {
			log.Fatal().Err(err).Msg("failed to register service with nacos")
		}
	}

	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)
	group.Go(func() error {
		log.Info().Msgf("%s listening on :%d", info.ServiceName, info.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	for _, task := range info.BackgroundTasks {
		task := task
		group.Go(func() error { return task(groupCtx) })
	}

	<-groupCtx.Done()
	log.Info().Msgf("Shutting down service %s...", info.ServiceName)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关停顺序与启动相反：先摘流量，再刷 trace，最后停 HTTP
	if registry != nil {
		if err := registry.Deregister(info.ServiceName, ip, info.Port); err != nil {
			log.Error().Err(err).Msg("error deregistering from nacos")
		}
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down tracer provider")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("error shutting down http server")
	}
	if err := group.Wait(); err != nil {
		log.Error().Err(err).Msg("service exited with error")
		os.Exit(1)
	}
	log.Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}

// outboundIP 探测本机对外 IP，用于向注册中心上报实例地址。
func outboundIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	return conn.LocalAddr().(*net.UDPAddr).IP.String(), nil
}
