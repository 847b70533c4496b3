package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/trackd/trackd/pkg/config"
	"github.com/trackd/trackd/pkg/events"
	"github.com/trackd/trackd/pkg/poseframe"
	"github.com/trackd/trackd/pkg/skeleton"
)

var (
	conf      config.Config
	model     *skeleton.Live
	store     *poseframe.Store
	scheduler *Scheduler
)

func setupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(ginLogger(logrus.StandardLogger()))
	router.GET("/config", getConfig)
	router.GET("/version", getVersion)

	ab := router.Group("/autobone")
	ab.GET("/config", getAutoBoneConfig)
	ab.PUT("/config", setAutoBoneConfig)
	ab.POST("/start", startAutoBoneHandler)
	ab.GET("/status", getAutoBoneStatusHandler)
	ab.POST("/cancel", cancelAutoBoneHandler)
	ab.POST("/apply", applyAutoBoneHandler)
	ab.GET("/events", streamEvents)
	ab.GET("/ws", streamWebsocket)

	router.GET("/recordings", getRecordings)
	router.POST("/recordings", uploadRecording)
	router.GET("/skeleton", getSkeleton)
	router.PUT("/skeleton", setSkeleton)
	router.POST("/skeleton/reset", resetSkeleton)

	router.GET("/schedule", getScheduleHandler)
	router.PUT("/schedule", setScheduleHandler)
	router.POST("/schedule/postpone", postponeScheduleHandler)
	router.POST("/schedule/skip", skipScheduleHandler)

	return router
}

// reloadConfig re-reads the config file and pushes what can change at
// runtime into the daemon.
func reloadConfig() error {
	if err := conf.Load(); err != nil {
		return err
	}
	model.Update(func(c *skeleton.Config) {
		c.SetAll(conf.SkeletonValues())
	})
	store.SetDirs(conf.RecordingsDir(), conf.LoadRecordingsDir())

	if expr := conf.Cron(); expr != "" {
		if err := scheduler.Schedule(expr); err != nil {
			return err
		}
		scheduler.Start()
	} else {
		scheduler.Stop()
	}
	return nil
}

func Run(configPath string, unixSocketPath string, allowNonRoot bool) error {
	router := setupRoutes()

	var err error
	conf, err = config.NewFile(configPath)
	if err != nil {
		logrus.Fatalf("failed to parse config during startup: %v", err)
	}
	logrus.WithFields(conf.LogrusFields()).Infof("config loaded")

	model = skeleton.NewLive(conf.SkeletonValues())
	store = poseframe.NewStore(conf.RecordingsDir(), conf.LoadRecordingsDir())
	sseHub = events.NewEventHub()
	initAutoBoneState(filepath.Join(filepath.Dir(configPath), "autobone-state.json"))

	if broker := conf.MQTTBroker(); broker != "" {
		bridge, err = newMQTTBridge(broker, conf.MQTTClientID(), conf.MQTTTopicPrefix())
		if err != nil {
			// Calibration works without the broker.
			logrus.WithError(err).Error("mqtt bridge disabled")
		}
	}

	scheduler = newAutoBoneScheduler()
	if expr := conf.Cron(); expr != "" {
		if err := scheduler.Schedule(expr); err != nil {
			logrus.WithError(err).Error("failed to schedule autobone from config")
		} else {
			scheduler.Start()
		}
	}

	// Receive SIGHUP to reload config
	go func() {
		sigc := make(chan os.Signal, 1)
		signal.Notify(sigc, syscall.SIGHUP)
		for range sigc {
			if err := reloadConfig(); err != nil {
				logrus.Errorf("failed to reload config: %v", err)
				continue
			}
			logrus.WithFields(conf.LogrusFields()).Infof("config reloaded")
		}
	}()

	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// A stale socket from a crashed daemon blocks Listen.
	if err := os.Remove(unixSocketPath); err != nil && !os.IsNotExist(err) {
		logrus.Fatal(err)
	}
	l, err := net.Listen("unix", unixSocketPath)
	if err != nil {
		logrus.Fatal(err)
	}

	if conf.AllowNonRootAccess() || allowNonRoot {
		logrus.Infof("non-root access is allowed, changing permissions of %s to 0777", unixSocketPath)
		err = os.Chmod(unixSocketPath, 0777)
		if err != nil {
			logrus.Fatal(err)
		}
	}

	// Serve HTTP on unix socket
	go func() {
		logrus.Infof("http server listening on %s", l.Addr().String())
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatal(err)
		}
	}()

	// Handle common process-killing signals, so we can gracefully shut down:
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	// Wait for a SIGINT or SIGTERM:
	sig := <-sigc
	logrus.Infof("caught signal \"%s\": shutting down.", sig)

	logrus.Info("stopping scheduler")
	scheduler.Stop()

	if err := cancelAutoBone(); err == nil {
		logrus.Info("waiting for autobone job to stop")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := waitAutoBone(ctx); err != nil {
			logrus.Warnf("autobone job did not stop in time: %v", err)
		}
		cancel()
	}

	logrus.Info("shutting down http server")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	err = srv.Shutdown(ctx)
	if err != nil {
		logrus.Errorf("failed to shutdown http server: %v", err)
	}
	cancel()

	if bridge != nil {
		logrus.Info("disconnecting from mqtt broker")
		bridge.Close()
	}

	logrus.Info("exiting")
	return nil
}
