package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/frostpeak/gatewarden/authz"
	"github.com/frostpeak/gatewarden/bot"
	"github.com/frostpeak/gatewarden/broker"
	"github.com/frostpeak/gatewarden/config"
	"github.com/frostpeak/gatewarden/coordinator"
	"github.com/frostpeak/gatewarden/db"
	"github.com/frostpeak/gatewarden/mojang"
	"github.com/frostpeak/gatewarden/probe"
	"github.com/frostpeak/gatewarden/rcon"
	"github.com/frostpeak/gatewarden/server"
	"github.com/frostpeak/gatewarden/stats"
	"github.com/frostpeak/gatewarden/watcher"
	"github.com/frostpeak/gatewarden/worker"
)

func main() {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetLevel(logrus.InfoLevel)

	c, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Unable to load config: " + err.Error())
	}
	if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
		log.SetLevel(level)
	}
	watcher.WatchConfig(log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Connect to db
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(c.MongodbConnStr))
	if err != nil {
		log.Fatal("Unable to connect to mongodb: " + err.Error())
	}
	dbSvc := db.NewService(client)
	if err := dbSvc.Ping(ctx); err != nil {
		log.Fatal("Unable to ping mongodb: " + err.Error())
	}
	log.Info("Mongodb connection established")

	conn, err := amqp.Dial(c.RabbitmqConnStr)
	if err != nil {
		log.Fatal("Unable to connect to rabbitmq: " + err.Error())
	}
	defer conn.Close()
	brokerSvc, err := broker.NewService(conn, c.TaskQueueName)
	if err != nil {
		log.Fatal("Unable to setup broker: " + err.Error())
	}
	defer brokerSvc.Channel.Close()
	log.Info("RabbitMQ connection established")

	statsSvc, err := stats.NewService(dbSvc, c.RedisConnStr, log)
	if err != nil {
		log.Fatal("Unable to setup stats cache: " + err.Error())
	}
	defer statsSvc.Close()
	if err := statsSvc.SyncStats(ctx); err != nil {
		log.Fatal("Unable to sync stats cache: " + err.Error())
	}

	probeSvc, err := probe.NewService()
	if err != nil {
		log.Fatal("Unable to connect to docker daemon: " + err.Error())
	}
	defer probeSvc.Close()

	policy := authz.Policy{
		AllowedRoles: c.Whitelist.AllowedRoles,
		AllowAdmin:   c.Whitelist.AllowAdmin,
	}
	coordinatorSvc := coordinator.NewService(dbSvc, probeSvc, rcon.Dispatcher{}, brokerSvc, policy, c.Servers, log)

	botSvc, err := bot.NewService(c, dbSvc, coordinatorSvc, mojang.NewClient(), probeSvc, statsSvc, log)
	if err != nil {
		log.Fatal("Unable to setup discord bot: " + err.Error())
	}
	if err := botSvc.Start(); err != nil {
		log.Fatal("Unable to start discord bot: " + err.Error())
	}
	defer botSvc.Stop()

	// Notification delivery worker shares the bot's session for DMs
	msgs, err := brokerSvc.Consume()
	if err != nil {
		log.Fatal("Unable to register queue consumer: " + err.Error())
	}
	workerSvc := worker.NewService(botSvc.Session(), c.SMTP, log)
	go workerSvc.Run(msgs)

	// Set up internal ops API server
	httpServer := server.NewService(dbSvc, statsSvc, c, log)
	go httpServer.Listen(c.APIPort)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info("Shutting down")
}
