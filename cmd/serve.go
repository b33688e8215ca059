/*
Copyright © 2024 Dean
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ThreeDotsLabs/watermill-amqp/pkg/amqp"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	v2 "docbuddy/handler/http/v2"
	jobctrl "docbuddy/src/infrastructure/job"
	"docbuddy/src/infrastructure/log"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the documentation assistant API",
	Long: `The serve command starts an HTTP server exposing ingestion, search and
chat endpoints. With jobs.enabled set, uploads can also be queued for the worker.`,
	RunE: RunServer,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	viper.SetDefault("jobs.enabled", false)
}

func RunServer(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	services := v2.Services{
		Ingestion:  a.ingestion,
		Collection: a.collection,
		Search:     a.search,
		Chat:       a.chat,
		System:     a.system,
	}

	if viper.GetBool("jobs.enabled") {
		infra, err := newJobInfra(cmd.Context())
		if err != nil {
			return err
		}
		defer infra.Close()

		publisher, err := amqp.NewPublisher(amqp.NewDurableQueueConfig(viper.GetString("amqp.url")), infra.logger)
		if err != nil {
			return fmt.Errorf("failed to create amqp publisher: %w", err)
		}
		defer publisher.Close()

		services.Jobs = jobctrl.NewJobService(publisher, infra.repo, infra.archive, nil, infra.logger)
	}

	handler := v2.NewHandler(services, v2.Config{
		RoutePrefix:    viper.GetString("server.route_prefix"),
		DefaultStore:   viper.GetString("rag.default_store"),
		ChunkSize:      viper.GetInt("chunker.size"),
		ChunkOverlap:   viper.GetInt("chunker.overlap"),
		SearchK:        viper.GetInt("rag.search_k"),
		MaxUploadBytes: viper.GetInt64("server.max_upload_bytes"),
	})

	// Setup gin router
	r := gin.Default()
	handler.RegisterRoutes(r)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + viper.GetString("server.port"),
		Handler: r,
	}

	// Start server in a goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start server: %w", err)
	case <-quit:
	}
	log.Info("Shutting down server...")

	timeout := viper.GetDuration("server.shutdown_timeout")
	if timeout <= 0 {
		log.Info("Invalid shutdown timeout, using default 5s")
		timeout = 5 * time.Second
	}

	// Create context with timeout for shutdown
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Attempt graceful shutdown
	if err := srv.Shutdown(ctx); err != nil {
		log.Error(err, "Server forced to shutdown")
	}

	log.Info("Server exited")
	return nil
}
