package cmd

import (
	"context"
	"fmt"
	"net/http"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/spf13/viper"
	"github.com/tmc/langchaingo/embeddings"
	weaviateClient "github.com/weaviate/weaviate-go-client/v4/weaviate"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"docbuddy/src/core/chunker"
	"docbuddy/src/core/knowledgebase"
	"docbuddy/src/core/session"
	"docbuddy/src/fsutil"
	"docbuddy/src/infrastructure/integrations/ollama"
	"docbuddy/src/infrastructure/integrations/openai"
	jobctrl "docbuddy/src/infrastructure/job"
	"docbuddy/src/infrastructure/log"
	"docbuddy/src/storage/local"
	"docbuddy/src/storage/minioctrl"
	"docbuddy/src/storage/weaviate"
)

// modelProvider serves both completions and embeddings
type modelProvider interface {
	knowledgebase.LLMProvider
	knowledgebase.Pinger
	embeddings.EmbedderClient
}

type storeBackend interface {
	knowledgebase.StoreProvider
	knowledgebase.Pinger
}

// app holds the services shared by every command
type app struct {
	ingestion  knowledgebase.IngestionService
	collection knowledgebase.CollectionService
	search     knowledgebase.SearchService
	chat       knowledgebase.ChatService
	system     knowledgebase.SystemService

	closers []func() error
}

func newModelProvider() (modelProvider, error) {
	switch name := viper.GetString("provider"); name {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:         viper.GetString("openai.api_key"),
			BaseURL:        viper.GetString("openai.base_url"),
			ChatModel:      viper.GetString("openai.chat_model"),
			EmbeddingModel: viper.GetString("openai.embedding_model"),
		}), nil
	case "ollama":
		c, err := ollama.NewClient(
			viper.GetString("ollama.url"),
			&http.Client{},
			viper.GetString("ollama.chat_model"),
			viper.GetString("ollama.embedding_model"),
		)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func newStoreBackend(embedder embeddings.Embedder) (storeBackend, func() error, error) {
	switch backend := viper.GetString("vectorstore.backend"); backend {
	case "local":
		reg, err := local.NewRegistry(viper.GetString("rag.data_root"), embedder, fsutil.NewLocalFileStore())
		if err != nil {
			return nil, nil, err
		}
		return reg, reg.Close, nil
	case "weaviate":
		wc := weaviateClient.New(weaviateClient.Config{
			Host:   viper.GetString("weaviate.url"),
			Scheme: viper.GetString("weaviate.scheme"),
		})
		return weaviate.NewStore(weaviate.NewSDK(wc), embedder), func() error { return nil }, nil
	default:
		return nil, nil, fmt.Errorf("unknown vector store backend %q", backend)
	}
}

func newSessionMemory() (knowledgebase.SessionMemory, func() error, error) {
	switch backend := viper.GetString("session.backend"); backend {
	case "memory":
		return session.NewMemoryStore(), func() error { return nil }, nil
	case "sqlite":
		s, err := session.NewSQLiteStore(viper.GetString("session.sqlite_path"))
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown session backend %q", backend)
	}
}

func buildApp() (*app, error) {
	a := &app{}

	provider, err := newModelProvider()
	if err != nil {
		return nil, err
	}

	embedder, err := embeddings.NewEmbedder(provider, embeddings.WithBatchSize(viper.GetInt("embedding.batch_size")))
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	stores, closeStores, err := newStoreBackend(embedder)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, closeStores)

	memory, closeMemory, err := newSessionMemory()
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, closeMemory)

	splitter, err := chunker.New(viper.GetString("chunker.strategy"))
	if err != nil {
		a.Close()
		return nil, err
	}

	storeTimeout := viper.GetDuration("rag.store_timeout")
	a.ingestion = knowledgebase.NewIngestionService(splitter, stores, storeTimeout)
	a.collection = knowledgebase.NewCollectionService(stores, storeTimeout)
	a.search = knowledgebase.NewSearchService(stores, storeTimeout)
	a.chat = knowledgebase.NewChatService(a.search, memory, provider, knowledgebase.ChatConfig{
		DefaultStore:       viper.GetString("rag.default_store"),
		TopK:               viper.GetInt("rag.top_k"),
		RelevanceThreshold: viper.GetFloat64("rag.relevance_threshold"),
		LLMTimeout:         viper.GetDuration("rag.llm_timeout"),
	})

	components := map[string]knowledgebase.Pinger{
		"vectorstore": stores,
		"llm":         provider,
	}
	if p, ok := memory.(knowledgebase.Pinger); ok {
		components["sessions"] = p
	}
	a.system = knowledgebase.NewSystemService(components)

	log.Info("Services ready",
		"provider", viper.GetString("provider"),
		"vectorstore", viper.GetString("vectorstore.backend"),
		"sessions", viper.GetString("session.backend"),
	)
	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			log.Error(err, "Failed to release resource")
		}
	}
}

// jobInfra is the storage side of asynchronous ingestion
type jobInfra struct {
	db      *gorm.DB
	repo    *jobctrl.PostgresJobRepository
	archive *minioctrl.Archive
	logger  watermill.LoggerAdapter
}

func newJobInfra(ctx context.Context) (*jobInfra, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		viper.GetString("postgres.host"),
		viper.GetString("postgres.user"),
		viper.GetString("postgres.password"),
		viper.GetString("postgres.db"),
		viper.GetString("postgres.port"),
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	repo := jobctrl.NewPostgresJobRepository(db)
	if err := repo.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate jobs table: %w", err)
	}

	archive, err := minioctrl.NewArchive(minioctrl.Config{
		Endpoint:        viper.GetString("minio.endpoint"),
		AccessKeyID:     viper.GetString("minio.access_key"),
		SecretAccessKey: viper.GetString("minio.secret_key"),
		UseSSL:          viper.GetBool("minio.use_ssl"),
		Bucket:          viper.GetString("minio.bucket"),
	})
	if err != nil {
		return nil, err
	}
	if err := archive.EnsureBucketExists(ctx); err != nil {
		return nil, err
	}

	return &jobInfra{
		db:      db,
		repo:    repo,
		archive: archive,
		logger:  watermill.NewStdLogger(false, false),
	}, nil
}

func (j *jobInfra) Close() {
	sqlDB, err := j.db.DB()
	if err != nil {
		log.Error(err, "Failed to get underlying *sql.DB")
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Error(err, "Error closing database connection")
	}
}
