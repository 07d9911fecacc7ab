package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ainova/assistant/internal/api"
	"github.com/ainova/assistant/internal/auth"
	"github.com/ainova/assistant/internal/config"
	"github.com/ainova/assistant/internal/core"
	"github.com/ainova/assistant/internal/integrations/greenapi"
	"github.com/ainova/assistant/internal/llm"
	"github.com/ainova/assistant/internal/store"
)

func main() {
	cfg := config.Load()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	indexFlag := flag.Bool("index", false, "Embed and index all documents in DOCS_DIR, then exit")
	issueTokenFlag := flag.String("issue-token", "", "Print a bearer token for the named channel integration, then exit")
	flag.Parse()

	if *issueTokenFlag != "" {
		if cfg.JWTSecret == "" {
			log.Fatal("JWT_SECRET must be set to issue tokens")
		}
		token, err := auth.GenerateToken([]byte(cfg.JWTSecret), *issueTokenFlag, 365*24*time.Hour)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	dbStore, err := store.NewSQLiteStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	llmClient := llm.NewClient(llm.Config{
		APIKey:         cfg.APIKey,
		BaseURL:        cfg.BaseURL,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Temperature:    cfg.LLMTemperature,
	})

	if *indexFlag {
		log.Printf("Indexing documents from %s...", cfg.DocsDir)
		count, err := dbStore.IndexDocumentsFromDir(context.Background(), cfg.DocsDir, llmClient.Embed)
		if err != nil {
			log.Fatalf("Document indexing failed: %v", err)
		}
		log.Printf("Document indexing complete. Indexed %d documents. Exiting.", count)
		return
	}

	retriever, err := core.LoadRetriever(context.Background(), dbStore, llmClient)
	if err != nil {
		log.Fatalf("Failed to initialize retriever: %v", err)
	}

	agentService := core.NewAgentService(dbStore, retriever, llmClient, core.Options{
		SystemPrompts:    core.LoadSystemPrompts(cfg.PromptsDir),
		HistoryLimit:     cfg.HistoryLimit,
		RetrievalEnabled: cfg.RAGEnabled,
		TopK:             cfg.RAGTopK,
		MaxContextChars:  cfg.RAGMaxChars,
	})

	var whatsapp api.MessageSender
	if cfg.GreenAPIInstanceID != "" && cfg.GreenAPIToken != "" {
		whatsapp = greenapi.NewClient(cfg.GreenAPIURL, cfg.GreenAPIInstanceID, cfg.GreenAPIToken)
		log.Println("Green API sender configured")
	}

	apiHandler := api.NewAPIHandler(agentService, whatsapp, []byte(cfg.JWTSecret))
	router := api.NewRouter(apiHandler)

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)

	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // LLM calls can take time
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exiting gracefully")
}
