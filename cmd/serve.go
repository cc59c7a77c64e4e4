package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"salesbot/internal/analyzer"
	"salesbot/internal/catalog"
	"salesbot/internal/config"
	"salesbot/internal/corpus"
	"salesbot/internal/embeddings"
	"salesbot/internal/interest"
	"salesbot/internal/retrieval"
	"salesbot/internal/server"
	"salesbot/internal/session"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Starts the salesbot HTTP API: corpus management, similarity search,
conversation tracking, interest records and conversation analysis.
Stale conversations are swept on the configured schedule.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	d, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	embedder, err := newEmbedder(cfg)
	if err != nil {
		return err
	}

	store := corpus.NewStore(d)
	synchronizer := corpus.NewSynchronizer(d, store, embedder,
		time.Duration(cfg.EmbedTimeoutSeconds)*time.Second)
	index := retrieval.NewIndex(store, embeddings.ToChromemFunc(embedder))
	sessions := session.NewManager(d, time.Duration(cfg.SessionWindowMinutes)*time.Minute)
	interests := interest.NewStore(d)
	chat := analyzer.NewClient(os.Getenv(config.APIKeyEnv), cfg.ChatModel,
		time.Duration(cfg.ChatTimeoutSeconds)*time.Second)

	// Warm up is best effort: an empty corpus plus an unreachable
	// embedding API should not keep the conversation API down.
	startCtx := context.Background()
	if state, err := synchronizer.EnsureFresh(startCtx); err != nil {
		log.Printf("corpus warm-up failed: %v", err)
	} else if err := index.Reload(startCtx); err != nil {
		log.Printf("index load failed: %v", err)
	} else {
		log.Printf("corpus %s, %d documents indexed", state, index.Size())
	}

	srv := server.New(server.Config{Port: cfg.Port, AllowAllOrigins: cfg.AllowAllOrigins})
	srv.Mount("/api/corpus", corpus.NewHandler(synchronizer, store, index).Routes())
	srv.Mount("/api/search", retrieval.NewHandler(index, cfg.SearchLimit).Routes())
	srv.Mount("/api/conversations", session.NewHandler(sessions).Routes())
	srv.Mount("/api/customers", interest.NewHandler(interests).Routes())
	srv.Mount("/api/analysis", analyzer.NewHandler(chat, sessions, interests, catalog.NewExtractor(d)).Routes())

	sweeper := cron.New()
	if _, err := sweeper.AddFunc(cfg.SweepSchedule, func() {
		n, err := sessions.SweepStale(context.Background())
		if err != nil {
			log.Printf("conversation sweep failed: %v", err)
			return
		}
		if n > 0 {
			log.Printf("swept %d stale conversations", n)
		}
	}); err != nil {
		return err
	}
	sweeper.Start()
	defer sweeper.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
