package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/cors"

	compositionapp "github.com/yachty66/vimagine/internal/application/composition"
	generationapp "github.com/yachty66/vimagine/internal/application/generation"
	"github.com/yachty66/vimagine/internal/config"
	"github.com/yachty66/vimagine/internal/domain/generation"
	"github.com/yachty66/vimagine/internal/infrastructure/download"
	"github.com/yachty66/vimagine/internal/infrastructure/ffmpeg"
	"github.com/yachty66/vimagine/internal/infrastructure/modelstore"
	"github.com/yachty66/vimagine/internal/infrastructure/runware"
	"github.com/yachty66/vimagine/internal/infrastructure/s3"
	"github.com/yachty66/vimagine/internal/infrastructure/scratch"
	httptransport "github.com/yachty66/vimagine/internal/transport/http"
)

func main() {
	cfg := config.Load()
	logger := log.Default()
	ctx := context.Background()

	workspace := scratch.NewStore(cfg.ScratchDir)
	if err := workspace.EnsureRoot(); err != nil {
		log.Fatalf("scratch init failed: %v", err)
	}

	publisher, err := s3.NewPublisher(ctx, cfg.S3Bucket, cfg.S3Region, logger)
	if err != nil {
		log.Fatalf("s3 init failed: %v", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
		log.Fatalf("database dir init failed: %v", err)
	}
	models, err := modelstore.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("model store init failed: %v", err)
	}
	if err := seedModels(models); err != nil {
		log.Fatalf("model seed failed: %v", err)
	}

	converter := ffmpeg.NewConverter(cfg.ClipTimeout, cfg.ConcatTimeout)
	fetcher := download.NewFetcher(cfg.FetchTimeout)

	tracker := compositionapp.NewTracker(cfg.JobRetention)
	tracker.StartEviction(ctx)
	compositionService := compositionapp.NewService(fetcher, converter, publisher, workspace, tracker, cfg.ClipWorkers, logger)

	provider := runware.NewClient(cfg.RunwareURL, cfg.RunwareKey)
	generationService := generationapp.NewService(models, provider, logger)

	handler := httptransport.NewHandler(compositionService, generationService)
	router := httptransport.NewRouter(handler)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})

	log.Printf("Server started on %s", cfg.ServerAddr)
	log.Fatal(http.ListenAndServe(cfg.ServerAddr, c.Handler(router)))
}

// seedModels upserts the built-in model catalog so a fresh database can serve
// generation requests immediately.
func seedModels(store *modelstore.Store) error {
	catalog := []generation.ModelConfig{
		{
			Name:          "flux-schnell",
			Provider:      "runware",
			ModelID:       "runware:101@1",
			TaskType:      "imageInference",
			BaseURL:       "https://api.runware.ai/v1/image",
			ResponseField: "imageURL",
			DefaultParams: `{"width":1024,"height":1024,"steps":4,"CFGScale":8}`,
		},
		{
			Name:          "seedance-pro",
			Provider:      "runware",
			ModelID:       "bytedance:2@1",
			TaskType:      "videoInference",
			ResponseField: "videoURL",
			IsAsync:       true,
			DefaultParams: `{"duration":5,"fps":24,"outputFormat":"mp4","height":480,"width":864,"numberResults":1,"includeCost":true,"providerSettings":{"bytedance":{"cameraFixed":false}}}`,
		},
	}
	for i := range catalog {
		if err := store.SaveModel(&catalog[i]); err != nil {
			return err
		}
	}
	return nil
}
